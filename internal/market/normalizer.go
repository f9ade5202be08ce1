package market

import (
	"fmt"
	"log/slog"
	"time"

	"arbiter/internal/config"
	"arbiter/internal/fx"

	"github.com/shopspring/decimal"
)

// NormalizedQuote is a common-currency price plus the venue's one-leg cost
// estimate in basis points (taker fee + expected slippage).
type NormalizedQuote struct {
	Price      decimal.Decimal
	LegCostBps decimal.Decimal
}

// Normalizer converts raw per-exchange prices into common-currency,
// cost-adjusted quotes using the fx cache.
type Normalizer struct {
	logger         *slog.Logger
	cache          *fx.Cache
	fxPair         string
	maxAge         time.Duration
	commonCurrency string
	exchanges      map[string]config.ExchangeConfig
}

// NewNormalizer creates a normalizer for the configured venues.
func NewNormalizer(logger *slog.Logger, cache *fx.Cache, fxCfg config.FxConfig, commonCurrency string, exchanges map[string]config.ExchangeConfig) *Normalizer {
	return &Normalizer{
		logger:         logger,
		cache:          cache,
		fxPair:         fxCfg.Pair,
		maxAge:         fxCfg.MaxAge(),
		commonCurrency: commonCurrency,
		exchanges:      exchanges,
	}
}

// Normalize converts a raw price on the named exchange into the common
// currency. It returns an error when the exchange is unknown or when the
// required fx rate is missing or stale; it never guesses a value.
func (n *Normalizer) Normalize(exchange string, rawPrice decimal.Decimal) (NormalizedQuote, error) {
	return n.normalize(exchange, rawPrice, false)
}

// NormalizeAllowStale is the exit-path variant: an already-open position must
// still be valued when the fx stream lags, so a stale rate is used with a
// logged warning. A completely missing rate is still an error.
func (n *Normalizer) NormalizeAllowStale(exchange string, rawPrice decimal.Decimal) (NormalizedQuote, error) {
	return n.normalize(exchange, rawPrice, true)
}

func (n *Normalizer) normalize(exchange string, rawPrice decimal.Decimal, allowStale bool) (NormalizedQuote, error) {
	exCfg, ok := n.exchanges[exchange]
	if !ok {
		return NormalizedQuote{}, fmt.Errorf("normalizer: unknown exchange %q", exchange)
	}

	price := rawPrice
	if exCfg.QuoteCurrency != n.commonCurrency {
		rate, err := n.cache.GetFresh(n.fxPair, n.maxAge)
		if err != nil {
			if !allowStale {
				return NormalizedQuote{}, fmt.Errorf("normalizer: %s: %w", exchange, err)
			}
			stale, _, found := n.cache.Get(n.fxPair)
			if !found {
				return NormalizedQuote{}, fmt.Errorf("normalizer: %s: %w", exchange, err)
			}
			n.logger.Warn("Normalizer: using stale fx rate for open position valuation",
				"exchange", exchange, "pair", n.fxPair, "observedAt", stale.ObservedAt)
			rate = stale
		}
		price = rawPrice.Mul(rate.Rate)
	}

	legCost := decimal.NewFromFloat(exCfg.TakerFeeBps).Add(decimal.NewFromFloat(exCfg.SlippageBps))
	return NormalizedQuote{Price: price, LegCostBps: legCost}, nil
}

// RoundTripCostBps returns the total cost estimate for buying on one venue
// and selling on another: both taker fees plus expected slippage per leg.
func (n *Normalizer) RoundTripCostBps(buyExchange, sellExchange string) (decimal.Decimal, error) {
	buy, ok := n.exchanges[buyExchange]
	if !ok {
		return decimal.Zero, fmt.Errorf("normalizer: unknown exchange %q", buyExchange)
	}
	sell, ok := n.exchanges[sellExchange]
	if !ok {
		return decimal.Zero, fmt.Errorf("normalizer: unknown exchange %q", sellExchange)
	}
	total := decimal.NewFromFloat(buy.TakerFeeBps).
		Add(decimal.NewFromFloat(buy.SlippageBps)).
		Add(decimal.NewFromFloat(sell.TakerFeeBps)).
		Add(decimal.NewFromFloat(sell.SlippageBps))
	return total, nil
}
