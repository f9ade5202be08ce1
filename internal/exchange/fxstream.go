package exchange

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"arbiter/internal/config"
	"arbiter/internal/fx"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// FxStream consumes a reference-pair price stream and writes the mid price
// into the fx cache. The USDT/KRW rate is proxied by Upbit's KRW-USDT
// orderbook, consumed exactly like a market feed.
type FxStream struct {
	feedRuntime
	cache *fx.Cache
	pair  string
	code  string
}

// NewFxStream creates the fx rate feed handler for a pair like "USDT/KRW".
func NewFxStream(logger *slog.Logger, cfg config.FeedConfig, cache *fx.Cache, pair string) *FxStream {
	base := pair
	if i := strings.Index(pair, "/"); i > 0 {
		base = pair[:i]
	}
	return &FxStream{
		feedRuntime: newFeedRuntime(logger, "fx:"+pair, cfg),
		cache:       cache,
		pair:        pair,
		code:        "KRW-" + base,
	}
}

func (s *FxStream) Name() string {
	return "fx:" + s.pair
}

// StartStream connects to the rate source and keeps the fx cache current
// until the context is cancelled.
func (s *FxStream) StartStream(ctx context.Context) error {
	dial := func(ctx context.Context) (*websocket.Conn, error) {
		return dialUpbit(ctx, s.code)
	}

	handle := func(payload []byte) error {
		tick, err := parseUpbitOrderbook(payload, s.pair, s.code, "upbit")
		if err != nil {
			return err
		}
		// Mid price of the top of book as the reference rate.
		mid := tick.Bid.Add(tick.Ask).Div(two)
		if err := s.cache.Set(s.pair, mid, time.Now(), "upbit"); err != nil {
			return err
		}
		return nil
	}

	return s.run(ctx, dial, handle)
}
