package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"arbiter/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperTrader simulates order execution for dry-run mode. Orders fill fully
// at the requested price once the configured latency has elapsed; balances
// are adjusted on fill. It is safe for concurrent use.
type PaperTrader struct {
	logger  *slog.Logger
	name    string
	quote   string
	latency time.Duration

	mu       sync.Mutex
	orders   map[string]*paperOrder
	balances map[string]decimal.Decimal
}

type paperOrder struct {
	symbol    string
	side      model.Side
	qty       decimal.Decimal
	price     decimal.Decimal
	placedAt  time.Time
	cancelled bool
	settled   bool
}

// NewPaperTrader creates a simulated trading venue quoted in one currency,
// with starting balances per currency.
func NewPaperTrader(logger *slog.Logger, name, quoteCurrency string, latency time.Duration, balances map[string]decimal.Decimal) *PaperTrader {
	b := make(map[string]decimal.Decimal, len(balances))
	for cur, amt := range balances {
		b[cur] = amt
	}
	return &PaperTrader{
		logger:   logger,
		name:     name,
		quote:    quoteCurrency,
		latency:  latency,
		orders:   make(map[string]*paperOrder),
		balances: b,
	}
}

func (p *PaperTrader) Name() string {
	return p.name
}

// Place accepts the order and schedules a full fill at the requested price.
func (p *PaperTrader) Place(ctx context.Context, symbol string, side model.Side, qty, price decimal.Decimal) (string, error) {
	if !qty.IsPositive() || !price.IsPositive() {
		return "", fmt.Errorf("paper %s: invalid order qty=%s price=%s", p.name, qty, price)
	}
	id := uuid.NewString()
	p.mu.Lock()
	p.orders[id] = &paperOrder{
		symbol:   symbol,
		side:     side,
		qty:      qty,
		price:    price,
		placedAt: time.Now(),
	}
	p.mu.Unlock()
	p.logger.Debug("paper trader: order placed", "exchange", p.name, "orderID", id, "side", side, "qty", qty, "price", price)
	return id, nil
}

// Cancel marks the order cancelled unless it has already filled. Idempotent.
func (p *PaperTrader) Cancel(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("paper %s: unknown order %s", p.name, orderID)
	}
	if p.filled(o) {
		return nil
	}
	o.cancelled = true
	return nil
}

// Query reports the simulated fill status.
func (p *PaperTrader) Query(ctx context.Context, orderID string) (OrderUpdate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return OrderUpdate{}, fmt.Errorf("paper %s: unknown order %s", p.name, orderID)
	}
	if o.cancelled {
		return OrderUpdate{Status: model.OrderCancelled}, nil
	}
	if p.filled(o) {
		p.settle(o)
		return OrderUpdate{
			Status:       model.OrderFilled,
			FilledQty:    o.qty,
			AvgFillPrice: o.price,
		}, nil
	}
	return OrderUpdate{Status: model.OrderNew}, nil
}

// Balance returns the simulated balance for a currency.
func (p *PaperTrader) Balance(ctx context.Context, currency string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[currency], nil
}

// filled reports whether the simulated latency has elapsed. Caller holds mu.
func (p *PaperTrader) filled(o *paperOrder) bool {
	return !o.cancelled && time.Since(o.placedAt) >= p.latency
}

// settle applies the fill to the quote-currency balance once. The asset side
// is tracked by the engine's round trip, not here. Caller holds mu.
func (p *PaperTrader) settle(o *paperOrder) {
	if o.settled {
		return
	}
	o.settled = true
	notional := o.qty.Mul(o.price)
	if o.side == model.SideBuy {
		p.balances[p.quote] = p.balances[p.quote].Sub(notional)
	} else {
		p.balances[p.quote] = p.balances[p.quote].Add(notional)
	}
}
