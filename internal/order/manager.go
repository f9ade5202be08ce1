package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"arbiter/internal/exchange"
	"arbiter/internal/model"

	"github.com/shopspring/decimal"
)

// ErrUnknownOrder is returned for order ids the manager has never seen.
var ErrUnknownOrder = errors.New("order: unknown order id")

// ErrNoTrader is returned when a spec names an exchange without a trader.
var ErrNoTrader = errors.New("order: no trader for exchange")

// Spec describes an order to be submitted.
type Spec struct {
	Exchange string
	Symbol   string
	Side     model.Side
	Qty      decimal.Decimal
	Price    decimal.Decimal
}

// Manager places, tracks, and reconciles orders on all venues. It owns Order
// records exclusively after submission: updates are applied under a lock and
// callers only ever receive value copies, so a reader never observes a
// half-applied fill.
type Manager struct {
	logger      *slog.Logger
	traders     map[string]exchange.Trader
	fillTimeout time.Duration

	mu     sync.Mutex
	orders map[string]*model.Order
}

// NewManager creates an order manager over the given per-exchange traders.
func NewManager(logger *slog.Logger, traders map[string]exchange.Trader, fillTimeout time.Duration) *Manager {
	return &Manager{
		logger:      logger,
		traders:     traders,
		fillTimeout: fillTimeout,
		orders:      make(map[string]*model.Order),
	}
}

// Submit places an order on the named exchange and starts tracking it.
func (m *Manager) Submit(ctx context.Context, spec Spec) (string, error) {
	trader, ok := m.traders[spec.Exchange]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoTrader, spec.Exchange)
	}

	id, err := trader.Place(ctx, spec.Symbol, spec.Side, spec.Qty, spec.Price)
	if err != nil {
		return "", fmt.Errorf("order: place on %s: %w", spec.Exchange, err)
	}

	now := time.Now()
	m.mu.Lock()
	m.orders[id] = &model.Order{
		OrderID:        id,
		Exchange:       spec.Exchange,
		Side:           spec.Side,
		Symbol:         spec.Symbol,
		RequestedQty:   spec.Qty,
		RequestedPrice: spec.Price,
		Status:         model.OrderNew,
		SubmittedAt:    now,
		LastUpdateAt:   now,
	}
	m.mu.Unlock()

	m.logger.Info("OrderManager: order submitted",
		"orderID", id, "exchange", spec.Exchange, "side", spec.Side,
		"qty", spec.Qty, "price", spec.Price)
	return id, nil
}

// Poll reconciles local state against the exchange-reported fill status and
// returns a copy of the order. A terminal order is returned as-is without
// touching the exchange.
func (m *Manager) Poll(ctx context.Context, orderID string) (model.Order, error) {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return model.Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if o.Status.Terminal() {
		snapshot := *o
		m.mu.Unlock()
		return snapshot, nil
	}
	exchangeName := o.Exchange
	m.mu.Unlock()

	update, err := m.traders[exchangeName].Query(ctx, orderID)
	if err != nil {
		return model.Order{}, fmt.Errorf("order: query %s on %s: %w", orderID, exchangeName, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply(o, update)
	return *o, nil
}

// Cancel requests cancellation on the exchange. Idempotent when the order is
// already terminal.
func (m *Manager) Cancel(ctx context.Context, orderID string) error {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if o.Status.Terminal() {
		m.mu.Unlock()
		return nil
	}
	exchangeName := o.Exchange
	m.mu.Unlock()

	if err := m.traders[exchangeName].Cancel(ctx, orderID); err != nil {
		return fmt.Errorf("order: cancel %s on %s: %w", orderID, exchangeName, err)
	}

	// Reconcile immediately: the cancel may have raced a fill.
	_, err := m.Poll(ctx, orderID)
	return err
}

// Get returns a copy of the locally tracked order without hitting the
// exchange.
func (m *Manager) Get(orderID string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return model.Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	return *o, nil
}

// TimedOut reports whether a non-terminal order has waited for a fill longer
// than the configured timeout.
func (m *Manager) TimedOut(orderID string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status.Terminal() {
		return false
	}
	return now.Sub(o.SubmittedAt) >= m.fillTimeout
}

// HedgeClose immediately flattens the filled portion of an order by placing
// an opposite-side order on the same venue, then polls it to a terminal
// state. A positive qty flattens that amount, capped at the filled quantity;
// a zero qty flattens the whole fill. Used when the paired leg of a round
// trip fails after this one filled, so the book never carries a naked
// position.
func (m *Manager) HedgeClose(ctx context.Context, orderID string, qty decimal.Decimal) (model.Order, error) {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return model.Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	filled := o.FilledQty
	if qty.IsPositive() && qty.LessThan(filled) {
		filled = qty
	}
	price := o.AvgFillPrice
	if price.IsZero() {
		price = o.RequestedPrice
	}
	spec := Spec{
		Exchange: o.Exchange,
		Symbol:   o.Symbol,
		Side:     o.Side.Opposite(),
		Qty:      filled,
		Price:    price,
	}
	m.mu.Unlock()

	if !filled.IsPositive() {
		return model.Order{}, fmt.Errorf("order: hedge-close of %s: nothing filled to flatten", orderID)
	}

	m.logger.Warn("OrderManager: hedge-closing filled leg",
		"orderID", orderID, "exchange", spec.Exchange, "side", spec.Side, "qty", spec.Qty)

	hedgeID, err := m.Submit(ctx, spec)
	if err != nil {
		return model.Order{}, fmt.Errorf("order: hedge-close of %s: %w", orderID, err)
	}

	deadline := time.Now().Add(m.fillTimeout)
	for {
		hedge, err := m.Poll(ctx, hedgeID)
		if err != nil {
			return model.Order{}, err
		}
		if hedge.Status.Terminal() {
			return hedge, nil
		}
		if time.Now().After(deadline) {
			return hedge, fmt.Errorf("order: hedge-close %s still open after %s", hedgeID, m.fillTimeout)
		}
		select {
		case <-ctx.Done():
			return hedge, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// apply merges an exchange update into the order, enforcing forward-only
// transitions. Backward or post-terminal updates are dropped. Caller holds mu.
func (m *Manager) apply(o *model.Order, update exchange.OrderUpdate) {
	if !o.Status.CanTransition(update.Status) {
		if o.Status != update.Status {
			m.logger.Warn("OrderManager: dropping backward status update",
				"orderID", o.OrderID, "from", o.Status, "to", update.Status)
		}
		return
	}
	o.Status = update.Status
	if update.FilledQty.GreaterThan(o.FilledQty) {
		o.FilledQty = update.FilledQty
	}
	if update.AvgFillPrice.IsPositive() {
		o.AvgFillPrice = update.AvgFillPrice
	}
	o.LastUpdateAt = time.Now()
}
