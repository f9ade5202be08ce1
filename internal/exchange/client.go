package exchange

import (
	"context"

	"arbiter/internal/model"

	"github.com/shopspring/decimal"
)

// FeedClient defines the standard interface for all market data feed
// handlers. StartStream blocks until the context is cancelled, reconnecting
// on its own; a failing feed never takes down its siblings.
type FeedClient interface {
	Name() string
	StartStream(ctx context.Context, ticks chan<- model.PriceTick) error
	Malformed() uint64
}

// OrderUpdate is the exchange-reported view of an order used to reconcile
// local state.
type OrderUpdate struct {
	Status       model.OrderStatus
	FilledQty    decimal.Decimal
	AvgFillPrice decimal.Decimal
}

// Trader is the minimal trading surface the core needs from an exchange:
// place, cancel, fill query, and balance lookup. Wire formats are owned by
// the concrete adapter.
type Trader interface {
	Name() string
	Place(ctx context.Context, symbol string, side model.Side, qty, price decimal.Decimal) (string, error)
	Cancel(ctx context.Context, orderID string) error
	Query(ctx context.Context, orderID string) (OrderUpdate, error)
	Balance(ctx context.Context, currency string) (decimal.Decimal, error)
}
