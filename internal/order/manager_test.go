package order

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"arbiter/internal/exchange"
	"arbiter/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTrader struct {
	mock.Mock
	name string
}

func (m *MockTrader) Name() string { return m.name }

func (m *MockTrader) Place(ctx context.Context, symbol string, side model.Side, qty, price decimal.Decimal) (string, error) {
	args := m.Called(ctx, symbol, side, qty, price)
	return args.String(0), args.Error(1)
}

func (m *MockTrader) Cancel(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *MockTrader) Query(ctx context.Context, orderID string) (exchange.OrderUpdate, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(exchange.OrderUpdate), args.Error(1)
}

func (m *MockTrader) Balance(ctx context.Context, currency string) (decimal.Decimal, error) {
	args := m.Called(ctx, currency)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func newTestManager(t *testing.T) (*Manager, *MockTrader) {
	t.Helper()
	trader := &MockTrader{name: "upbit"}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	mgr := NewManager(logger, map[string]exchange.Trader{"upbit": trader}, time.Second)
	return mgr, trader
}

func buySpec() Spec {
	return Spec{
		Exchange: "upbit",
		Symbol:   "BTC",
		Side:     model.SideBuy,
		Qty:      decimal.NewFromFloat(0.01),
		Price:    decimal.NewFromInt(135_000_000),
	}
}

func TestManager_SubmitAndPoll(t *testing.T) {
	ctx := context.Background()
	mgr, trader := newTestManager(t)

	trader.On("Place", mock.Anything, "BTC", model.SideBuy, mock.Anything, mock.Anything).Return("ord-1", nil).Once()
	id, err := mgr.Submit(ctx, buySpec())
	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)

	o, err := mgr.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderNew, o.Status)

	trader.On("Query", mock.Anything, "ord-1").Return(exchange.OrderUpdate{
		Status:       model.OrderPartiallyFilled,
		FilledQty:    decimal.NewFromFloat(0.004),
		AvgFillPrice: decimal.NewFromInt(135_000_000),
	}, nil).Once()
	o, err = mgr.Poll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPartiallyFilled, o.Status)
	assert.True(t, o.FilledQty.Equal(decimal.NewFromFloat(0.004)))

	trader.On("Query", mock.Anything, "ord-1").Return(exchange.OrderUpdate{
		Status:       model.OrderFilled,
		FilledQty:    decimal.NewFromFloat(0.01),
		AvgFillPrice: decimal.NewFromInt(135_000_000),
	}, nil).Once()
	o, err = mgr.Poll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderFilled, o.Status)
	trader.AssertExpectations(t)
}

func TestManager_StatusNeverMovesBackward(t *testing.T) {
	ctx := context.Background()
	mgr, trader := newTestManager(t)

	trader.On("Place", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("ord-2", nil).Once()
	id, err := mgr.Submit(ctx, buySpec())
	require.NoError(t, err)

	trader.On("Query", mock.Anything, "ord-2").Return(exchange.OrderUpdate{
		Status:       model.OrderFilled,
		FilledQty:    decimal.NewFromFloat(0.01),
		AvgFillPrice: decimal.NewFromInt(135_000_000),
	}, nil).Once()
	o, err := mgr.Poll(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.OrderFilled, o.Status)

	// A terminal order is immutable under further polls; the exchange is not
	// even queried again.
	for i := 0; i < 3; i++ {
		o, err = mgr.Poll(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.OrderFilled, o.Status)
		assert.True(t, o.FilledQty.Equal(decimal.NewFromFloat(0.01)))
	}
	trader.AssertNumberOfCalls(t, "Query", 1)
}

func TestManager_CancelIdempotentWhenTerminal(t *testing.T) {
	ctx := context.Background()
	mgr, trader := newTestManager(t)

	trader.On("Place", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("ord-3", nil).Once()
	id, err := mgr.Submit(ctx, buySpec())
	require.NoError(t, err)

	trader.On("Query", mock.Anything, "ord-3").Return(exchange.OrderUpdate{
		Status: model.OrderCancelled,
	}, nil).Once()
	trader.On("Cancel", mock.Anything, "ord-3").Return(nil).Once()
	require.NoError(t, mgr.Cancel(ctx, id))

	// Second cancel is a no-op: no further exchange calls.
	require.NoError(t, mgr.Cancel(ctx, id))
	trader.AssertNumberOfCalls(t, "Cancel", 1)
}

func TestManager_CancelRacingFillKeepsFill(t *testing.T) {
	ctx := context.Background()
	mgr, trader := newTestManager(t)

	trader.On("Place", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("ord-4", nil).Once()
	id, err := mgr.Submit(ctx, buySpec())
	require.NoError(t, err)

	// The cancel request succeeds but the reconciling poll discovers the
	// order actually filled first.
	trader.On("Cancel", mock.Anything, "ord-4").Return(nil).Once()
	trader.On("Query", mock.Anything, "ord-4").Return(exchange.OrderUpdate{
		Status:       model.OrderFilled,
		FilledQty:    decimal.NewFromFloat(0.01),
		AvgFillPrice: decimal.NewFromInt(135_000_000),
	}, nil).Once()
	require.NoError(t, mgr.Cancel(ctx, id))

	o, err := mgr.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderFilled, o.Status)
}

func TestManager_HedgeCloseFlattensFilledLeg(t *testing.T) {
	ctx := context.Background()
	mgr, trader := newTestManager(t)

	trader.On("Place", mock.Anything, "BTC", model.SideBuy, mock.Anything, mock.Anything).Return("ord-5", nil).Once()
	id, err := mgr.Submit(ctx, buySpec())
	require.NoError(t, err)

	trader.On("Query", mock.Anything, "ord-5").Return(exchange.OrderUpdate{
		Status:       model.OrderFilled,
		FilledQty:    decimal.NewFromFloat(0.01),
		AvgFillPrice: decimal.NewFromInt(135_050_000),
	}, nil).Once()
	_, err = mgr.Poll(ctx, id)
	require.NoError(t, err)

	// The hedge is an opposite-side order for exactly the filled quantity.
	trader.On("Place", mock.Anything, "BTC", model.SideSell, decimal.NewFromFloat(0.01), decimal.NewFromInt(135_050_000)).
		Return("hedge-1", nil).Once()
	trader.On("Query", mock.Anything, "hedge-1").Return(exchange.OrderUpdate{
		Status:       model.OrderFilled,
		FilledQty:    decimal.NewFromFloat(0.01),
		AvgFillPrice: decimal.NewFromInt(135_040_000),
	}, nil).Once()

	hedge, err := mgr.HedgeClose(ctx, id, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, model.OrderFilled, hedge.Status)
	assert.Equal(t, model.SideSell, hedge.Side)
	trader.AssertExpectations(t)
}

func TestManager_HedgeClosePartialQty(t *testing.T) {
	ctx := context.Background()
	mgr, trader := newTestManager(t)

	trader.On("Place", mock.Anything, "BTC", model.SideBuy, mock.Anything, mock.Anything).Return("ord-8", nil).Once()
	id, err := mgr.Submit(ctx, buySpec())
	require.NoError(t, err)

	trader.On("Query", mock.Anything, "ord-8").Return(exchange.OrderUpdate{
		Status:       model.OrderCancelled,
		FilledQty:    decimal.NewFromFloat(0.004),
		AvgFillPrice: decimal.NewFromInt(135_050_000),
	}, nil).Once()
	_, err = mgr.Poll(ctx, id)
	require.NoError(t, err)

	// Flatten only the requested net amount, not the whole fill.
	trader.On("Place", mock.Anything, "BTC", model.SideSell, decimal.NewFromFloat(0.003), decimal.NewFromInt(135_050_000)).
		Return("hedge-2", nil).Once()
	trader.On("Query", mock.Anything, "hedge-2").Return(exchange.OrderUpdate{
		Status:       model.OrderFilled,
		FilledQty:    decimal.NewFromFloat(0.003),
		AvgFillPrice: decimal.NewFromInt(135_040_000),
	}, nil).Once()

	hedge, err := mgr.HedgeClose(ctx, id, decimal.NewFromFloat(0.003))
	require.NoError(t, err)
	assert.Equal(t, model.OrderFilled, hedge.Status)
	assert.True(t, hedge.RequestedQty.Equal(decimal.NewFromFloat(0.003)))
	trader.AssertExpectations(t)
}

func TestManager_HedgeCloseWithNothingFilled(t *testing.T) {
	ctx := context.Background()
	mgr, trader := newTestManager(t)

	trader.On("Place", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("ord-6", nil).Once()
	id, err := mgr.Submit(ctx, buySpec())
	require.NoError(t, err)

	_, err = mgr.HedgeClose(ctx, id, decimal.Zero)
	assert.Error(t, err)
}

func TestManager_TimedOut(t *testing.T) {
	ctx := context.Background()
	mgr, trader := newTestManager(t)

	trader.On("Place", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("ord-7", nil).Once()
	id, err := mgr.Submit(ctx, buySpec())
	require.NoError(t, err)

	assert.False(t, mgr.TimedOut(id, time.Now()))
	assert.True(t, mgr.TimedOut(id, time.Now().Add(2*time.Second)))
	assert.False(t, mgr.TimedOut("unknown", time.Now()))
}

func TestManager_UnknownOrderAndExchange(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	_, err := mgr.Poll(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownOrder)
	assert.ErrorIs(t, mgr.Cancel(ctx, "nope"), ErrUnknownOrder)

	_, err = mgr.Submit(ctx, Spec{Exchange: "bitfinex"})
	assert.ErrorIs(t, err, ErrNoTrader)
}

func TestManager_SubmitPlaceFailure(t *testing.T) {
	ctx := context.Background()
	mgr, trader := newTestManager(t)

	trader.On("Place", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("insufficient funds")).Once()
	_, err := mgr.Submit(ctx, buySpec())
	assert.Error(t, err)
}
