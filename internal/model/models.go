package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick represents a single price update from an exchange. Only the
// latest tick per exchange is relevant; older sequence numbers are discarded.
type PriceTick struct {
	Exchange  string
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Timestamp time.Time
	Sequence  uint64
}

// FxRate is the current conversion rate for a currency pair.
type FxRate struct {
	Pair       string
	Rate       decimal.Decimal
	ObservedAt time.Time
	Source     string
}

// Opportunity is a detected cross-exchange price divergence. It is derived
// from the latest quotes and recomputed every cycle, never mutated.
type Opportunity struct {
	BuyExchange       string
	SellExchange      string
	Symbol            string
	SpreadBps         decimal.Decimal
	ImpliedEntryPrice decimal.Decimal
	ImpliedExitPrice  decimal.Decimal
	DetectedAt        time.Time
}

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the flattening side for a filled order.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is a strict forward-moving state machine:
// New -> PartiallyFilled -> Filled | Cancelled | Rejected.
type OrderStatus string

const (
	OrderNew             OrderStatus = "new"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRejected        OrderStatus = "rejected"
)

// Terminal reports whether the status can never change again.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected:
		return true
	}
	return false
}

// rank orders statuses for forward-only transition checks. Terminal states
// share the highest rank.
func (s OrderStatus) rank() int {
	switch s {
	case OrderNew:
		return 0
	case OrderPartiallyFilled:
		return 1
	default:
		return 2
	}
}

// CanTransition reports whether moving from s to next is a legal forward
// transition. A terminal status never transitions at all.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() >= s.rank()
}

// Order is one leg of a round trip on a single exchange. Owned exclusively
// by the order manager once submitted.
type Order struct {
	OrderID        string
	Exchange       string
	Side           Side
	Symbol         string
	RequestedQty   decimal.Decimal
	RequestedPrice decimal.Decimal
	FilledQty      decimal.Decimal
	AvgFillPrice   decimal.Decimal
	Status         OrderStatus
	SubmittedAt    time.Time
	LastUpdateAt   time.Time
}

// RoundTrip is a paired buy-on-one-venue / sell-on-other-venue trade treated
// as one economic unit. Immutable once closed.
type RoundTrip struct {
	RoundTripID       string
	EntryOrderID      string
	ExitOrderID       string
	RealizedPnLNative decimal.Decimal
	RealizedPnLCommon decimal.Decimal
	FeesPaid          decimal.Decimal
	SlippageBps       decimal.Decimal
	ExitReason        string
	OpenedAt          time.Time
	ClosedAt          time.Time
}

// Round trip exit reasons.
const (
	ExitReasonTakeProfit = "take_profit"
	ExitReasonMaxHold    = "max_hold"
	ExitReasonHedgeClose = "hedge_close"
	ExitReasonAborted    = "aborted"
)

// SessionStatus is the engine session status persisted with each snapshot.
type SessionStatus string

const (
	SessionRunning SessionStatus = "running"
	SessionPaused  SessionStatus = "paused"
	SessionStopped SessionStatus = "stopped"
	SessionError   SessionStatus = "error"
)

// SessionSnapshot is one append-only record of engine state at a loop
// iteration. The latest row for a session is the authoritative resume point.
type SessionSnapshot struct {
	SnapshotID string
	SessionID  string
	CreatedAt  time.Time
	LoopCount  int64
	Status     SessionStatus
	State      []byte
}

// Mode selects between simulated and live order placement.
type Mode string

const (
	ModeDryRun Mode = "dry_run"
	ModeLive   Mode = "live"
)

// RiskGuardState is the single risk state instance for a running engine,
// mutated only by the risk guard.
type RiskGuardState struct {
	KillSwitchActive    bool
	LastCheckAt         time.Time
	Mode                Mode
	ConsecutiveFailures int
}
