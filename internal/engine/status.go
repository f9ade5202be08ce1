package engine

import (
	"time"

	"arbiter/internal/model"

	"github.com/shopspring/decimal"
)

// OpenTripSummary is a read-only view of the in-flight round trip.
type OpenTripSummary struct {
	RoundTripID  string
	BuyExchange  string
	SellExchange string
	Qty          decimal.Decimal
	OpenedAt     time.Time
}

// StatusReport is the pull-based view of engine state exposed to the
// dashboard collaborator. It is a value copy with no mutation path back
// into the engine.
type StatusReport struct {
	SessionID           string
	State               State
	LoopCount           int64
	Mode                model.Mode
	Risk                model.RiskGuardState
	LastOpportunity     *model.Opportunity
	OpenRoundTrip       *OpenTripSummary
	CumulativePnLCommon decimal.Decimal
	CumulativePnLNative decimal.Decimal
	DroppedTicks        uint64
}

// Status returns a consistent copy of the current engine state.
func (e *Engine) Status() StatusReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := StatusReport{
		SessionID:           e.sessionID,
		State:               e.state,
		LoopCount:           e.loopCount,
		Mode:                e.guard.Mode(),
		Risk:                e.guard.State(),
		CumulativePnLCommon: e.pnlCommon,
		CumulativePnLNative: e.pnlNative,
		DroppedTicks:        e.ticks.Dropped(),
	}
	if e.lastOpp != nil {
		opp := *e.lastOpp
		report.LastOpportunity = &opp
	}
	if e.open != nil {
		report.OpenRoundTrip = &OpenTripSummary{
			RoundTripID:  e.open.roundTripID,
			BuyExchange:  e.open.buyExchange,
			SellExchange: e.open.sellExchange,
			Qty:          e.open.qty,
			OpenedAt:     e.open.openedAt,
		}
	}
	return report
}
