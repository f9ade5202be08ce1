package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"arbiter/internal/model"

	"github.com/shopspring/decimal"
)

// persistedState is the serialized engine state carried inside each session
// snapshot row.
type persistedState struct {
	State               State              `json:"state"`
	PnLCommon           decimal.Decimal    `json:"pnl_common"`
	PnLNative           decimal.Decimal    `json:"pnl_native"`
	Mode                model.Mode         `json:"mode"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	LastOpportunity     *model.Opportunity `json:"last_opportunity,omitempty"`
	OpenTrip            *persistedTrip     `json:"open_round_trip,omitempty"`
}

// persistedTrip is the resumable summary of an in-flight round trip.
type persistedTrip struct {
	RoundTripID  string          `json:"round_trip_id"`
	BuyExchange  string          `json:"buy_exchange"`
	SellExchange string          `json:"sell_exchange"`
	BuyOrderID   string          `json:"buy_order_id"`
	SellOrderID  string          `json:"sell_order_id"`
	Qty          decimal.Decimal `json:"qty"`
	OpenedAt     time.Time       `json:"opened_at"`
}

// snapshot writes one snapshot row for the just-finished iteration, with a
// bounded number of retries, and advances the loop counter on success.
func (e *Engine) snapshot(ctx context.Context, status model.SessionStatus) error {
	e.mu.Lock()
	snap := model.SessionSnapshot{
		SessionID: e.sessionID,
		CreatedAt: time.Now(),
		LoopCount: e.loopCount,
		Status:    status,
	}
	state := persistedState{
		State:               e.state,
		PnLCommon:           e.pnlCommon,
		PnLNative:           e.pnlNative,
		Mode:                e.guard.Mode(),
		ConsecutiveFailures: e.guard.State().ConsecutiveFailures,
		LastOpportunity:     e.lastOpp,
	}
	if e.open != nil {
		state.OpenTrip = &persistedTrip{
			RoundTripID:  e.open.roundTripID,
			BuyExchange:  e.open.buyExchange,
			SellExchange: e.open.sellExchange,
			BuyOrderID:   e.open.buyOrderID,
			SellOrderID:  e.open.sellOrderID,
			Qty:          e.open.qty,
			OpenedAt:     e.open.openedAt,
		}
	}
	e.mu.Unlock()

	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("engine: serialize state: %w", err)
	}
	snap.State = blob

	retries := e.cfg.Order.SnapshotRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if _, lastErr = e.repo.AppendSnapshot(ctx, snap); lastErr == nil {
			e.mu.Lock()
			e.loopCount++
			e.mu.Unlock()
			return nil
		}
		e.logger.Warn("Engine: snapshot write failed, retrying",
			"attempt", attempt, "loopCount", snap.LoopCount, "error", lastErr)
	}
	return lastErr
}

// writeFinalSnapshot records the terminal session status. Best effort: the
// engine is already stopping.
func (e *Engine) writeFinalSnapshot(ctx context.Context, status model.SessionStatus) {
	if err := e.snapshot(ctx, status); err != nil {
		e.logger.Error("Engine: final snapshot write failed", "error", err)
	}
}

// persistRoundTrip writes a closed round trip to the ledger with the same
// bounded retry policy as snapshots.
func (e *Engine) persistRoundTrip(ctx context.Context, rt model.RoundTrip) error {
	retries := e.cfg.Order.SnapshotRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if lastErr = e.repo.LogRoundTrip(ctx, rt); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// resume restores the engine from the latest snapshot for its session, if
// any, so a restarted session continues at the next loop iteration instead
// of from idle.
func (e *Engine) resume(ctx context.Context) error {
	latest, err := e.repo.LatestSnapshot(ctx, e.sessionID)
	if err != nil {
		return fmt.Errorf("engine: resume: %w", err)
	}
	if latest == nil {
		e.logger.Info("Engine: fresh session", "session", e.sessionID)
		e.setState(StateScanning)
		return nil
	}

	var state persistedState
	if err := json.Unmarshal(latest.State, &state); err != nil {
		return fmt.Errorf("engine: resume: corrupt snapshot %s: %w", latest.SnapshotID, err)
	}

	e.mu.Lock()
	e.loopCount = latest.LoopCount + 1
	e.pnlCommon = state.PnLCommon
	e.pnlNative = state.PnLNative
	e.lastOpp = state.LastOpportunity
	e.mu.Unlock()

	if state.OpenTrip != nil {
		// Orders from the previous process are no longer tracked locally;
		// they need operator reconciliation before trading resumes safely.
		e.logger.Error("Engine: snapshot carries an open round trip, manual reconciliation required",
			"roundTripID", state.OpenTrip.RoundTripID,
			"buyOrderID", state.OpenTrip.BuyOrderID,
			"sellOrderID", state.OpenTrip.SellOrderID)
		e.guard.TripKillSwitch("unreconciled open round trip in resume snapshot")
	}

	e.logger.Info("Engine: resumed session",
		"session", e.sessionID, "loopCount", latest.LoopCount+1, "snapshotStatus", latest.Status)
	e.setState(StateScanning)
	return nil
}
