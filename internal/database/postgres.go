package database

import (
	"context"
	"errors"
	"fmt"

	"arbiter/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository on a pgx connection pool.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// Migrate creates the snapshot log and round trip ledger tables.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS session_snapshots (
		snapshot_id UUID PRIMARY KEY,
		session_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		loop_count BIGINT NOT NULL,
		status VARCHAR(10) NOT NULL,
		serialized_state JSONB NOT NULL,
		UNIQUE (session_id, loop_count)
	);
	CREATE INDEX IF NOT EXISTS idx_session_snapshots_latest
		ON session_snapshots (session_id, loop_count DESC);

	CREATE TABLE IF NOT EXISTS round_trips (
		round_trip_id UUID PRIMARY KEY,
		entry_order_id VARCHAR(64) NOT NULL,
		exit_order_id VARCHAR(64),
		realized_pnl_native NUMERIC(30, 10) NOT NULL,
		realized_pnl_common NUMERIC(30, 10) NOT NULL,
		fees_paid NUMERIC(30, 10) NOT NULL,
		slippage_bps NUMERIC(20, 6) NOT NULL,
		exit_reason VARCHAR(32) NOT NULL,
		opened_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ NOT NULL
	);`
	_, err := r.Pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// AppendSnapshot inserts one snapshot row and returns its generated id.
// The unique (session_id, loop_count) constraint rejects a duplicate or
// concurrent writer for the same iteration.
func (r *PostgresRepository) AppendSnapshot(ctx context.Context, snap model.SessionSnapshot) (string, error) {
	id := snap.SnapshotID
	if id == "" {
		id = uuid.NewString()
	}
	const q = `
	INSERT INTO session_snapshots (snapshot_id, session_id, created_at, loop_count, status, serialized_state)
	VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.Pool.Exec(ctx, q, id, snap.SessionID, snap.CreatedAt, snap.LoopCount, string(snap.Status), snap.State)
	if err != nil {
		return "", fmt.Errorf("database: append snapshot: %w", err)
	}
	return id, nil
}

// LatestSnapshot returns the highest-loop_count row for the session, which
// is the authoritative resume point.
func (r *PostgresRepository) LatestSnapshot(ctx context.Context, sessionID string) (*model.SessionSnapshot, error) {
	const q = `
	SELECT snapshot_id, session_id, created_at, loop_count, status, serialized_state
	FROM session_snapshots
	WHERE session_id = $1
	ORDER BY loop_count DESC
	LIMIT 1`

	var snap model.SessionSnapshot
	var status string
	err := r.Pool.QueryRow(ctx, q, sessionID).Scan(
		&snap.SnapshotID, &snap.SessionID, &snap.CreatedAt, &snap.LoopCount, &status, &snap.State,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("database: latest snapshot: %w", err)
	}
	snap.Status = model.SessionStatus(status)
	return &snap, nil
}

// LogRoundTrip appends a closed round trip to the ledger.
func (r *PostgresRepository) LogRoundTrip(ctx context.Context, rt model.RoundTrip) error {
	const q = `
	INSERT INTO round_trips (round_trip_id, entry_order_id, exit_order_id,
		realized_pnl_native, realized_pnl_common, fees_paid, slippage_bps,
		exit_reason, opened_at, closed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	// Decimals travel as strings so the NUMERIC columns keep full precision.
	_, err := r.Pool.Exec(ctx, q,
		rt.RoundTripID, rt.EntryOrderID, rt.ExitOrderID,
		rt.RealizedPnLNative.String(), rt.RealizedPnLCommon.String(), rt.FeesPaid.String(), rt.SlippageBps.String(),
		rt.ExitReason, rt.OpenedAt, rt.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("database: log round trip: %w", err)
	}
	return nil
}
