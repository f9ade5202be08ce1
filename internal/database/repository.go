package database

import (
	"context"

	"arbiter/internal/model"
)

// Repository defines the standard interface for database operations: the
// append-only session snapshot log plus the round trip ledger.
type Repository interface {
	// AppendSnapshot writes one snapshot row. Rows are never updated or
	// deleted; loop_count must be strictly increasing within a session.
	AppendSnapshot(ctx context.Context, snap model.SessionSnapshot) (string, error)

	// LatestSnapshot returns the most recent snapshot for a session, or nil
	// when the session has never written one.
	LatestSnapshot(ctx context.Context, sessionID string) (*model.SessionSnapshot, error)

	// LogRoundTrip persists a closed round trip.
	LogRoundTrip(ctx context.Context, rt model.RoundTrip) error

	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error
}
