package quota

import (
	"context"
	"time"
)

// Store persists quota records. Implementations must make
// DecrementIfPositive linearizable per user and BulkResetStale a single
// atomic operation; callers hold no in-process locks across these calls.
//
// Dates are calendar days represented as midnight UTC (see DateOf).
type Store interface {
	// FindCurrent returns the record with the latest last_reset_date, or
	// nil if the user has none.
	FindCurrent(ctx context.Context, userID string) (*Record, error)

	// FindForDate returns the record for exactly date, or nil.
	FindForDate(ctx context.Context, userID string, date time.Time) (*Record, error)

	// Insert creates a record. Returns ErrDuplicateKey if (userID, date)
	// already exists.
	Insert(ctx context.Context, userID string, units int, date time.Time) (*Record, error)

	// DecrementIfPositive takes one unit from the current record under an
	// exclusive lock. Returns ErrDenied at zero and ErrNotFound when the
	// user has no record.
	DecrementIfPositive(ctx context.Context, userID string) (*Record, error)

	// BulkResetStale sets units and last_reset_date = today on every
	// current record dated before today, in one statement. Older per-day
	// rows are left as history.
	BulkResetStale(ctx context.Context, today time.Time, units int) (int64, error)

	// ResetCurrent unconditionally sets the current record to units and
	// date. Returns nil if the user has no record.
	ResetCurrent(ctx context.Context, userID string, units int, date time.Time) (*Record, error)

	// History lists the user's records, newest first.
	History(ctx context.Context, userID string, limit int) ([]Record, error)
}
