package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `id, user_id, units_remaining, last_reset_date, created_at, updated_at`

// Repository handles quota_records PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new quota Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) FindCurrent(ctx context.Context, userID string) (*Record, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+`
		 FROM quota_records
		 WHERE user_id = $1
		 ORDER BY last_reset_date DESC
		 LIMIT 1`, userID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying current quota record: %w", err)
	}
	return rec, nil
}

func (r *Repository) FindForDate(ctx context.Context, userID string, date time.Time) (*Record, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+`
		 FROM quota_records
		 WHERE user_id = $1 AND last_reset_date = $2`, userID, date)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying quota record for date: %w", err)
	}
	return rec, nil
}

func (r *Repository) Insert(ctx context.Context, userID string, units int, date time.Time) (*Record, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO quota_records (id, user_id, units_remaining, last_reset_date)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+recordColumns, uuid.New(), userID, units, date)
	rec, err := scanRecord(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("inserting quota record: %w", err)
	}
	return rec, nil
}

// DecrementIfPositive locks the current row with SELECT ... FOR UPDATE so
// concurrent decrements and the bulk reset serialize on it.
func (r *Repository) DecrementIfPositive(ctx context.Context, userID string) (*Record, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("beginning decrement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	var units int
	err = tx.QueryRow(ctx,
		`SELECT id, units_remaining
		 FROM quota_records
		 WHERE user_id = $1
		 ORDER BY last_reset_date DESC
		 LIMIT 1
		 FOR UPDATE`, userID).Scan(&id, &units)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("locking quota record: %w", err)
	}

	if units <= 0 {
		return nil, ErrDenied
	}

	row := tx.QueryRow(ctx,
		`UPDATE quota_records
		 SET units_remaining = units_remaining - 1,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+recordColumns, id)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("decrementing quota record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing decrement: %w", err)
	}
	return rec, nil
}

// bulkResetAttempts bounds re-runs of the bulk statement after it loses a
// race with a first-touch insert.
const bulkResetAttempts = 3

// BulkResetStale touches only each user's most recent row. Moving an older
// row to today would collide with the unique (user_id, last_reset_date)
// index. The outer predicate is re-checked against the locked row version.
//
// A user whose today row is inserted while the statement runs still has
// the old row as "current" in the statement snapshot, so the statement
// fails with a unique violation. Re-running it sees the new row and skips
// that user.
func (r *Repository) BulkResetStale(ctx context.Context, today time.Time, units int) (int64, error) {
	var affected int64
	err := retry.Do(
		func() error {
			tag, err := r.pool.Exec(ctx,
				`UPDATE quota_records q
				 SET units_remaining = $2,
				     last_reset_date = $1,
				     updated_at = NOW()
				 FROM (
				     SELECT DISTINCT ON (user_id) id
				     FROM quota_records
				     ORDER BY user_id, last_reset_date DESC
				 ) cur
				 WHERE q.id = cur.id AND q.last_reset_date < $1`, today, units)
			if err != nil {
				return err
			}
			affected = tag.RowsAffected()
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(bulkResetAttempts),
		retry.Delay(10*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isUniqueViolation),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("quota: bulk reset raced a first-touch insert, re-running",
				"attempt", n+1, "today", today.Format(dateLayout))
		}),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("bulk resetting stale quota records: %w", ErrDuplicateKey)
		}
		return 0, fmt.Errorf("bulk resetting stale quota records: %w", err)
	}
	return affected, nil
}

func (r *Repository) ResetCurrent(ctx context.Context, userID string, units int, date time.Time) (*Record, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE quota_records
		 SET units_remaining = $2,
		     last_reset_date = $3,
		     updated_at = NOW()
		 WHERE id = (
		     SELECT id FROM quota_records
		     WHERE user_id = $1
		     ORDER BY last_reset_date DESC
		     LIMIT 1
		 )
		 RETURNING `+recordColumns, userID, units, date)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("resetting quota record: %w", err)
	}
	return rec, nil
}

func (r *Repository) History(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+`
		 FROM quota_records
		 WHERE user_id = $1
		 ORDER BY last_reset_date DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying quota history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning quota record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating quota history: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.UnitsRemaining,
		&rec.LastResetDate, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.LastResetDate = rec.LastResetDate.UTC()
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
