//go:build integration

package quota

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lingoloop/lingoloop/internal/database"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "lingoloop_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/lingoloop_test?sslmode=disable", host, port.Port())

	migrations, err := filepath.Abs("../../migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dsn, migrations))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestRepository_Postgres(t *testing.T) {
	pool := setupPostgres(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	today := DateOf(day1, time.UTC)

	t.Run("duplicate insert", func(t *testing.T) {
		_, err := repo.Insert(ctx, "dup", 5, today)
		require.NoError(t, err)
		_, err = repo.Insert(ctx, "dup", 5, today)
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("concurrent decrements never go below zero", func(t *testing.T) {
		_, err := repo.Insert(ctx, "racer", 5, today)
		require.NoError(t, err)

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			ok     int
			denied int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.DecrementIfPositive(ctx, "racer")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ErrDenied):
					denied++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 5, ok)
		assert.Equal(t, 15, denied)
		rec, err := repo.FindCurrent(ctx, "racer")
		require.NoError(t, err)
		assert.Equal(t, 0, rec.UnitsRemaining)
	})

	t.Run("decrement without a record", func(t *testing.T) {
		_, err := repo.DecrementIfPositive(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("bulk reset touches only current stale rows", func(t *testing.T) {
		tomorrow := today.AddDate(0, 0, 1)
		yesterday := today.AddDate(0, 0, -1)

		_, err := repo.Insert(ctx, "hist", 1, yesterday)
		require.NoError(t, err)
		_, err = repo.Insert(ctx, "hist", 2, today)
		require.NoError(t, err)

		n, err := repo.BulkResetStale(ctx, tomorrow, 5)
		require.NoError(t, err)
		// dup, racer and hist each have one current row dated today.
		assert.Equal(t, int64(3), n)

		records, err := repo.History(ctx, "hist", 10)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.True(t, records[0].LastResetDate.Equal(tomorrow))
		assert.Equal(t, 5, records[0].UnitsRemaining)
		assert.True(t, records[1].LastResetDate.Equal(yesterday))
		assert.Equal(t, 1, records[1].UnitsRemaining)

		n, err = repo.BulkResetStale(ctx, tomorrow, 5)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("service on postgres", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(day1.AddDate(0, 0, 3))
		svc := newTestService(t, repo, clock)

		rec, err := svc.GetOrCreateToday(ctx, "svc")
		require.NoError(t, err)
		assert.Equal(t, 5, rec.UnitsRemaining)

		rec, err = svc.Consume(ctx, "svc")
		require.NoError(t, err)
		assert.Equal(t, 4, rec.UnitsRemaining)

		rec, err = svc.ForceResetUser(ctx, "svc")
		require.NoError(t, err)
		assert.Equal(t, 5, rec.UnitsRemaining)
	})

	t.Run("bulk reset survives a concurrent first-touch insert", func(t *testing.T) {
		day := today.AddDate(0, 0, 10)
		_, err := repo.Insert(ctx, "late", 0, day.AddDate(0, 0, -1))
		require.NoError(t, err)

		// Hold an uncommitted insert of the new day's row so the bulk
		// statement blocks on the unique index and then conflicts.
		tx, err := pool.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)
		_, err = tx.Exec(ctx,
			`INSERT INTO quota_records (id, user_id, units_remaining, last_reset_date)
			 VALUES (gen_random_uuid(), 'late', 4, $1)`, day)
		require.NoError(t, err)

		type result struct {
			n   int64
			err error
		}
		done := make(chan result, 1)
		go func() {
			n, err := repo.BulkResetStale(ctx, day, 5)
			done <- result{n, err}
		}()

		require.Eventually(t, func() bool {
			var waiting int
			err := pool.QueryRow(ctx,
				`SELECT count(*) FROM pg_stat_activity
				 WHERE wait_event_type = 'Lock' AND query LIKE 'UPDATE quota_records q%'`).Scan(&waiting)
			return err == nil && waiting > 0
		}, 10*time.Second, 20*time.Millisecond)

		require.NoError(t, tx.Commit(ctx))

		select {
		case res := <-done:
			require.NoError(t, res.err)
			assert.Positive(t, res.n)
		case <-time.After(10 * time.Second):
			t.Fatal("bulk reset did not finish")
		}

		records, err := repo.History(ctx, "late", 10)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.True(t, records[0].LastResetDate.Equal(day))
		assert.Equal(t, 4, records[0].UnitsRemaining, "the concurrently inserted row is left alone")
		assert.True(t, records[1].LastResetDate.Equal(day.AddDate(0, 0, -1)))
		assert.Equal(t, 0, records[1].UnitsRemaining)
	})
}
