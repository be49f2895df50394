package quota

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// MemoryStore is an embedded Store for single-instance development and
// tests. One mutex serializes every operation, which gives the same
// guarantees the Postgres row lock gives per user.
type MemoryStore struct {
	clock clockwork.Clock

	mu      sync.Mutex
	records map[uuid.UUID]*Record
	byUser  map[string][]uuid.UUID
}

// NewMemoryStore creates an empty MemoryStore. clock stamps created_at
// and updated_at.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		clock:   clock,
		records: make(map[uuid.UUID]*Record),
		byUser:  make(map[string][]uuid.UUID),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) FindCurrent(ctx context.Context, userID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.current(userID); cur != nil {
		return copyRecord(cur), nil
	}
	return nil, nil
}

func (s *MemoryStore) FindForDate(ctx context.Context, userID string, date time.Time) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec := s.forDate(userID, date); rec != nil {
		return copyRecord(rec), nil
	}
	return nil, nil
}

func (s *MemoryStore) Insert(ctx context.Context, userID string, units int, date time.Time) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forDate(userID, date) != nil {
		return nil, ErrDuplicateKey
	}

	now := s.clock.Now()
	rec := &Record{
		ID:             uuid.New(),
		UserID:         userID,
		UnitsRemaining: units,
		LastResetDate:  date,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.records[rec.ID] = rec
	s.byUser[userID] = append(s.byUser[userID], rec.ID)
	return copyRecord(rec), nil
}

func (s *MemoryStore) DecrementIfPositive(ctx context.Context, userID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current(userID)
	if cur == nil {
		return nil, ErrNotFound
	}
	if cur.UnitsRemaining <= 0 {
		return nil, ErrDenied
	}
	cur.UnitsRemaining--
	cur.UpdatedAt = s.clock.Now()
	return copyRecord(cur), nil
}

func (s *MemoryStore) BulkResetStale(ctx context.Context, today time.Time, units int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var affected int64
	for userID := range s.byUser {
		cur := s.current(userID)
		if cur == nil || !cur.LastResetDate.Before(today) {
			continue
		}
		cur.UnitsRemaining = units
		cur.LastResetDate = today
		cur.UpdatedAt = now
		affected++
	}
	return affected, nil
}

func (s *MemoryStore) ResetCurrent(ctx context.Context, userID string, units int, date time.Time) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current(userID)
	if cur == nil {
		return nil, nil
	}
	if other := s.forDate(userID, date); other != nil && other.ID != cur.ID {
		return nil, ErrDuplicateKey
	}
	cur.UnitsRemaining = units
	cur.LastResetDate = date
	cur.UpdatedAt = s.clock.Now()
	return copyRecord(cur), nil
}

func (s *MemoryStore) History(ctx context.Context, userID string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []Record
	for _, id := range s.byUser[userID] {
		records = append(records, *s.records[id])
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastResetDate.After(records[j].LastResetDate)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// current must be called with mu held.
func (s *MemoryStore) current(userID string) *Record {
	var cur *Record
	for _, id := range s.byUser[userID] {
		rec := s.records[id]
		if cur == nil || rec.LastResetDate.After(cur.LastResetDate) {
			cur = rec
		}
	}
	return cur
}

// forDate must be called with mu held.
func (s *MemoryStore) forDate(userID string, date time.Time) *Record {
	for _, id := range s.byUser[userID] {
		if rec := s.records[id]; rec.LastResetDate.Equal(date) {
			return rec
		}
	}
	return nil
}

func copyRecord(r *Record) *Record {
	c := *r
	return &c
}
