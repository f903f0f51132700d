package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
)

// Ensure RecordStore implements the interface.
var _ driven.RecordStore = (*RecordStore)(nil)

// RecordStore is an in-memory implementation of driven.RecordStore.
// Records are stored as deep copies so callers cannot mutate them in place.
type RecordStore struct {
	mu      sync.RWMutex
	records map[int64]*domain.Record
	nextID  int64
}

// NewRecordStore creates a new in-memory record store seeded with records.
func NewRecordStore(records ...*domain.Record) *RecordStore {
	s := &RecordStore{
		records: make(map[int64]*domain.Record),
	}
	for _, rec := range records {
		_ = s.Save(context.Background(), rec)
	}
	return s
}

// Get retrieves a record by id.
func (s *RecordStore) Get(_ context.Context, id int64) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

// Query returns matching records by descending id.
func (s *RecordStore) Query(_ context.Context, q driven.RecordQuery) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.match(q)
	out := make([]domain.Record, 0, len(matched))
	for _, rec := range matched {
		out = append(out, *rec.Clone())
	}
	return out, nil
}

// QueryIDs returns the ids of matching records by descending id.
func (s *RecordStore) QueryIDs(_ context.Context, q driven.RecordQuery) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.match(q)
	ids := make([]int64, 0, len(matched))
	for _, rec := range matched {
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

// match must be called with the lock held.
func (s *RecordStore) match(q driven.RecordQuery) []*domain.Record {
	var out []*domain.Record
	for _, rec := range s.records {
		if len(q.Classes) > 0 && !slices.Contains(q.Classes, rec.ClassName) {
			continue
		}
		if q.Filter != nil && !q.Filter.Match(rec) {
			continue
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b *domain.Record) int {
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Save stores or updates a record, assigning an id when it is zero.
func (s *RecordStore) Save(_ context.Context, rec *domain.Record) error {
	if rec == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == 0 {
		s.nextID++
		rec.ID = s.nextID
	} else if rec.ID > s.nextID {
		s.nextID = rec.ID
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

// SaveIndexingState replaces the indexing state of a stored record.
func (s *RecordStore) SaveIndexingState(_ context.Context, id int64, state domain.IndexingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if state.LastIndexedAt != nil {
		t := *state.LastIndexedAt
		state.LastIndexedAt = &t
	}
	rec.State = state
	return nil
}

// Delete removes a record.
func (s *RecordStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}
