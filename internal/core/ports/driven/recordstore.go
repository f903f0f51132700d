package driven

import (
	"context"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

// RecordQuery selects records from the store.
type RecordQuery struct {
	// Classes restricts results to records of exactly these classes.
	// Empty means every class.
	Classes []string

	// Filter is an optional predicate records must satisfy.
	Filter domain.Filter

	// Limit caps the number of results; zero means no limit.
	Limit int

	// Offset skips the first results.
	Offset int
}

// RecordStore provides content records and persists their indexing state.
// Results are ordered by descending local id.
type RecordStore interface {
	// Get retrieves a record by id.
	// Returns domain.ErrNotFound if the record does not exist.
	Get(ctx context.Context, id int64) (*domain.Record, error)

	// Query returns records matching q.
	Query(ctx context.Context, q RecordQuery) ([]domain.Record, error)

	// QueryIDs returns the ids of records matching q without loading them.
	QueryIDs(ctx context.Context, q RecordQuery) ([]int64, error)

	// Save creates or updates a record. A zero ID is assigned by the store.
	Save(ctx context.Context, rec *domain.Record) error

	// SaveIndexingState updates only the indexing bookkeeping of a record.
	// Returns domain.ErrNotFound if the record does not exist.
	SaveIndexingState(ctx context.Context, id int64, state domain.IndexingState) error

	// Delete removes a record.
	Delete(ctx context.Context, id int64) error
}
