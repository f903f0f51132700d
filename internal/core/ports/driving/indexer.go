package driving

import (
	"context"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

// Indexer keeps the remote indexes consistent with single records.
type Indexer interface {
	// Index writes a record to every index it routes to. Records that may
	// not be indexed are removed instead.
	Index(ctx context.Context, rec *domain.Record) error

	// Remove deletes a record's document from its indexes.
	// Returns domain.ErrNotIndexed if the record never had a search identity.
	Remove(ctx context.Context, rec *domain.Record) error

	// IndexByID loads a record and indexes it.
	IndexByID(ctx context.Context, class string, id int64) error

	// Duplicate saves a copy of rec with a fresh search identity.
	Duplicate(ctx context.Context, rec *domain.Record) (*domain.Record, error)

	// Handle dispatches a record lifecycle event.
	Handle(ctx context.Context, ev domain.Event) error

	// Inspect compares the local document of a record with the remote copies.
	Inspect(ctx context.Context, class string, id int64) (*Inspection, error)
}

// Inspection is a local-versus-remote view of one record.
type Inspection struct {
	Record *domain.Record

	// Local is the document the record currently extracts to.
	Local   *domain.Document
	Dropped []domain.FieldError

	// Indexes are the logical write indexes the record routes to.
	Indexes []string

	// Remote holds the stored document per logical index; missing
	// documents are absent from the map.
	Remote map[string]*domain.Document

	// RemoteErrors holds lookup failures per logical index.
	RemoteErrors map[string]string

	// Settings holds the remote settings per logical index.
	Settings map[string]map[string]any
}

// InSync reports whether every routed index holds the local document.
func (i *Inspection) InSync() bool {
	if i.Local == nil {
		return false
	}
	for _, name := range i.Indexes {
		remote, ok := i.Remote[name]
		if !ok || !domain.SameContent(i.Local, remote, domain.KeyIndexedTimestamp) {
			return false
		}
	}
	return true
}
