package driven

import (
	"context"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

// SearchBackend is the remote search service account.
type SearchBackend interface {
	// Index returns a handle for the named remote index.
	// The name is used verbatim; environment prefixing happens in core.
	Index(name string) RemoteIndex
}

// RemoteIndex is one index on the remote search service.
// Implementations map transport failures to domain.ErrRemoteUnavailable,
// refusals to domain.ErrRemoteRejected and missing objects to domain.ErrNotFound.
type RemoteIndex interface {
	// Name returns the remote index name.
	Name() string

	// SaveObjects upserts documents by objectID.
	SaveObjects(ctx context.Context, docs []*domain.Document) error

	// DeleteObject removes a document. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, objectID string) error

	// GetObject retrieves a stored document.
	GetObject(ctx context.Context, objectID string) (*domain.Document, error)

	// Search runs a full-text query.
	Search(ctx context.Context, query string, params domain.SearchParams) (*domain.SearchResponse, error)

	// SetSettings replaces the index configuration.
	SetSettings(ctx context.Context, settings map[string]any) error

	// GetSettings returns the index configuration.
	GetSettings(ctx context.Context) (map[string]any, error)

	// ClearObjects removes every document, keeping settings.
	ClearObjects(ctx context.Context) error
}
