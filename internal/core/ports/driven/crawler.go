package driven

import (
	"context"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

// Crawler renders a record's page and extracts its main content as text.
type Crawler interface {
	// MainContent returns the plain text of the record's main content.
	// Failures are logged by the implementation and yield an empty string.
	MainContent(ctx context.Context, rec *domain.Record) string
}
