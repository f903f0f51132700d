package driving

import (
	"context"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

// Reindexer runs bulk reindexes, either to completion or one batch at a time.
type Reindexer interface {
	// Plan enumerates candidates into a fresh cursor.
	Plan(ctx context.Context, opts domain.ReindexOptions) (*domain.ReindexCursor, error)

	// Step processes the next batch of the cursor and advances it.
	Step(ctx context.Context, cursor *domain.ReindexCursor) (*domain.StepResult, error)

	// Run plans and steps until done, pacing between batches.
	// progress, if non-nil, is called after every batch.
	Run(ctx context.Context, opts domain.ReindexOptions, progress func(domain.StepResult)) (*domain.ReindexReport, error)

	// Clear removes every document from the write indexes of the given
	// classes, or of every class when only is empty.
	Clear(ctx context.Context, only []string) error
}

// SettingsSyncer pushes index configuration to the remote service.
type SettingsSyncer interface {
	// SyncSettings pushes each configured index's settings, replicas included.
	SyncSettings(ctx context.Context) error
}

// Querier maps remote search hits back to local records.
type Querier interface {
	// Search runs a query and returns the page of viewable local records.
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchPage, error)
}
