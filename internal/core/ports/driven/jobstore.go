package driven

import (
	"context"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

// JobStore persists asynchronous indexing jobs.
type JobStore interface {
	// SaveJob creates or updates a job by ID.
	SaveJob(ctx context.Context, job *domain.Job) error

	// GetJob retrieves a job by ID.
	// Returns domain.ErrNotFound if the job does not exist.
	GetJob(ctx context.Context, id string) (*domain.Job, error)

	// NextPending returns the oldest pending or running job.
	// Returns nil and no error if the queue is empty.
	NextPending(ctx context.Context) (*domain.Job, error)

	// ListJobs returns the most recently created jobs first.
	// A zero limit returns every job.
	ListJobs(ctx context.Context, limit int) ([]domain.Job, error)

	// PruneJobs removes finished jobs, keeping the most recent 'keep'.
	PruneJobs(ctx context.Context, keep int) error
}
