package driving

import (
	"context"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

// JobRunner queues and executes asynchronous indexing jobs.
type JobRunner interface {
	// Submit persists a new pending job. payload is encoded as JSON.
	Submit(ctx context.Context, kind domain.JobKind, payload any) (*domain.Job, error)

	// RunNext executes one step of the oldest pending job.
	// Returns false when the queue is empty.
	RunNext(ctx context.Context) (bool, error)

	// Drain runs steps until the queue is empty or maxSteps is reached.
	// A zero maxSteps means no limit. Returns the number of steps run.
	Drain(ctx context.Context, maxSteps int) (int, error)

	// List returns recent jobs, newest first.
	List(ctx context.Context, limit int) ([]domain.Job, error)
}
