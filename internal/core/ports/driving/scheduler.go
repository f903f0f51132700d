package driving

import "context"

// Scheduler runs the worker's recurring tasks: draining the job queue and
// enqueueing stale-record reindexes.
type Scheduler interface {
	// Start begins running scheduled tasks.
	// Blocks until context is cancelled or an error occurs.
	Start(ctx context.Context) error

	// Stop gracefully stops all running tasks.
	Stop() error
}
