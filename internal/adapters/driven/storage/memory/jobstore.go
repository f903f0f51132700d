package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
)

// Ensure JobStore implements the interface.
var _ driven.JobStore = (*JobStore)(nil)

// JobStore is an in-memory implementation of driven.JobStore.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]domain.Job
	order []string
}

// NewJobStore creates a new in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]domain.Job),
	}
}

// SaveJob creates or updates a job.
func (s *JobStore) SaveJob(_ context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		s.order = append(s.order, job.ID)
	}
	s.jobs[job.ID] = copyJob(*job)
	return nil
}

// GetJob retrieves a job by id.
func (s *JobStore) GetJob(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	job = copyJob(job)
	return &job, nil
}

// NextPending returns the oldest unfinished job.
func (s *JobStore) NextPending(_ context.Context) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status == domain.JobPending || job.Status == domain.JobRunning {
			job = copyJob(job)
			return &job, nil
		}
	}
	return nil, nil
}

// ListJobs returns jobs newest first.
func (s *JobStore) ListJobs(_ context.Context, limit int) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Job, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, copyJob(s.jobs[s.order[i]]))
	}
	return out, nil
}

// PruneJobs removes finished jobs beyond the most recent keep.
func (s *JobStore) PruneJobs(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	finished := 0
	var drop []string
	for i := len(s.order) - 1; i >= 0; i-- {
		job := s.jobs[s.order[i]]
		if job.Status != domain.JobComplete && job.Status != domain.JobFailed {
			continue
		}
		finished++
		if finished > keep {
			drop = append(drop, job.ID)
		}
	}
	for _, id := range drop {
		delete(s.jobs, id)
	}
	s.order = slices.DeleteFunc(s.order, func(id string) bool {
		_, ok := s.jobs[id]
		return !ok
	})
	return nil
}

func copyJob(job domain.Job) domain.Job {
	job.Payload = slices.Clone(job.Payload)
	job.Messages = slices.Clone(job.Messages)
	return job
}
