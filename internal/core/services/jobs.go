package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
	"github.com/custodia-labs/algosync/internal/core/ports/driving"
	"github.com/custodia-labs/algosync/internal/logger"
)

// Ensure JobRunner implements the interface.
var _ driving.JobRunner = (*JobRunner)(nil)

// JobRunner executes persisted jobs one step at a time. Every step reads
// the job, processes one unit of work and persists the remaining work, so
// a runner can stop between steps without losing progress.
type JobRunner struct {
	store       driven.JobStore
	records     driven.RecordStore
	coordinator *IndexingCoordinator
	reindexer   *BulkReindexScheduler
	clock       func() time.Time
}

// NewJobRunner creates a job runner. Jobs execute inline through the
// coordinator and reindexer regardless of the coordinator's queue mode.
func NewJobRunner(
	store driven.JobStore,
	records driven.RecordStore,
	coordinator *IndexingCoordinator,
	reindexer *BulkReindexScheduler,
) *JobRunner {
	return &JobRunner{
		store:       store,
		records:     records,
		coordinator: coordinator,
		reindexer:   reindexer,
		clock:       time.Now,
	}
}

// Submit persists a new pending job.
func (r *JobRunner) Submit(ctx context.Context, kind domain.JobKind, payload any) (*domain.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s payload: %v", domain.ErrInvalidInput, kind, err)
	}
	now := r.clock()
	job := &domain.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    domain.JobPending,
		Payload:   data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	logger.Debug("queued %s job %s", kind, job.ID)
	return job, nil
}

// RunNext executes one step of the oldest unfinished job.
func (r *JobRunner) RunNext(ctx context.Context) (bool, error) {
	job, err := r.store.NextPending(ctx)
	if err != nil {
		return false, fmt.Errorf("next job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	job.Status = domain.JobRunning
	done, err := r.step(ctx, job)
	job.Steps++
	job.UpdatedAt = r.clock()
	switch {
	case err != nil:
		job.Status = domain.JobFailed
		job.AddMessage(err.Error())
		logger.Warn("job %s (%s) failed: %v", job.ID, job.Kind, err)
	case done:
		job.Status = domain.JobComplete
	}
	if saveErr := r.store.SaveJob(ctx, job); saveErr != nil {
		return true, fmt.Errorf("save job %s: %w", job.ID, saveErr)
	}
	return true, nil
}

// Drain runs steps until the queue is empty, maxSteps is reached or ctx
// is cancelled.
func (r *JobRunner) Drain(ctx context.Context, maxSteps int) (int, error) {
	steps := 0
	for maxSteps <= 0 || steps < maxSteps {
		if err := ctx.Err(); err != nil {
			return steps, err
		}
		ran, err := r.RunNext(ctx)
		if err != nil {
			return steps, err
		}
		if !ran {
			break
		}
		steps++
	}
	return steps, nil
}

// List returns recent jobs, newest first.
func (r *JobRunner) List(ctx context.Context, limit int) ([]domain.Job, error) {
	return r.store.ListJobs(ctx, limit)
}

// step dispatches on the job kind and reports whether the job is finished.
func (r *JobRunner) step(ctx context.Context, job *domain.Job) (bool, error) {
	switch job.Kind {
	case domain.JobIndexItems:
		return r.stepIndexItems(ctx, job)
	case domain.JobDeleteItem:
		return r.stepDeleteItem(ctx, job)
	case domain.JobReindexAll:
		return r.stepReindexAll(ctx, job)
	default:
		return true, fmt.Errorf("%w: unknown job kind %q", domain.ErrInvalidInput, job.Kind)
	}
}

// stepIndexItems indexes the next remaining record. Failures are recorded
// on the record and in the job messages; the job moves on.
func (r *JobRunner) stepIndexItems(ctx context.Context, job *domain.Job) (bool, error) {
	var p domain.IndexItemsPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return true, fmt.Errorf("%w: decode payload: %v", domain.ErrInvalidInput, err)
	}
	if len(p.Remaining) == 0 {
		return true, nil
	}
	id := p.Remaining[0]
	p.Remaining = p.Remaining[1:]

	rec, err := r.records.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		job.AddMessage(fmt.Sprintf("%s %d no longer exists, skipped", p.Class, id))
	case err != nil:
		job.AddMessage(fmt.Sprintf("load %s %d: %v", p.Class, id, err))
	case r.coordinator.classes.CanIndex(rec):
		if err := r.coordinator.index(ctx, rec); err != nil {
			job.AddMessage(err.Error())
		}
	case rec.State.SearchUUID != "":
		if err := r.coordinator.remove(ctx, rec); err != nil {
			job.AddMessage(err.Error())
		}
	default:
		job.AddMessage(fmt.Sprintf("%s %d is not indexable, skipped", p.Class, id))
	}

	data, err := json.Marshal(p)
	if err != nil {
		return true, err
	}
	job.Payload = data
	return len(p.Remaining) == 0, nil
}

// stepDeleteItem retracts one search uuid from every index of the class.
func (r *JobRunner) stepDeleteItem(ctx context.Context, job *domain.Job) (bool, error) {
	var p domain.DeleteItemPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return true, fmt.Errorf("%w: decode payload: %v", domain.ErrInvalidInput, err)
	}
	if p.SearchUUID == "" {
		return true, nil
	}
	if err := r.coordinator.deleteRemote(ctx, p.Class, p.SearchUUID); err != nil {
		return true, err
	}
	job.AddMessage(fmt.Sprintf("removed %s from %s indexes", p.SearchUUID, p.Class))
	return true, nil
}

// stepReindexAll processes one batch of a bulk reindex. An empty payload
// or a cursor written by an incompatible version restarts enumeration.
func (r *JobRunner) stepReindexAll(ctx context.Context, job *domain.Job) (bool, error) {
	var cursor *domain.ReindexCursor
	if len(job.Payload) == 0 || string(job.Payload) == "null" {
		planned, err := r.reindexer.Plan(ctx, domain.ReindexOptions{})
		if err != nil {
			return true, err
		}
		cursor = planned
		job.AddMessage(fmt.Sprintf("planned %d candidates", cursor.Total))
	} else {
		decoded, err := domain.DecodeCursor(job.Payload)
		if errors.Is(err, domain.ErrIncompatibleCursor) {
			job.AddMessage(fmt.Sprintf("discarded cursor (%v), restarting enumeration", err))
			decoded, err = r.reindexer.Plan(ctx, domain.ReindexOptions{})
		}
		if err != nil {
			return true, err
		}
		cursor = decoded
	}

	res, err := r.reindexer.Step(ctx, cursor)
	if err != nil {
		return true, err
	}
	if res.Index != "" {
		job.AddMessage(fmt.Sprintf("%s/%s: %d indexed, %d skipped, %d errored",
			res.Index, res.Class, res.Report.Indexed, res.Report.Skipped, res.Report.Errored))
	}
	data, err := cursor.Encode()
	if err != nil {
		return true, err
	}
	job.Payload = data
	return cursor.Done(), nil
}
