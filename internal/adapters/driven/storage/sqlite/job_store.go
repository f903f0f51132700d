package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
)

// jobStore implements driven.JobStore. Submission order is the table's
// rowid order, which upserts preserve.
type jobStore struct {
	store *Store
}

var _ driven.JobStore = (*jobStore)(nil)

const jobColumns = "id, kind, status, payload, steps, messages, created_at, updated_at"

// SaveJob creates or updates a job.
func (s *jobStore) SaveJob(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidInput
	}
	messages := job.Messages
	if messages == nil {
		messages = []string{}
	}
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshalling job messages: %w", err)
	}
	var payload any
	if len(job.Payload) > 0 {
		payload = string(job.Payload)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			status = excluded.status,
			payload = excluded.payload,
			steps = excluded.steps,
			messages = excluded.messages,
			updated_at = excluded.updated_at
	`, job.ID, string(job.Kind), string(job.Status), payload, job.Steps, string(messagesJSON),
		formatNullableTime(job.CreatedAt), formatNullableTime(job.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by id.
func (s *jobStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

// NextPending returns the oldest pending or running job, or nil.
func (s *jobStore) NextPending(ctx context.Context) (*domain.Job, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN (?, ?)
		ORDER BY rowid ASC
		LIMIT 1
	`, string(domain.JobPending), string(domain.JobRunning))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// ListJobs returns jobs newest first. A zero limit returns every job.
func (s *jobStore) ListJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs ORDER BY rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	return collect(rows, "jobs", scanJob)
}

// PruneJobs removes finished jobs beyond the most recent keep.
func (s *jobStore) PruneJobs(ctx context.Context, keep int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE status IN (?, ?)
		AND rowid NOT IN (
			SELECT rowid FROM jobs
			WHERE status IN (?, ?)
			ORDER BY rowid DESC
			LIMIT ?
		)
	`, string(domain.JobComplete), string(domain.JobFailed),
		string(domain.JobComplete), string(domain.JobFailed), keep)
	if err != nil {
		return fmt.Errorf("pruning jobs: %w", err)
	}
	return nil
}

func scanJob(row scanner) (*domain.Job, error) {
	var job domain.Job
	var kind, status, messagesJSON string
	var payload, createdAt, updatedAt sql.NullString

	if err := row.Scan(&job.ID, &kind, &status, &payload, &job.Steps,
		&messagesJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	if payload.Valid {
		job.Payload = json.RawMessage(payload.String)
	}
	if err := json.Unmarshal([]byte(messagesJSON), &job.Messages); err != nil {
		return nil, fmt.Errorf("unmarshalling job messages: %w", err)
	}
	if len(job.Messages) == 0 {
		job.Messages = nil
	}
	job.CreatedAt = parseNullableTime(createdAt)
	job.UpdatedAt = parseNullableTime(updatedAt)
	return &job, nil
}
