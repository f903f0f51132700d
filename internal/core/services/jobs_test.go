package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

func TestJobRunner_SubmitAndList(t *testing.T) {
	f := newDefaultFixture(t)
	ctx := context.Background()

	job, err := f.jobs.Submit(ctx, domain.JobIndexItems, domain.IndexItemsPayload{Class: "Page", IDs: []int64{1}, Remaining: []int64{1}})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobPending, job.Status)
	assert.Equal(t, f.now, job.CreatedAt)

	jobs, err := f.jobs.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
}

func TestJobRunner_SubmitUnencodable(t *testing.T) {
	f := newDefaultFixture(t)
	_, err := f.jobs.Submit(context.Background(), domain.JobIndexItems, func() {})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestJobRunner_RunNextEmpty(t *testing.T) {
	f := newDefaultFixture(t)
	ran, err := f.jobs.RunNext(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestJobRunner_IndexItems(t *testing.T) {
	f := newDefaultFixture(t)
	f.add(t, page(1, "One"), page(2, "Two"))
	ctx := context.Background()

	job, err := f.jobs.Submit(ctx, domain.JobIndexItems, domain.IndexItemsPayload{
		Class: "Page", IDs: []int64{1, 2, 9}, Remaining: []int64{1, 2, 9},
	})
	require.NoError(t, err)

	steps, err := f.jobs.Drain(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, steps)

	stored, err := f.jobStore.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobComplete, stored.Status)
	assert.Equal(t, 3, stored.Steps)
	assert.Equal(t, []string{"Page 9 no longer exists, skipped"}, stored.Messages)

	var p domain.IndexItemsPayload
	require.NoError(t, json.Unmarshal(stored.Payload, &p))
	assert.Empty(t, p.Remaining)
	assert.Equal(t, []int64{1, 2, 9}, p.IDs)

	assert.True(t, f.get(t, 1).IsIndexed())
	assert.True(t, f.get(t, 2).IsIndexed())
	assert.Len(t, f.backend.ObjectIDs("test_main"), 2)
}

func TestJobRunner_IndexItemsRemovesHidden(t *testing.T) {
	f := newDefaultFixture(t)
	rec := f.add(t, page(1, "One"))
	ctx := context.Background()
	require.NoError(t, f.coordinator.Index(ctx, rec))

	rec = f.get(t, 1)
	rec.ShowInSearch = boolPtr(false)
	require.NoError(t, f.records.Save(ctx, rec))

	_, err := f.jobs.Submit(ctx, domain.JobIndexItems, domain.IndexItemsPayload{Class: "Page", IDs: []int64{1}, Remaining: []int64{1}})
	require.NoError(t, err)
	_, err = f.jobs.Drain(ctx, 0)
	require.NoError(t, err)

	assert.False(t, f.get(t, 1).IsIndexed())
	assert.Empty(t, f.backend.ObjectIDs("test_main"))
}

func TestJobRunner_QueuedCoordinator(t *testing.T) {
	f := newDefaultFixture(t)
	f.coordinator.UseQueue(f.jobs)
	ctx := context.Background()
	rec := f.add(t, article(5, "Queued"))

	require.NoError(t, f.coordinator.Index(ctx, rec))
	assert.Empty(t, f.backend.ObjectIDs("test_main"), "nothing is written until the queue runs")
	uuid := f.get(t, 5).State.SearchUUID
	require.NotEmpty(t, uuid)

	_, err := f.jobs.Drain(ctx, 0)
	require.NoError(t, err)
	_, ok := f.remote("main", uuid)
	assert.True(t, ok)
	_, ok = f.remote("articles", uuid)
	assert.True(t, ok)

	require.NoError(t, f.coordinator.Remove(ctx, f.get(t, 5)))
	_, ok = f.remote("main", uuid)
	assert.True(t, ok, "removal is queued")

	_, err = f.jobs.Drain(ctx, 0)
	require.NoError(t, err)
	_, ok = f.remote("main", uuid)
	assert.False(t, ok)
	_, ok = f.remote("articles", uuid)
	assert.False(t, ok)

	jobs, err := f.jobs.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, domain.JobDeleteItem, jobs[0].Kind)
	assert.Equal(t, []string{"removed " + uuid + " from Article indexes"}, jobs[0].Messages)
}

func TestJobRunner_ReindexAll(t *testing.T) {
	f := newFixture(t, testClasses(), testIndexes(), func(s *domain.Settings) {
		s.Reindex.BatchSize = 2
	})
	seedReindex(t, f)
	ctx := context.Background()

	job, err := f.jobs.Submit(ctx, domain.JobReindexAll, nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(job.Payload))

	ran, err := f.jobs.RunNext(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	stored, err := f.jobStore.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, stored.Status)
	assert.Equal(t, []string{
		"planned 6 candidates",
		"main/Page: 1 indexed, 0 skipped, 0 errored",
	}, stored.Messages)

	cursor, err := domain.DecodeCursor(stored.Payload)
	require.NoError(t, err)
	assert.Equal(t, 5, cursor.Remaining())

	steps, err := f.jobs.Drain(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, steps)

	stored, err = f.jobStore.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobComplete, stored.Status)
	assert.Equal(t, 4, stored.Steps)
	cursor, err = domain.DecodeCursor(stored.Payload)
	require.NoError(t, err)
	assert.True(t, cursor.Done())
	assert.Equal(t, 6, cursor.Report.Indexed)
}

func TestJobRunner_ReindexAllDiscardsIncompatibleCursor(t *testing.T) {
	f := newDefaultFixture(t)
	seedReindex(t, f)
	ctx := context.Background()

	job, err := f.jobs.Submit(ctx, domain.JobReindexAll, map[string]any{"version": 99})
	require.NoError(t, err)
	_, err = f.jobs.Drain(ctx, 0)
	require.NoError(t, err)

	stored, err := f.jobStore.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.Messages)
	assert.Contains(t, stored.Messages[0], "discarded cursor")
	assert.Equal(t, domain.JobComplete, stored.Status)
	assert.Len(t, f.backend.ObjectIDs("test_main"), 4)
}

func TestJobRunner_Failures(t *testing.T) {
	tests := []struct {
		name    string
		kind    domain.JobKind
		payload any
		message string
	}{
		{name: "unknown kind", kind: "rebuild", payload: nil, message: "unknown job kind"},
		{name: "bad index payload", kind: domain.JobIndexItems, payload: "ids", message: "decode payload"},
		{name: "bad delete payload", kind: domain.JobDeleteItem, payload: []int{1}, message: "decode payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDefaultFixture(t)
			ctx := context.Background()

			job, err := f.jobs.Submit(ctx, tt.kind, tt.payload)
			require.NoError(t, err)
			ran, err := f.jobs.RunNext(ctx)
			require.NoError(t, err)
			assert.True(t, ran)

			stored, err := f.jobStore.GetJob(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.JobFailed, stored.Status)
			require.Len(t, stored.Messages, 1)
			assert.Contains(t, stored.Messages[0], tt.message)

			ran, err = f.jobs.RunNext(ctx)
			require.NoError(t, err)
			assert.False(t, ran, "failed jobs are not retried")
		})
	}
}

func TestJobRunner_DrainMaxSteps(t *testing.T) {
	f := newDefaultFixture(t)
	f.add(t, page(1, "One"), page(2, "Two"), page(3, "Three"))
	ctx := context.Background()
	_, err := f.jobs.Submit(ctx, domain.JobIndexItems, domain.IndexItemsPayload{
		Class: "Page", IDs: []int64{1, 2, 3}, Remaining: []int64{1, 2, 3},
	})
	require.NoError(t, err)

	steps, err := f.jobs.Drain(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, steps)
	assert.False(t, f.get(t, 3).IsIndexed())

	steps, err = f.jobs.Drain(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, steps)
	assert.True(t, f.get(t, 3).IsIndexed())
}

func TestJobRunner_DrainCancelled(t *testing.T) {
	f := newDefaultFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	steps, err := f.jobs.Drain(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, steps)
}
