package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

// ==================== SchedulerStore Tests ====================

func recordRuns(t *testing.T, store *Store, taskID string, n int) {
	t.Helper()
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := range n {
		began := start.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.SchedulerStore().RecordResult(context.Background(), &domain.TaskResult{
			TaskID:         taskID,
			StartedAt:      began,
			EndedAt:        began.Add(30 * time.Second),
			Success:        true,
			ItemsProcessed: i + 1,
		}))
	}
}

func TestSchedulerStore_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	tasks := store.SchedulerStore()

	now := time.Now().UTC().Truncate(time.Millisecond)
	saved := &domain.ScheduledTask{
		ID:          domain.TaskIDStaleReindex,
		Name:        "Stale record reindex",
		Interval:    time.Hour,
		LastRun:     now.Add(-30 * time.Minute),
		NextRun:     now.Add(30 * time.Minute),
		LastSuccess: now.Add(-30 * time.Minute),
		Enabled:     true,
	}
	require.NoError(t, tasks.SaveTask(ctx, saved))

	got, err := tasks.GetTask(ctx, domain.TaskIDStaleReindex)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saved.Name, got.Name)
	assert.Equal(t, time.Hour, got.Interval)
	assert.True(t, got.Enabled)
	assert.True(t, saved.LastRun.Equal(got.LastRun))
	assert.True(t, saved.NextRun.Equal(got.NextRun))
	assert.True(t, saved.LastSuccess.Equal(got.LastSuccess))
	assert.False(t, got.Due(now))
}

func TestSchedulerStore_FreshTask(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	tasks := store.SchedulerStore()

	fresh := &domain.ScheduledTask{ID: domain.TaskIDJobQueue, Name: "Job queue", Interval: 250 * time.Millisecond, Enabled: true}
	require.NoError(t, tasks.SaveTask(ctx, fresh))

	got, err := tasks.GetTask(ctx, domain.TaskIDJobQueue)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 250*time.Millisecond, got.Interval, "sub-second intervals survive")
	assert.True(t, got.LastRun.IsZero())
	assert.True(t, got.NextRun.IsZero())
	assert.True(t, got.LastSuccess.IsZero())
	assert.True(t, got.Due(time.Now()))
}

func TestSchedulerStore_MissingTask(t *testing.T) {
	store := setupTestStore(t)

	got, err := store.SchedulerStore().GetTask(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSchedulerStore_CompletedRunIsPersisted(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	tasks := store.SchedulerStore()

	task := &domain.ScheduledTask{ID: domain.TaskIDJobQueue, Name: "Job queue", Interval: time.Minute, Enabled: true}
	require.NoError(t, tasks.SaveTask(ctx, task))

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	task.Complete(&domain.TaskResult{StartedAt: start, EndedAt: start.Add(time.Second), Error: "remote index unavailable"})
	task.Enabled = false
	require.NoError(t, tasks.SaveTask(ctx, task))

	got, err := tasks.GetTask(ctx, domain.TaskIDJobQueue)
	require.NoError(t, err)
	assert.Equal(t, "remote index unavailable", got.LastError)
	assert.True(t, got.NextRun.Equal(start.Add(time.Second+time.Minute)))
	assert.False(t, got.Enabled)
	assert.False(t, got.Due(start.Add(time.Hour)), "disabled tasks are never due")
}

func TestSchedulerStore_ListAndDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	tasks := store.SchedulerStore()

	empty, err := tasks.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, task := range []*domain.ScheduledTask{
		{ID: domain.TaskIDStaleReindex, Name: "Stale record reindex", Interval: time.Hour},
		{ID: domain.TaskIDJobQueue, Name: "Job queue", Interval: 10 * time.Second, Enabled: true},
	} {
		require.NoError(t, tasks.SaveTask(ctx, task))
	}

	listed, err := tasks.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, domain.TaskIDJobQueue, listed[0].ID)
	assert.Equal(t, domain.TaskIDStaleReindex, listed[1].ID)
	assert.False(t, listed[1].Enabled)

	require.NoError(t, tasks.DeleteTask(ctx, domain.TaskIDStaleReindex))
	got, err := tasks.GetTask(ctx, domain.TaskIDStaleReindex)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSchedulerStore_NilArguments(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.SchedulerStore().SaveTask(ctx, nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, store.SchedulerStore().RecordResult(ctx, nil), domain.ErrInvalidInput)
}

func TestSchedulerStore_History(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	tasks := store.SchedulerStore()

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, tasks.RecordResult(ctx, &domain.TaskResult{
		TaskID: domain.TaskIDJobQueue, StartedAt: start, EndedAt: start.Add(time.Second),
		Success: true, ItemsProcessed: 4,
	}))
	require.NoError(t, tasks.RecordResult(ctx, &domain.TaskResult{
		TaskID: domain.TaskIDJobQueue, StartedAt: start.Add(time.Minute), EndedAt: start.Add(time.Minute),
		Error: "remote index unavailable",
	}))

	history, err := tasks.GetTaskHistory(ctx, domain.TaskIDJobQueue, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].Success)
	assert.Equal(t, "remote index unavailable", history[0].Error)
	assert.True(t, history[1].Success)
	assert.Equal(t, 4, history[1].ItemsProcessed)
	assert.True(t, history[1].StartedAt.Equal(start))

	none, err := tasks.GetTaskHistory(ctx, domain.TaskIDStaleReindex, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSchedulerStore_HistoryLimit(t *testing.T) {
	store := setupTestStore(t)
	recordRuns(t, store, domain.TaskIDJobQueue, 5)

	history, err := store.SchedulerStore().GetTaskHistory(context.Background(), domain.TaskIDJobQueue, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 5, history[0].ItemsProcessed)
}

func TestSchedulerStore_PruneHistory(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	tasks := store.SchedulerStore()

	recordRuns(t, store, domain.TaskIDJobQueue, 10)
	recordRuns(t, store, domain.TaskIDStaleReindex, 4)
	require.NoError(t, tasks.PruneHistory(ctx, 3))

	queue, err := tasks.GetTaskHistory(ctx, domain.TaskIDJobQueue, 100)
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, []int{10, 9, 8}, []int{queue[0].ItemsProcessed, queue[1].ItemsProcessed, queue[2].ItemsProcessed})

	stale, err := tasks.GetTaskHistory(ctx, domain.TaskIDStaleReindex, 100)
	require.NoError(t, err)
	assert.Len(t, stale, 3, "pruning keeps results per task")
}

// ==================== Helper Function Tests ====================

func TestFormatNullableTime(t *testing.T) {
	assert.Nil(t, formatNullableTime(time.Time{}))

	now := time.Date(2024, 6, 1, 12, 0, 0, 500, time.FixedZone("CEST", 2*3600))
	result := formatNullableTime(now)
	assert.Equal(t, "2024-06-01T10:00:00.0000005Z", result)
	assert.Nil(t, formatTimePtr(nil))
	assert.Equal(t, result, formatTimePtr(&now))
}

func TestParseNullableTime(t *testing.T) {
	assert.True(t, parseNullableTime(sql.NullString{}).IsZero())
	assert.True(t, parseNullableTime(sql.NullString{String: "garbage", Valid: true}).IsZero())

	got := parseNullableTime(sql.NullString{String: "2024-06-01T10:00:00Z", Valid: true})
	assert.True(t, got.Equal(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)))
}

func TestBoolToInt(t *testing.T) {
	assert.Equal(t, 1, boolToInt(true))
	assert.Equal(t, 0, boolToInt(false))
}

func TestNullString(t *testing.T) {
	assert.Nil(t, nullString(""))
	assert.Equal(t, "hello", nullString("hello"))
}

func TestNullBool(t *testing.T) {
	yes, no := true, false
	assert.Nil(t, nullBool(nil))
	assert.Equal(t, 1, nullBool(&yes))
	assert.Equal(t, 0, nullBool(&no))
}
