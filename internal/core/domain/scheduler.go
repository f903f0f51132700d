package domain

import "time"

// Built-in worker tasks.
const (
	// TaskIDJobQueue drains pending indexing jobs.
	TaskIDJobQueue = "job-queue"

	// TaskIDStaleReindex enqueues a reindex-all job for records not indexed
	// within the stale window.
	TaskIDStaleReindex = "stale-reindex"
)

// ScheduledTask is the persisted state of a recurring worker task.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration
	Enabled  bool

	// LastRun and NextRun are zero until the task first runs.
	LastRun time.Time
	NextRun time.Time

	// LastSuccess is when the task last finished without error; LastError
	// holds the message of the most recent failure and is cleared on success.
	LastSuccess time.Time
	LastError   string
}

// Due reports whether an enabled task should run at now.
func (t *ScheduledTask) Due(now time.Time) bool {
	if !t.Enabled {
		return false
	}
	return t.NextRun.IsZero() || !t.NextRun.After(now)
}

// Complete records the outcome of a run and schedules the next one.
func (t *ScheduledTask) Complete(res *TaskResult) {
	t.LastRun = res.StartedAt
	t.NextRun = res.EndedAt.Add(t.Interval)
	if res.Success {
		t.LastError = ""
		t.LastSuccess = res.EndedAt
		return
	}
	t.LastError = res.Error
}

// TaskResult is one entry of a task's run history.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// ItemsProcessed counts job steps run or records enqueued.
	ItemsProcessed int
}

// SchedulerConfig configures the worker.
type SchedulerConfig struct {
	Enabled bool

	// TickInterval is how often due tasks are checked.
	TickInterval time.Duration

	TaskConfigs map[string]TaskConfig
}

// TaskConfig enables a task and sets its interval.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// GetTaskConfig returns the configuration of taskID, or the zero value
// (disabled) when the task is not configured.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	if c.TaskConfigs == nil {
		return TaskConfig{}
	}
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig drains the job queue every ten seconds and
// enqueues a stale-record reindex every hour.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:      true,
		TickInterval: 10 * time.Second,
		TaskConfigs: map[string]TaskConfig{
			TaskIDJobQueue:     {Enabled: true, Interval: 10 * time.Second},
			TaskIDStaleReindex: {Enabled: true, Interval: time.Hour},
		},
	}
}
