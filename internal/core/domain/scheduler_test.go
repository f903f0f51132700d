package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	assert.True(t, config.Enabled)
	assert.Equal(t, 10*time.Second, config.TickInterval)
	assert.Len(t, config.TaskConfigs, 2)

	queueCfg := config.TaskConfigs[TaskIDJobQueue]
	assert.True(t, queueCfg.Enabled)
	assert.Equal(t, 10*time.Second, queueCfg.Interval)

	staleCfg := config.TaskConfigs[TaskIDStaleReindex]
	assert.True(t, staleCfg.Enabled)
	assert.Equal(t, 1*time.Hour, staleCfg.Interval)
}

func TestSchedulerConfig_GetTaskConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	// Existing task
	staleCfg := config.GetTaskConfig(TaskIDStaleReindex)
	assert.True(t, staleCfg.Enabled)
	assert.Equal(t, time.Hour, staleCfg.Interval)

	// Non-existent task
	unknownCfg := config.GetTaskConfig("unknown-task")
	assert.False(t, unknownCfg.Enabled)
	assert.Equal(t, time.Duration(0), unknownCfg.Interval)
}

func TestSchedulerConfig_GetTaskConfig_NilMap(t *testing.T) {
	config := SchedulerConfig{
		Enabled:     true,
		TaskConfigs: nil,
	}

	cfg := config.GetTaskConfig("any-task")
	assert.False(t, cfg.Enabled)
	assert.Equal(t, time.Duration(0), cfg.Interval)
}

func TestScheduledTask_Due(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		task ScheduledTask
		want bool
	}{
		{name: "never run", task: ScheduledTask{Enabled: true}, want: true},
		{name: "disabled", task: ScheduledTask{}, want: false},
		{name: "next run passed", task: ScheduledTask{Enabled: true, NextRun: now.Add(-time.Second)}, want: true},
		{name: "next run now", task: ScheduledTask{Enabled: true, NextRun: now}, want: true},
		{name: "next run ahead", task: ScheduledTask{Enabled: true, NextRun: now.Add(time.Minute)}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.Due(now))
		})
	}
}

func TestScheduledTask_Complete(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Second)
	task := &ScheduledTask{ID: TaskIDJobQueue, Interval: time.Minute, Enabled: true}

	task.Complete(&TaskResult{StartedAt: start, EndedAt: end, Success: false, Error: "remote down"})
	assert.Equal(t, start, task.LastRun)
	assert.Equal(t, end.Add(time.Minute), task.NextRun)
	assert.Equal(t, "remote down", task.LastError)
	assert.True(t, task.LastSuccess.IsZero())

	task.Complete(&TaskResult{StartedAt: start, EndedAt: end, Success: true})
	assert.Empty(t, task.LastError)
	assert.Equal(t, end, task.LastSuccess)
}

func TestTaskConstants(t *testing.T) {
	assert.Equal(t, "job-queue", TaskIDJobQueue)
	assert.Equal(t, "stale-reindex", TaskIDStaleReindex)
}
