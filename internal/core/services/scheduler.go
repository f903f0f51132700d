package services

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
	"github.com/custodia-labs/algosync/internal/core/ports/driving"
	"github.com/custodia-labs/algosync/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// historyRetention is the number of task results kept per task.
const historyRetention = 100

// jobRetention is the number of finished jobs kept.
const jobRetention = 500

// Scheduler runs the worker's recurring tasks.
// It is a pure core service with no external control API.
type Scheduler struct {
	config domain.SchedulerConfig
	store  driven.SchedulerStore
	jobs   driving.JobRunner
	queue  driven.JobStore

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
// The queue is used to avoid stacking stale reindexes and to prune
// finished jobs.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	jobs driving.JobRunner,
	queue driven.JobStore,
) *Scheduler {
	if config.TickInterval <= 0 {
		config.TickInterval = domain.DefaultSchedulerConfig().TickInterval
	}
	return &Scheduler{
		config: config,
		store:  store,
		jobs:   jobs,
		queue:  queue,
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Error("scheduler: failed to initialise tasks: %v", err)
	}

	// Run the main scheduler loop
	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for running tasks to complete
	s.wg.Wait()

	return nil
}

// builtinTasks names the tasks the scheduler knows how to run.
var builtinTasks = []struct {
	id   string
	name string
}{
	{domain.TaskIDJobQueue, "Job Queue"},
	{domain.TaskIDStaleReindex, "Stale Reindex"},
}

// initialiseTasks ensures all configured tasks exist in the store.
// Tasks that are no longer enabled are disabled in the store.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	for _, t := range builtinTasks {
		taskCfg := s.config.GetTaskConfig(t.id)
		if !taskCfg.Enabled {
			if err := s.disableTask(ctx, t.id); err != nil {
				return err
			}
			continue
		}
		if err := s.ensureTask(ctx, t.id, t.name, taskCfg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) disableTask(ctx context.Context, id string) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil || task == nil || !task.Enabled {
		return err
	}
	task.Enabled = false
	return s.store.SaveTask(ctx, task)
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		// Create new task
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  time.Now().Add(cfg.Interval),
		}
	} else {
		// Update interval if changed
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			// Recalculate next run from now
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	// Check for due tasks immediately on startup
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Error("scheduler: failed to list tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		task := &tasks[i]
		if task.Due(now) {
			s.runTask(ctx, task)
		}
	}
}

// runTask executes a single task.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: time.Now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDJobQueue:
			result.ItemsProcessed, err = s.runJobQueue(ctx)
		case domain.TaskIDStaleReindex:
			result.ItemsProcessed, err = s.runStaleReindex(ctx)
		default:
			logger.Warn("scheduler: unknown task ID: %s", task.ID)
			return
		}

		result.EndedAt = time.Now()
		result.Success = err == nil
		if err != nil {
			result.Error = err.Error()
		}
		task.Complete(result)

		if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
			logger.Error("scheduler: failed to save task %s: %v", task.ID, saveErr)
		}

		if recordErr := s.store.RecordResult(ctx, result); recordErr != nil {
			logger.Error("scheduler: failed to record result for %s: %v", task.ID, recordErr)
		}

		if pruneErr := s.store.PruneHistory(ctx, historyRetention); pruneErr != nil {
			logger.Warn("scheduler: failed to prune history: %v", pruneErr)
		}
	}()
}

// runJobQueue runs pending job steps until the queue is empty.
func (s *Scheduler) runJobQueue(ctx context.Context) (int, error) {
	if s.jobs == nil {
		return 0, nil
	}
	steps, err := s.jobs.Drain(ctx, 0)
	if err != nil {
		return steps, err
	}
	if s.queue != nil {
		if pruneErr := s.queue.PruneJobs(ctx, jobRetention); pruneErr != nil {
			logger.Warn("scheduler: failed to prune jobs: %v", pruneErr)
		}
	}
	return steps, nil
}

// runStaleReindex queues a reindex of stale records unless one is
// already waiting.
func (s *Scheduler) runStaleReindex(ctx context.Context) (int, error) {
	if s.jobs == nil {
		return 0, nil
	}
	if s.queue != nil {
		pending, err := s.reindexPending(ctx)
		if err != nil {
			return 0, err
		}
		if pending {
			logger.Debug("scheduler: reindex already queued")
			return 0, nil
		}
	}
	if _, err := s.jobs.Submit(ctx, domain.JobReindexAll, nil); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *Scheduler) reindexPending(ctx context.Context) (bool, error) {
	jobs, err := s.queue.ListJobs(ctx, 0)
	if err != nil {
		return false, err
	}
	for _, j := range jobs {
		if j.Kind == domain.JobReindexAll && (j.Status == domain.JobPending || j.Status == domain.JobRunning) {
			return true, nil
		}
	}
	return false, nil
}
