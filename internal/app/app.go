// Package app wires adapters and core services into a runnable application.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/algosync/internal/adapters/driven/algolia"
	"github.com/custodia-labs/algosync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/algosync/internal/adapters/driven/crawler"
	"github.com/custodia-labs/algosync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/algosync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
	"github.com/custodia-labs/algosync/internal/core/ports/driving"
	"github.com/custodia-labs/algosync/internal/core/services"
	"github.com/custodia-labs/algosync/internal/logger"
)

// Options select the configuration file and adapters.
type Options struct {
	// ConfigPath is the configuration file; empty uses the default location.
	ConfigPath string

	// DataDir holds the SQLite database; empty uses ~/.algosync/data.
	DataDir string

	// DryRun copies records into memory and writes to an in-memory
	// search backend, so nothing is persisted or sent.
	DryRun bool
}

// Deps are the driven adapters the services run on.
type Deps struct {
	Records driven.RecordStore
	Jobs    driven.JobStore
	Tasks   driven.SchedulerStore
	Backend driven.SearchBackend
	Crawler driven.Crawler
}

// App is the wired application.
type App struct {
	Config *domain.Config
	Deps   Deps

	Indexer   driving.Indexer
	Reindexer driving.Reindexer
	Settings  driving.SettingsSyncer
	Querier   driving.Querier
	Jobs      driving.JobRunner
	Scheduler driving.Scheduler

	// Loader is set when the app was built from a configuration file.
	Loader *file.Loader

	closers []func() error
}

// New wires the core services over deps.
func New(cfg *domain.Config, deps Deps) (*App, error) {
	if cfg == nil || cfg.Classes == nil || cfg.Indexes == nil {
		return nil, fmt.Errorf("%w: incomplete configuration", domain.ErrConfiguration)
	}
	if deps.Records == nil || deps.Jobs == nil || deps.Tasks == nil || deps.Backend == nil {
		return nil, fmt.Errorf("%w: missing adapter", domain.ErrConfiguration)
	}
	s := cfg.Settings

	extractor := services.NewAttributeExtractor(cfg.Classes, deps.Records, deps.Crawler, s.Indexer)
	router := services.NewIndexRouter(cfg.Classes, cfg.Indexes)
	client := services.NewIndexClient(deps.Backend, cfg.Indexes, s.Algolia)
	coordinator := services.NewIndexingCoordinator(cfg.Classes, deps.Records, extractor, router, client)
	reindexer := services.NewBulkReindexScheduler(cfg.Classes, deps.Records, extractor, router, client, coordinator, s.Reindex)
	jobs := services.NewJobRunner(deps.Jobs, deps.Records, coordinator, reindexer)
	if s.Indexer.UseQueuedIndexing {
		coordinator.UseQueue(jobs)
	}

	return &App{
		Config:    cfg,
		Deps:      deps,
		Indexer:   coordinator,
		Reindexer: reindexer,
		Settings:  client,
		Querier:   services.NewQueryMapper(cfg.Classes, deps.Records, client, cfg.Indexes),
		Jobs:      jobs,
		Scheduler: services.NewScheduler(s.Scheduler, deps.Tasks, jobs, deps.Jobs),
	}, nil
}

// Build loads the configuration and opens the adapters it names.
func Build(opts Options) (*App, error) {
	loader, err := file.NewLoader(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.NewStore(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var cr driven.Crawler
	if cfg.Settings.Indexer.IncludePageContent {
		c, err := crawler.New(cfg.Settings.Crawler)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		cr = c
	}

	var deps Deps
	if opts.DryRun {
		deps, err = dryRunDeps(store, cr)
		_ = store.Close()
		if err != nil {
			return nil, err
		}
		logger.Info("dry run: records copied into memory, remote writes discarded")
	} else {
		backend, err := algolia.NewFromSettings(cfg.Settings.Algolia)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		deps = Deps{
			Records: store.RecordStore(),
			Jobs:    store.JobStore(),
			Tasks:   store.SchedulerStore(),
			Backend: backend,
			Crawler: cr,
		}
	}

	a, err := New(cfg, deps)
	if err != nil {
		if !opts.DryRun {
			_ = store.Close()
		}
		return nil, err
	}
	a.Loader = loader
	if !opts.DryRun {
		a.closers = append(a.closers, store.Close)
	}
	return a, nil
}

func dryRunDeps(store *sqlite.Store, cr driven.Crawler) (Deps, error) {
	recs, err := store.RecordStore().Query(context.Background(), driven.RecordQuery{})
	if err != nil {
		return Deps{}, fmt.Errorf("copy records: %w", err)
	}
	copies := make([]*domain.Record, len(recs))
	for i := range recs {
		copies[i] = &recs[i]
	}
	return Deps{
		Records: memory.NewRecordStore(copies...),
		Jobs:    memory.NewJobStore(),
		Tasks:   memory.NewSchedulerStore(),
		Backend: memory.NewSearchBackend(),
		Crawler: cr,
	}, nil
}

// Close releases the adapters.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Reconfigure wires a new app over the same adapters with cfg. The new
// app takes over the adapters; a must not be closed afterwards.
// Credentials and the crawler are not rebuilt.
func (a *App) Reconfigure(cfg *domain.Config) (*App, error) {
	next, err := New(cfg, a.Deps)
	if err != nil {
		return nil, err
	}
	next.Loader = a.Loader
	next.closers, a.closers = a.closers, nil
	return next, nil
}
