package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/algosync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/algosync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/algosync/internal/core/domain"
)

const testConfig = `
algolia:
  application_id: APPID
  admin_api_key: admin
  environment: test
indexer:
  include_page_content: false
classes:
  - name: Page
    index_fields: [Summary]
indexes:
  - name: main
    include_classes: [Page]
`

func memoryDeps() (Deps, *memory.SearchBackend) {
	backend := memory.NewSearchBackend()
	return Deps{
		Records: memory.NewRecordStore(&domain.Record{ID: 1, ClassName: "Page", Title: "Home"}),
		Jobs:    memory.NewJobStore(),
		Tasks:   memory.NewSchedulerStore(),
		Backend: backend,
	}, backend
}

func testDomainConfig(t *testing.T, mutate func(*domain.Settings)) *domain.Config {
	t.Helper()
	classes, err := domain.NewClassRegistry(domain.ClassSpec{Name: "Page", IndexFields: []string{"Summary"}})
	require.NoError(t, err)
	indexes, err := domain.NewIndexMapping(domain.IndexEntry{Name: "main", IncludeClasses: []string{"Page"}})
	require.NoError(t, err)
	s := domain.DefaultSettings()
	s.Algolia.Environment = "test"
	s.Indexer.IncludePageContent = false
	if mutate != nil {
		mutate(&s)
	}
	require.NoError(t, s.Normalise())
	return &domain.Config{Settings: s, Classes: classes, Indexes: indexes}
}

func TestNew_Validation(t *testing.T) {
	deps, _ := memoryDeps()

	_, err := New(nil, deps)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = New(testDomainConfig(t, nil), Deps{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNew_IndexesInline(t *testing.T) {
	deps, backend := memoryDeps()
	a, err := New(testDomainConfig(t, nil), deps)
	require.NoError(t, err)

	require.NoError(t, a.Indexer.IndexByID(context.Background(), "Page", 1))
	assert.Len(t, backend.ObjectIDs("test_main"), 1)

	jobs, err := a.Jobs.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestNew_QueuedIndexing(t *testing.T) {
	deps, backend := memoryDeps()
	a, err := New(testDomainConfig(t, func(s *domain.Settings) { s.Indexer.UseQueuedIndexing = true }), deps)
	require.NoError(t, err)

	require.NoError(t, a.Indexer.IndexByID(context.Background(), "Page", 1))
	assert.Empty(t, backend.ObjectIDs("test_main"))

	steps, err := a.Jobs.Drain(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, steps)
	assert.Len(t, backend.ObjectIDs("test_main"), 1)
}

func writeConfig(t *testing.T) string {
	t.Helper()
	for _, key := range []string{"ALGOLIA_APPLICATION_ID", "ALGOLIA_ADMIN_API_KEY", "ALGOLIA_SEARCH_API_KEY", "ALGOLIA_PREFIX_INDEX_NAME", "ALGOSYNC_ENVIRONMENT"} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "algosync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0600))
	return path
}

func TestBuild_DryRun(t *testing.T) {
	dataDir := t.TempDir()
	store, err := sqlite.NewStore(dataDir)
	require.NoError(t, err)
	require.NoError(t, store.RecordStore().Save(context.Background(), &domain.Record{ID: 7, ClassName: "Page", Title: "Stored"}))
	require.NoError(t, store.Close())

	a, err := Build(Options{ConfigPath: writeConfig(t), DataDir: dataDir, DryRun: true})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Loader)
	backend, ok := a.Deps.Backend.(*memory.SearchBackend)
	require.True(t, ok, "dry run uses the in-memory backend")

	require.NoError(t, a.Indexer.IndexByID(context.Background(), "Page", 7))
	assert.Len(t, backend.ObjectIDs("test_main"), 1)

	// The stored record keeps its state: the dry run wrote to a copy.
	store, err = sqlite.NewStore(dataDir)
	require.NoError(t, err)
	defer store.Close()
	rec, err := store.RecordStore().Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, rec.State.SearchUUID)
}

func TestBuild_Algolia(t *testing.T) {
	a, err := Build(Options{ConfigPath: writeConfig(t), DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "APPID", a.Config.Settings.Algolia.ApplicationID)
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close(), "closing twice is a no-op")
}

func TestBuild_MissingCredentials(t *testing.T) {
	path := writeConfig(t)
	require.NoError(t, os.WriteFile(path, []byte("classes: []\n"), 0600))

	_, err := Build(Options{ConfigPath: path, DataDir: t.TempDir()})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestApp_Reconfigure(t *testing.T) {
	deps, backend := memoryDeps()
	a, err := New(testDomainConfig(t, nil), deps)
	require.NoError(t, err)
	closed := 0
	a.closers = append(a.closers, func() error { closed++; return nil })

	next, err := a.Reconfigure(testDomainConfig(t, func(s *domain.Settings) { s.Algolia.Environment = "live" }))
	require.NoError(t, err)

	require.NoError(t, next.Indexer.IndexByID(context.Background(), "Page", 1))
	assert.Len(t, backend.ObjectIDs("live_main"), 1)

	require.NoError(t, a.Close())
	assert.Equal(t, 0, closed, "the old app no longer owns the adapters")
	require.NoError(t, next.Close())
	assert.Equal(t, 1, closed)

	_, err = next.Reconfigure(nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
