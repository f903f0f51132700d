package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/algosync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/algosync/internal/core/domain"
)

// stubCrawler returns canned main content per record id.
type stubCrawler struct {
	mu      sync.Mutex
	content map[int64]string
	calls   int
}

func newStubCrawler() *stubCrawler {
	return &stubCrawler{content: make(map[int64]string)}
}

func (c *stubCrawler) MainContent(_ context.Context, rec *domain.Record) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.content[rec.ID]
}

func (c *stubCrawler) set(id int64, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content[id] = text
}

// fixture wires every service over in-memory adapters with a fixed clock
// and predictable search uuids.
type fixture struct {
	classes  *domain.ClassRegistry
	mapping  *domain.IndexMapping
	settings domain.Settings

	records  *memory.RecordStore
	backend  *memory.SearchBackend
	jobStore *memory.JobStore
	crawler  *stubCrawler

	extractor   *AttributeExtractor
	router      *IndexRouter
	client      *IndexClient
	coordinator *IndexingCoordinator
	reindexer   *BulkReindexScheduler
	querier     *QueryMapper
	jobs        *JobRunner

	now   time.Time
	uuids int
}

// testClasses is the default class configuration:
// Page <- Article, Page <- VirtualPage, plus Person and Category.
func testClasses() []domain.ClassSpec {
	return []domain.ClassSpec{
		{Name: "Page", IndexFields: []string{"Summary"}, Renderable: true},
		{Name: "Article", Parent: "Page", IndexFields: []string{"Summary", "Author", "Categories"}, Renderable: true},
		{Name: "VirtualPage", Parent: "Page", CopyContentFrom: "CopyContentFrom", Renderable: true},
		{Name: "Person", IndexFields: []string{"Name"}},
		{Name: "Category"},
	}
}

// testIndexes routes every page to main (with a title-sorted replica) and
// articles not titled X to articles.
func testIndexes() []domain.IndexEntry {
	return []domain.IndexEntry{
		{
			Name:           "main",
			IncludeClasses: []string{"Page"},
			Settings:       map[string]any{"searchableAttributes": []string{"objectTitle", "Summary"}},
			Replicas:       []string{"main_title_asc"},
		},
		{
			Name:           "articles",
			IncludeClasses: []string{"Article"},
			IncludeFilter:  map[string]domain.Filter{"Article": domain.MustParseFilter("Title != 'X'")},
		},
		{
			Name:           "main_title_asc",
			IncludeClasses: []string{"Page"},
			Settings:       map[string]any{"customRanking": []string{"asc(objectTitle)"}},
		},
	}
}

func newFixture(t *testing.T, classes []domain.ClassSpec, indexes []domain.IndexEntry, mutate func(*domain.Settings)) *fixture {
	t.Helper()

	registry, err := domain.NewClassRegistry(classes...)
	require.NoError(t, err)
	mapping, err := domain.NewIndexMapping(indexes...)
	require.NoError(t, err)

	settings := domain.DefaultSettings()
	settings.Algolia.Environment = "test"
	settings.Reindex.Pace = 0
	if mutate != nil {
		mutate(&settings)
	}
	require.NoError(t, settings.Normalise())

	f := &fixture{
		classes:  registry,
		mapping:  mapping,
		settings: settings,
		records:  memory.NewRecordStore(),
		backend:  memory.NewSearchBackend(),
		jobStore: memory.NewJobStore(),
		crawler:  newStubCrawler(),
		now:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.extractor = NewAttributeExtractor(registry, f.records, f.crawler, settings.Indexer)
	f.extractor.clock = clock
	f.router = NewIndexRouter(registry, mapping)
	f.client = NewIndexClient(f.backend, mapping, settings.Algolia)
	f.coordinator = NewIndexingCoordinator(registry, f.records, f.extractor, f.router, f.client)
	f.coordinator.clock = clock
	f.coordinator.newUUID = func() string {
		f.uuids++
		return fmt.Sprintf("uuid-%d", f.uuids)
	}
	f.reindexer = NewBulkReindexScheduler(registry, f.records, f.extractor, f.router, f.client, f.coordinator, settings.Reindex)
	f.reindexer.clock = clock
	f.querier = NewQueryMapper(registry, f.records, f.client, mapping)
	f.jobs = NewJobRunner(f.jobStore, f.records, f.coordinator, f.reindexer)
	f.jobs.clock = clock
	return f
}

func newDefaultFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixture(t, testClasses(), testIndexes(), nil)
}

// add saves records and returns the first one as stored.
func (f *fixture) add(t *testing.T, recs ...*domain.Record) *domain.Record {
	t.Helper()
	for _, rec := range recs {
		require.NoError(t, f.records.Save(context.Background(), rec))
	}
	if len(recs) == 0 {
		return nil
	}
	return f.get(t, recs[0].ID)
}

func (f *fixture) get(t *testing.T, id int64) *domain.Record {
	t.Helper()
	rec, err := f.records.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

// remote returns the stored document of a record in a logical index.
func (f *fixture) remote(index, objectID string) (map[string]any, bool) {
	return f.backend.Object(f.client.Environmentize(index), objectID)
}

func article(id int64, title string) *domain.Record {
	return &domain.Record{
		ID:         id,
		ClassName:  "Article",
		Title:      title,
		Link:       fmt.Sprintf("/news/%d?stage=Live", id),
		Created:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LastEdited: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Fields: map[string]domain.FieldValue{
			"Summary": domain.TextValue("Summary of " + title),
		},
		Relations: map[string]domain.Relation{
			"Author":     {Kind: domain.HasOne, TargetClass: "Person"},
			"Categories": {Kind: domain.ManyMany, TargetClass: "Category"},
		},
	}
}

func page(id int64, title string) *domain.Record {
	return &domain.Record{
		ID:        id,
		ClassName: "Page",
		Title:     title,
		Fields: map[string]domain.FieldValue{
			"Summary": domain.TextValue("About " + title),
		},
	}
}

func boolPtr(b bool) *bool { return &b }
