package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/algosync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/algosync/internal/core/domain"
)

func TestConfigureCmd(t *testing.T) {
	env := setupTestApp(t, nil)

	out, err := execute(t, "configure")
	require.NoError(t, err)
	assert.Contains(t, out, "  main\n")
	assert.Contains(t, out, "  main_title_asc (replica of main)")
	assert.Contains(t, out, "  articles\n")
	assert.Contains(t, out, "Settings synchronised for 3 indexes.")
	assert.NotEmpty(t, env.backend.StoredSettings("test_main"))
}

func TestConfigureCmd_Failure(t *testing.T) {
	env := setupTestApp(t, nil)
	env.backend.FailWith(memory.OpSetSettings, errors.New("invalid attribute"))

	_, err := execute(t, "configure")
	assert.ErrorContains(t, err, "configure failed")
}

func TestInspectCmd(t *testing.T) {
	setupTestApp(t, nil)

	out, err := execute(t, "inspect", "Article", "2")
	require.NoError(t, err)
	assert.Contains(t, out, `Record:        Article 2 "Launch day"`)
	assert.Contains(t, out, "Search UUID:   (none)")
	assert.Contains(t, out, "Last indexed:  never")
	assert.Contains(t, out, "Index main: not indexed")
	assert.Contains(t, out, "Index articles: not indexed")

	_, err = execute(t, "configure")
	require.NoError(t, err)
	_, err = execute(t, "reindex-item", "Article", "2")
	require.NoError(t, err)

	out, err = execute(t, "inspect", "Article", "2")
	require.NoError(t, err)
	assert.NotContains(t, out, "(none)")
	assert.Contains(t, out, `"objectTitle": "Launch day"`)
	assert.Contains(t, out, "Index main: in sync")
	assert.Contains(t, out, "Index articles: in sync")
	assert.Contains(t, out, "searchableAttributes")
}

func TestInspectCmd_Differs(t *testing.T) {
	env := setupTestApp(t, nil)
	_, err := execute(t, "reindex-item", "Page", "1")
	require.NoError(t, err)

	rec, err := env.records.Get(context.Background(), 1)
	require.NoError(t, err)
	rec.Title = "About the company"
	require.NoError(t, env.records.Save(context.Background(), rec))

	out, err := execute(t, "inspect", "Page", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Index main: differs")
	assert.Contains(t, out, `"objectTitle": "About us"`)
}

func TestInspectCmd_NotFound(t *testing.T) {
	setupTestApp(t, nil)
	_, err := execute(t, "inspect", "Page", "42")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSearchCmd(t *testing.T) {
	env := setupTestApp(t, nil)
	_, err := execute(t, "reindex")
	require.NoError(t, err)

	out, err := execute(t, "search", "launch")
	require.NoError(t, err)
	assert.Contains(t, out, "Results 1-1 of 1 (page 1):")
	assert.Contains(t, out, "[1] Launch day (Article 2)")
	assert.Contains(t, out, "      /news/launch\n")

	out, err = execute(t, "search", "--index", "articles", "roadmap")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] Roadmap (Article 3)")

	out, err = execute(t, "search", "nothing matches this")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")

	require.NoError(t, env.records.Delete(context.Background(), 3))
	out, err = execute(t, "search", "roadmap")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
	assert.Contains(t, out, "1 hits without a viewable record were dropped.")
}

func TestSearchCmd_Paging(t *testing.T) {
	setupTestApp(t, nil)
	_, err := execute(t, "reindex")
	require.NoError(t, err)

	out, err := execute(t, "search", "--limit", "2", "--page", "2", "")
	require.NoError(t, err)
	assert.Contains(t, out, "Results 3-3 of 3 (page 2):")
	assert.Contains(t, out, "[3]")

	out, err = execute(t, "search", "--json", "roadmap")
	require.NoError(t, err)
	assert.Contains(t, out, `"CurrentPage": 1`)
	assert.Contains(t, out, `"TotalItems": 1`)
}

func TestSearchCmd_Errors(t *testing.T) {
	env := setupTestApp(t, nil)

	_, err := execute(t, "search")
	assert.ErrorContains(t, err, "accepts 1 arg(s)")

	_, err = execute(t, "search", "--page", "0", "x")
	assert.ErrorContains(t, err, "--page must be at least 1")

	env.backend.FailWith(memory.OpSearch, errors.New("unreachable"))
	_, err = execute(t, "search", "x")
	assert.ErrorContains(t, err, "search failed")
}

func TestJobsCmd(t *testing.T) {
	setupTestApp(t, func(s *domain.Settings) { s.Indexer.UseQueuedIndexing = true })

	out, err := execute(t, "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, "No jobs.")

	_, err = execute(t, "reindex-item", "Page", "1")
	require.NoError(t, err)
	_, err = execute(t, "reindex-item", "Page", "99")
	require.Error(t, err)

	out, err = execute(t, "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "index-item")
	assert.Contains(t, out, "pending")

	out, err = execute(t, "jobs", "run", "--max-steps", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Ran 1 job steps.")

	out, err = execute(t, "jobs", "list", "--messages")
	require.NoError(t, err)
	assert.Contains(t, out, "complete")
}

func TestWorkerCmd_Disabled(t *testing.T) {
	setupTestApp(t, func(s *domain.Settings) { s.Scheduler.Enabled = false })

	_, err := execute(t, "worker")
	assert.ErrorContains(t, err, "worker is disabled")
}

func TestWorkerCmd_RunsUntilCancelled(t *testing.T) {
	env := setupTestApp(t, func(s *domain.Settings) { s.Indexer.UseQueuedIndexing = true })
	_, err := execute(t, "reindex-item", "Page", "1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	rootCmd.SetArgs([]string{"worker", "--watch=false"})
	defer rootCmd.SetArgs(nil)
	var out safeBuffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)

	require.NoError(t, rootCmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "Worker started.")
	assert.Contains(t, out.String(), "Worker stopped.")
	assert.NotEmpty(t, env.backend.ObjectIDs("test_main"), "the job queue task ran")
}

func TestRecordFlags(t *testing.T) {
	env := setupTestApp(t, nil)

	out, err := execute(t, "reindex-item", "--class", "Article", "--id", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Reindexed Article 2.")
	assert.Len(t, env.backend.ObjectIDs("test_articles"), 1)

	out, err = execute(t, "inspect", "--class", "Article", "--id", "2")
	require.NoError(t, err)
	assert.Contains(t, out, `Record:        Article 2 "Launch day"`)
	assert.Contains(t, out, "Index articles: in sync")
}

func TestRecordFlags_Errors(t *testing.T) {
	setupTestApp(t, nil)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing class", args: []string{"inspect", "--id", "2"}, want: "--class is required"},
		{name: "missing id", args: []string{"reindex-item", "--class", "Page"}, want: "invalid record id 0"},
		{name: "negative id", args: []string{"inspect", "--class", "Page", "--id=-3"}, want: "invalid record id -3"},
		{name: "flags and arguments", args: []string{"inspect", "--class", "Page", "Page", "1"}, want: "not both"},
		{name: "one argument", args: []string{"reindex-item", "Page"}, want: "received 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
