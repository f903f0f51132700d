package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/algosync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/algosync/internal/core/domain"
)

func TestReindexCmd_Flags(t *testing.T) {
	for _, name := range []string{"only", "filter", "force", "clear", "queued"} {
		assert.NotNil(t, reindexCmd.Flags().Lookup(name), name)
	}
}

func TestReindexCmd_Run(t *testing.T) {
	env := setupTestApp(t, nil)

	out, err := execute(t, "reindex")
	require.NoError(t, err)
	assert.Contains(t, out, "Reindexing all classes...")
	assert.Contains(t, out, "main/Page: 1 indexed, 0 skipped, 0 errored")
	assert.Contains(t, out, "main/Article: 2 indexed, 0 skipped, 0 errored")
	assert.Contains(t, out, "articles/Article: 2 indexed, 0 skipped, 0 errored")
	assert.Contains(t, out, "Candidates: 5")
	assert.Contains(t, out, "Indexed:    5")
	assert.Contains(t, out, "Batches:    3")
	assert.Len(t, env.backend.ObjectIDs("test_main"), 3)
	assert.Len(t, env.backend.ObjectIDs("test_articles"), 2)

	out, err = execute(t, "reindex")
	require.NoError(t, err)
	assert.Contains(t, out, "Candidates: 0", "fresh records are not stale")

	out, err = execute(t, "reindex", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Candidates: 5")
}

func TestReindexCmd_Options(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "only", args: []string{"--only", "Article"}, want: "Candidates: 4"},
		{name: "filter", args: []string{"--filter", "Title = 'Roadmap'"}, want: "Candidates: 2"},
		{name: "only and filter", args: []string{"--only", "Page", "--filter", "Title = 'About us'"}, want: "Candidates: 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestApp(t, nil)
			out, err := execute(t, append([]string{"reindex"}, tt.args...)...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestReindexCmd_Errors(t *testing.T) {
	setupTestApp(t, nil)

	_, err := execute(t, "reindex", "--filter", "Title =")
	assert.ErrorContains(t, err, "invalid --filter")

	_, err = execute(t, "reindex", "--only", "Nope")
	assert.ErrorIs(t, err, domain.ErrUnknownClass)
}

func TestReindexCmd_Clear(t *testing.T) {
	env := setupTestApp(t, nil)
	orphan := domain.NewDocument()
	orphan.Set(domain.KeyObjectID, "orphan")
	require.NoError(t, env.backend.Index("test_main").SaveObjects(context.Background(), []*domain.Document{orphan}))

	_, err := execute(t, "reindex")
	require.NoError(t, err)
	require.Len(t, env.backend.ObjectIDs("test_main"), 4)

	out, err := execute(t, "reindex", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Candidates: 5", "clear implies force")
	assert.Len(t, env.backend.ObjectIDs("test_main"), 3)
	assert.NotContains(t, env.backend.ObjectIDs("test_main"), "orphan")
}

func TestReindexCmd_Failure(t *testing.T) {
	env := setupTestApp(t, nil)
	env.backend.FailWith(memory.OpSave, errors.New("rejected"))

	out, err := execute(t, "reindex")
	require.NoError(t, err, "batch failures are reported, not returned")
	assert.Contains(t, out, "Errored:    5")
	assert.Contains(t, out, "error:")
}

func TestReindexCmd_Queued(t *testing.T) {
	env := setupTestApp(t, nil)

	out, err := execute(t, "reindex", "--queued")
	require.NoError(t, err)
	assert.Contains(t, out, "5 candidates in 3 groups")
	assert.Empty(t, env.backend.ObjectIDs("test_main"))

	jobs, err := env.jobs.ListJobs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobReindexAll, jobs[0].Kind)
	assert.Equal(t, domain.JobPending, jobs[0].Status)

	out, err = execute(t, "jobs", "run")
	require.NoError(t, err)
	assert.Contains(t, out, "Ran 3 job steps.")
	assert.Len(t, env.backend.ObjectIDs("test_main"), 3)
	assert.Len(t, env.backend.ObjectIDs("test_articles"), 2)
}

func TestReindexItemCmd(t *testing.T) {
	env := setupTestApp(t, nil)

	out, err := execute(t, "reindex-item", "Article", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Reindexed Article 2.")
	assert.Len(t, env.backend.ObjectIDs("test_main"), 1)
	assert.Len(t, env.backend.ObjectIDs("test_articles"), 1)

	rec, err := env.records.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.State.SearchUUID)
	assert.NotNil(t, rec.State.LastIndexedAt)
}

func TestReindexItemCmd_Queued(t *testing.T) {
	env := setupTestApp(t, func(s *domain.Settings) { s.Indexer.UseQueuedIndexing = true })

	out, err := execute(t, "reindex-item", "Page", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Queued Page 1 for indexing.")
	assert.Empty(t, env.backend.ObjectIDs("test_main"))

	out, err = execute(t, "worker", "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "Ran 1 job steps.")
	assert.Len(t, env.backend.ObjectIDs("test_main"), 1)
}

func TestReindexItemCmd_Errors(t *testing.T) {
	setupTestApp(t, nil)

	_, err := execute(t, "reindex-item", "Page")
	assert.ErrorContains(t, err, "accepts --class and --id or 2 arg(s)")

	_, err = execute(t, "reindex-item", "Page", "abc")
	assert.ErrorContains(t, err, "invalid record id")

	_, err = execute(t, "reindex-item", "Page", "99")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
