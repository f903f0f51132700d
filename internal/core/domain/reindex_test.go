package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReindexCursor_Remaining(t *testing.T) {
	c := &ReindexCursor{
		Version: CursorVersion,
		Groups: []ReindexGroup{
			{Index: "main", Class: "Page", IDs: []int64{5, 4, 3}},
			{Index: "main", Class: "File", IDs: []int64{9, 8}},
		},
		GroupIndex: 0,
		Offset:     2,
	}
	assert.Equal(t, 3, c.Remaining())
	assert.False(t, c.Done())

	c.GroupIndex, c.Offset = 2, 0
	assert.Equal(t, 0, c.Remaining())
	assert.True(t, c.Done())
}

func TestDecodeCursor_RoundTrip(t *testing.T) {
	c := &ReindexCursor{
		Version:    CursorVersion,
		GroupIndex: 1,
		Offset:     20,
		Groups:     []ReindexGroup{{Index: "a", Class: "Page", IDs: []int64{1}}},
		Total:      1,
		Report:     ReindexReport{Indexed: 1, Errors: []string{"boom"}},
	}
	data, err := c.Encode()
	require.NoError(t, err)

	got, err := DecodeCursor(data)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestDecodeCursor_Incompatible(t *testing.T) {
	for name, data := range map[string]string{
		"old version":    `{"version":0,"group_index":0}`,
		"future version": `{"version":99}`,
		"garbage":        `not json`,
		"negative":       `{"version":1,"offset":-1}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCursor([]byte(data))
			assert.True(t, errors.Is(err, ErrIncompatibleCursor))
		})
	}
}

func TestReindexReport_Add(t *testing.T) {
	r := ReindexReport{Candidates: 10, Indexed: 2}
	r.Add(ReindexReport{Candidates: 99, Indexed: 3, Skipped: 1, Errored: 2, Batches: 1, Errors: []string{"x"}})

	assert.Equal(t, ReindexReport{Candidates: 10, Indexed: 5, Skipped: 1, Errored: 2, Batches: 1, Errors: []string{"x"}}, r)
}
