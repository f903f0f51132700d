package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// CursorVersion is bumped whenever the cursor layout changes. Cursors
// carrying another version are discarded and enumeration restarts.
const CursorVersion = 1

// ReindexGroup is the remaining work for one (index, class) pair.
// IDs are in processing order: descending local id.
type ReindexGroup struct {
	Index string  `json:"index"`
	Class string  `json:"class"`
	IDs   []int64 `json:"ids"`
}

// ReindexCursor is the resumable state of a bulk reindex. It is the only
// state carried between steps, so a step can run in any process.
type ReindexCursor struct {
	Version int `json:"version"`

	// GroupIndex points at the group currently being processed.
	GroupIndex int `json:"group_index"`

	// Offset is the position within the current group's IDs.
	Offset int `json:"offset"`

	Groups []ReindexGroup `json:"groups"`

	// Total is the number of candidate (index, record) pairs enumerated.
	Total int `json:"total"`

	// Report accumulates counts across steps.
	Report ReindexReport `json:"report"`
}

// Done reports whether every group has been processed.
func (c *ReindexCursor) Done() bool {
	return c.GroupIndex >= len(c.Groups)
}

// Remaining returns the number of ids not yet processed.
func (c *ReindexCursor) Remaining() int {
	n := 0
	for i := c.GroupIndex; i < len(c.Groups); i++ {
		n += len(c.Groups[i].IDs)
		if i == c.GroupIndex {
			n -= c.Offset
		}
	}
	return n
}

// Encode serialises the cursor for persistence.
func (c *ReindexCursor) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeCursor restores a persisted cursor. Cursors from another version
// yield ErrIncompatibleCursor.
func DecodeCursor(data []byte) (*ReindexCursor, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatibleCursor, err)
	}
	if probe.Version != CursorVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrIncompatibleCursor, probe.Version, CursorVersion)
	}
	var c ReindexCursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatibleCursor, err)
	}
	if c.GroupIndex < 0 || c.Offset < 0 {
		return nil, fmt.Errorf("%w: negative position", ErrIncompatibleCursor)
	}
	if !c.Done() && c.Offset > len(c.Groups[c.GroupIndex].IDs) {
		return nil, fmt.Errorf("%w: offset %d beyond group", ErrIncompatibleCursor, c.Offset)
	}
	return &c, nil
}

// ReindexReport summarises a bulk reindex.
type ReindexReport struct {
	Candidates int      `json:"candidates"`
	Indexed    int      `json:"indexed"`
	Skipped    int      `json:"skipped"`
	Errored    int      `json:"errored"`
	Batches    int      `json:"batches"`
	Errors     []string `json:"errors,omitempty"`
}

// Add folds another report's counters into r.
func (r *ReindexReport) Add(other ReindexReport) {
	r.Indexed += other.Indexed
	r.Skipped += other.Skipped
	r.Errored += other.Errored
	r.Batches += other.Batches
	r.Errors = append(r.Errors, other.Errors...)
}

// ReindexOptions configures candidate enumeration.
type ReindexOptions struct {
	// Only restricts the run to these classes (and their subclasses).
	Only []string

	// Filter is an extra predicate candidates must satisfy.
	Filter Filter

	// Force disables the staleness filter so every record is a candidate.
	Force bool

	// Clear empties each write index before enumeration.
	Clear bool
}

// StepResult describes one processed batch.
type StepResult struct {
	Index   string
	Class   string
	IDs     []int64
	Report  ReindexReport
	Elapsed time.Duration
}
