package domain

import "fmt"

// IndexEntry binds record classes to one named target index.
type IndexEntry struct {
	// Name is the logical index name, before environment prefixing.
	Name string

	// IncludeClasses matches records that are instances of any listed class.
	IncludeClasses []string

	// IncludeFilter holds an optional per-class predicate a record must
	// also satisfy to belong to the index.
	IncludeFilter map[string]Filter

	// Settings is the engine configuration pushed on settings sync.
	Settings map[string]any

	// Replicas lists derived read-only indexes of this index.
	Replicas []string
}

// IndexMapping is the ordered index configuration. Order is significant:
// routing returns matches in configuration order.
type IndexMapping struct {
	entries []IndexEntry
	byName  map[string]int
}

// NewIndexMapping validates and stores entries in the given order.
func NewIndexMapping(entries ...IndexEntry) (*IndexMapping, error) {
	m := &IndexMapping{byName: make(map[string]int, len(entries))}
	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: index with empty name", ErrInvalidInput)
		}
		if _, dup := m.byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: index %s configured twice", ErrInvalidInput, e.Name)
		}
		m.byName[e.Name] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	return m, nil
}

// Entries returns the entries in configuration order.
func (m *IndexMapping) Entries() []IndexEntry {
	return append([]IndexEntry(nil), m.entries...)
}

// Entry returns the entry for an index name.
func (m *IndexMapping) Entry(name string) (IndexEntry, bool) {
	i, ok := m.byName[name]
	if !ok {
		return IndexEntry{}, false
	}
	return m.entries[i], true
}

// Replicas returns the set of index names declared as replicas of any entry.
func (m *IndexMapping) Replicas() map[string]bool {
	out := make(map[string]bool)
	for _, e := range m.entries {
		for _, r := range e.Replicas {
			out[r] = true
		}
	}
	return out
}

// IsReplica reports whether name is a replica of another entry.
func (m *IndexMapping) IsReplica(name string) bool {
	return m.Replicas()[name]
}

// Names returns all index names in configuration order.
func (m *IndexMapping) Names() []string {
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Name)
	}
	return out
}

// Default returns the first configured index name.
func (m *IndexMapping) Default() string {
	if len(m.entries) == 0 {
		return ""
	}
	return m.entries[0].Name
}
