package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
)

// Ensure SearchBackend and Index implement the interfaces.
var (
	_ driven.SearchBackend = (*SearchBackend)(nil)
	_ driven.RemoteIndex   = (*Index)(nil)
)

// Operations recorded by the in-memory backend.
const (
	OpSave        = "save"
	OpDelete      = "delete"
	OpGet         = "get"
	OpSearch      = "search"
	OpSetSettings = "set_settings"
	OpGetSettings = "get_settings"
	OpClear       = "clear"
)

// Call is one recorded remote operation.
type Call struct {
	Op        string
	Index     string
	ObjectIDs []string
}

// SearchBackend is an in-memory stand-in for the remote search service.
// Documents are stored in their JSON-normalised form, as a real service
// would return them. Every operation is recorded for inspection.
type SearchBackend struct {
	mu      sync.Mutex
	indexes map[string]*Index
	calls   []Call
	errs    map[string]error
}

// NewSearchBackend creates an empty in-memory search backend.
func NewSearchBackend() *SearchBackend {
	return &SearchBackend{
		indexes: make(map[string]*Index),
		errs:    make(map[string]error),
	}
}

// Index returns the named index, creating it on first use.
func (b *SearchBackend) Index(name string) driven.RemoteIndex {
	return b.index(name)
}

func (b *SearchBackend) index(name string) *Index {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, ok := b.indexes[name]
	if !ok {
		idx = &Index{
			backend: b,
			name:    name,
			objects: make(map[string]map[string]any),
		}
		b.indexes[name] = idx
	}
	return idx
}

// FailWith makes every subsequent operation of kind op fail with err.
// A nil err clears the failure.
func (b *SearchBackend) FailWith(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.errs, op)
		return
	}
	b.errs[op] = err
}

// Calls returns the recorded operations in order.
func (b *SearchBackend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

// CallsFor returns the recorded operations of one kind.
func (b *SearchBackend) CallsFor(op string) []Call {
	var out []Call
	for _, c := range b.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets the recorded operations.
func (b *SearchBackend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

// IndexNames returns the names of every index touched so far.
func (b *SearchBackend) IndexNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := slices.Collect(maps.Keys(b.indexes))
	sort.Strings(names)
	return names
}

// Object returns a stored document by index and object id.
func (b *SearchBackend) Object(index, objectID string) (map[string]any, bool) {
	idx := b.index(index)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	obj, ok := idx.objects[objectID]
	if !ok {
		return nil, false
	}
	return maps.Clone(obj), true
}

// ObjectIDs returns the ids stored in an index, sorted.
func (b *SearchBackend) ObjectIDs(index string) []string {
	idx := b.index(index)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := slices.Collect(maps.Keys(idx.objects))
	sort.Strings(ids)
	return ids
}

// StoredSettings returns the settings last pushed to an index.
func (b *SearchBackend) StoredSettings(index string) map[string]any {
	idx := b.index(index)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return maps.Clone(idx.settings)
}

// record logs a call and returns the injected failure for op, if any.
func (b *SearchBackend) record(op, index string, ids ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Op: op, Index: index, ObjectIDs: ids})
	return b.errs[op]
}

// Index is one in-memory index.
type Index struct {
	backend *SearchBackend
	name    string

	mu       sync.RWMutex
	objects  map[string]map[string]any
	settings map[string]any
}

// Name returns the index name.
func (i *Index) Name() string {
	return i.name
}

// SaveObjects upserts documents by objectID.
func (i *Index) SaveObjects(ctx context.Context, docs []*domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ids := make([]string, 0, len(docs))
	normalised := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		if doc.ObjectID() == "" {
			return fmt.Errorf("%w: document without objectID", domain.ErrRemoteRejected)
		}
		obj, err := doc.Normalise()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrRemoteRejected, err)
		}
		ids = append(ids, doc.ObjectID())
		normalised = append(normalised, obj)
	}
	if err := i.backend.record(OpSave, i.name, ids...); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for n, id := range ids {
		i.objects[id] = normalised[n]
	}
	return nil
}

// DeleteObject removes a document.
func (i *Index) DeleteObject(ctx context.Context, objectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := i.backend.record(OpDelete, i.name, objectID); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.objects, objectID)
	return nil
}

// GetObject retrieves a stored document.
func (i *Index) GetObject(ctx context.Context, objectID string) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := i.backend.record(OpGet, i.name, objectID); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	obj, ok := i.objects[objectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return domain.DocumentFromMap(maps.Clone(obj)), nil
}

// Search matches the query case-insensitively against string attributes.
// An empty query matches every document. Hits are ordered by objectID.
func (i *Index) Search(ctx context.Context, query string, params domain.SearchParams) (*domain.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := i.backend.record(OpSearch, i.name); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	ids := slices.Collect(maps.Keys(i.objects))
	sort.Strings(ids)
	var hits []map[string]any
	for _, id := range ids {
		if needle == "" || containsText(i.objects[id], needle) {
			hits = append(hits, maps.Clone(i.objects[id]))
		}
	}

	hpp := params.HitsPerPage
	if hpp <= 0 {
		hpp = 20
	}
	resp := &domain.SearchResponse{
		NbHits:      len(hits),
		Page:        params.Page,
		HitsPerPage: hpp,
		NbPages:     (len(hits) + hpp - 1) / hpp,
	}
	start := params.Page * hpp
	if start < len(hits) {
		resp.Hits = hits[start:min(start+hpp, len(hits))]
	}
	return resp, nil
}

func containsText(obj map[string]any, needle string) bool {
	for _, v := range obj {
		switch val := v.(type) {
		case string:
			if strings.Contains(strings.ToLower(val), needle) {
				return true
			}
		case []any:
			for _, item := range val {
				if s, ok := item.(string); ok && strings.Contains(strings.ToLower(s), needle) {
					return true
				}
			}
		}
	}
	return false
}

// SetSettings replaces the index settings.
func (i *Index) SetSettings(ctx context.Context, settings map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := i.backend.record(OpSetSettings, i.name); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.settings = maps.Clone(settings)
	return nil
}

// GetSettings returns the index settings.
func (i *Index) GetSettings(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := i.backend.record(OpGetSettings, i.name); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.settings == nil {
		return map[string]any{}, nil
	}
	return maps.Clone(i.settings), nil
}

// ClearObjects removes every document.
func (i *Index) ClearObjects(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := i.backend.record(OpClear, i.name); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.objects = make(map[string]map[string]any)
	return nil
}
