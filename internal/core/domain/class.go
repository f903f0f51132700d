package domain

import (
	"context"
	"fmt"
)

// ClassSpec is the static indexing configuration of one record class.
type ClassSpec struct {
	// Name is the class name.
	Name string

	// Parent is the direct ancestor class, empty for a root class.
	Parent string

	// IndexFields lists the fields and relations copied into documents.
	IndexFields []string

	// Renderable classes have a front-end page the crawler can render.
	Renderable bool

	// Disabled switches indexing off for the class.
	Disabled bool

	// CopyContentFrom names a has-one relation whose target supplies the
	// document content while the record keeps its own identity.
	CopyContentFrom string

	// Behaviour optionally implements CustomExporter, AttributeUpdater,
	// RelationshipAttributeUpdater, IndexPredicate or ViewPredicate.
	Behaviour any
}

// CustomExporter replaces spec-driven extraction for a class. It receives
// the seeded canonical document and returns the final document.
type CustomExporter interface {
	ExportDocument(ctx context.Context, rec *Record, seed *Document) (*Document, error)
}

// AttributeUpdater merges extra attributes into a finished document.
type AttributeUpdater interface {
	UpdateAttributes(ctx context.Context, rec *Record, doc *Document)
}

// RelationshipAttributeUpdater extends the sub-document built for a
// related record.
type RelationshipAttributeUpdater interface {
	UpdateRelationshipAttributes(rec *Record, related *Record, sub *Document)
}

// IndexPredicate decides whether a record may be indexed.
type IndexPredicate interface {
	CanIndex(rec *Record) bool
}

// ViewPredicate decides whether a record may be shown in search results.
type ViewPredicate interface {
	CanView(rec *Record) bool
}

// ClassRegistry is the immutable class configuration built at startup.
// Ancestry is resolved once at construction so that routing never walks
// parent links at request time.
type ClassRegistry struct {
	specs    map[string]ClassSpec
	order    []string
	ancestry map[string][]string
}

// NewClassRegistry validates specs and builds the ancestry table.
// Parents must be registered; cycles are rejected.
func NewClassRegistry(specs ...ClassSpec) (*ClassRegistry, error) {
	r := &ClassRegistry{
		specs:    make(map[string]ClassSpec, len(specs)),
		ancestry: make(map[string][]string, len(specs)),
	}
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: class with empty name", ErrInvalidInput)
		}
		if _, dup := r.specs[s.Name]; dup {
			return nil, fmt.Errorf("%w: class %s registered twice", ErrInvalidInput, s.Name)
		}
		r.specs[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	for _, name := range r.order {
		chain, err := r.buildAncestry(name)
		if err != nil {
			return nil, err
		}
		r.ancestry[name] = chain
	}
	return r, nil
}

// buildAncestry returns the chain from root to name.
func (r *ClassRegistry) buildAncestry(name string) ([]string, error) {
	var reversed []string
	seen := make(map[string]bool)
	for cur := name; cur != ""; {
		if seen[cur] {
			return nil, fmt.Errorf("%w: class hierarchy cycle at %s", ErrInvalidInput, cur)
		}
		seen[cur] = true
		spec, ok := r.specs[cur]
		if !ok {
			return nil, fmt.Errorf("%w: %s (parent of %s)", ErrUnknownClass, cur, name)
		}
		reversed = append(reversed, cur)
		cur = spec.Parent
	}
	chain := make([]string, len(reversed))
	for i, c := range reversed {
		chain[len(reversed)-1-i] = c
	}
	return chain, nil
}

// Spec returns the spec for a class.
func (r *ClassRegistry) Spec(name string) (ClassSpec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Names returns class names in registration order.
func (r *ClassRegistry) Names() []string {
	return append([]string(nil), r.order...)
}

// Ancestry returns the class hierarchy from root to leaf, or just the
// class itself when it is not registered.
func (r *ClassRegistry) Ancestry(name string) []string {
	if chain, ok := r.ancestry[name]; ok {
		return append([]string(nil), chain...)
	}
	return []string{name}
}

// IsA reports whether class equals candidate or descends from it.
func (r *ClassRegistry) IsA(class, candidate string) bool {
	for _, c := range r.Ancestry(class) {
		if c == candidate {
			return true
		}
	}
	return false
}

// Descendants returns candidate and every registered subclass of it, in
// registration order.
func (r *ClassRegistry) Descendants(candidate string) []string {
	var out []string
	if _, ok := r.specs[candidate]; !ok {
		out = append(out, candidate)
	}
	for _, name := range r.order {
		if r.IsA(name, candidate) {
			out = append(out, name)
		}
	}
	return out
}

// IndexEnabled reports whether records of the class may be indexed.
// Unregistered classes are not indexed.
func (r *ClassRegistry) IndexEnabled(name string) bool {
	s, ok := r.specs[name]
	return ok && !s.Disabled
}

// CanIndex applies the default visibility rule and the class predicate.
// A record with a ShowInSearch flag takes that flag's value; versioned
// records must be published.
func (r *ClassRegistry) CanIndex(rec *Record) bool {
	if rec == nil || !r.IndexEnabled(rec.ClassName) {
		return false
	}
	if !rec.IsLive() {
		return false
	}
	if rec.ShowInSearch != nil && !*rec.ShowInSearch {
		return false
	}
	if p, ok := r.specs[rec.ClassName].Behaviour.(IndexPredicate); ok {
		return p.CanIndex(rec)
	}
	return true
}

// CanView reports whether a record may appear in search results.
func (r *ClassRegistry) CanView(rec *Record) bool {
	if rec == nil {
		return false
	}
	if p, ok := r.specs[rec.ClassName].Behaviour.(ViewPredicate); ok {
		return p.CanView(rec)
	}
	return rec.IsLive()
}
