package services

import (
	"fmt"
	"slices"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

// RouteGroup is one (index, class) pair enumerated by bulk reindexing.
type RouteGroup struct {
	Index string
	Class string

	// Filter is the index's include filter for the class, if any.
	Filter domain.Filter
}

// IndexRouter decides which configured indexes a record belongs to.
// Results always follow configuration order.
type IndexRouter struct {
	classes *domain.ClassRegistry
	mapping *domain.IndexMapping
}

// NewIndexRouter creates a router over the class registry and index mapping.
func NewIndexRouter(classes *domain.ClassRegistry, mapping *domain.IndexMapping) *IndexRouter {
	return &IndexRouter{classes: classes, mapping: mapping}
}

// ResolveIndexesForWrite returns every write index the record matches.
// A record matches an entry when its class is one of the entry's include
// classes, or a subclass of one, and it satisfies the include filter
// configured for the most specific such class. Replicas are never returned.
func (r *IndexRouter) ResolveIndexesForWrite(rec *domain.Record) []string {
	if rec == nil {
		return nil
	}
	var out []string
	for _, e := range r.writeEntries() {
		if r.matches(e, rec) {
			out = append(out, e.Name)
		}
	}
	return out
}

// matches applies the filter of the most specific include class the
// record descends from, the same rule Groups uses for bulk enumeration.
func (r *IndexRouter) matches(e domain.IndexEntry, rec *domain.Record) bool {
	include, ok := r.matchingInclude(e, rec.ClassName)
	if !ok {
		return false
	}
	f := e.IncludeFilter[include]
	return f == nil || f.Match(rec)
}

// IndexesForClass returns the write indexes a class can route to,
// ignoring include filters. Removal uses this set so that a document is
// retracted even when the record no longer passes a filter.
func (r *IndexRouter) IndexesForClass(class string) []string {
	var out []string
	for _, e := range r.writeEntries() {
		for _, include := range e.IncludeClasses {
			if r.classes.IsA(class, include) {
				out = append(out, e.Name)
				break
			}
		}
	}
	return out
}

// ResolveAllIndexesForSync returns every configured index followed by
// replicas that have no entry of their own. Used for settings sync only.
func (r *IndexRouter) ResolveAllIndexesForSync() []string {
	out := r.mapping.Names()
	for _, e := range r.mapping.Entries() {
		for _, replica := range e.Replicas {
			if !slices.Contains(out, replica) {
				out = append(out, replica)
			}
		}
	}
	return out
}

// WriteIndexes returns every configured index that is not a replica.
func (r *IndexRouter) WriteIndexes() []string {
	var out []string
	for _, e := range r.writeEntries() {
		out = append(out, e.Name)
	}
	return out
}

// Groups returns the (index, class) pairs covering every registered,
// enabled class. When only is non-empty, classes are restricted to the
// listed classes and their subclasses.
func (r *IndexRouter) Groups(only []string) ([]RouteGroup, error) {
	allowed, err := r.allowedClasses(only)
	if err != nil {
		return nil, err
	}

	var out []RouteGroup
	for _, e := range r.writeEntries() {
		for _, class := range r.classes.Names() {
			if !r.classes.IndexEnabled(class) {
				continue
			}
			if allowed != nil && !allowed[class] {
				continue
			}
			include, ok := r.matchingInclude(e, class)
			if !ok {
				continue
			}
			out = append(out, RouteGroup{Index: e.Name, Class: class, Filter: e.IncludeFilter[include]})
		}
	}
	return out, nil
}

// matchingInclude returns the most specific include class of e that class
// descends from.
func (r *IndexRouter) matchingInclude(e domain.IndexEntry, class string) (string, bool) {
	ancestry := r.classes.Ancestry(class)
	for i := len(ancestry) - 1; i >= 0; i-- {
		if slices.Contains(e.IncludeClasses, ancestry[i]) {
			return ancestry[i], true
		}
	}
	return "", false
}

func (r *IndexRouter) allowedClasses(only []string) (map[string]bool, error) {
	if len(only) == 0 {
		return nil, nil
	}
	allowed := make(map[string]bool)
	for _, class := range only {
		if _, ok := r.classes.Spec(class); !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownClass, class)
		}
		for _, d := range r.classes.Descendants(class) {
			allowed[d] = true
		}
	}
	return allowed, nil
}

func (r *IndexRouter) writeEntries() []domain.IndexEntry {
	replicas := r.mapping.Replicas()
	var out []domain.IndexEntry
	for _, e := range r.mapping.Entries() {
		if !replicas[e.Name] {
			out = append(out, e)
		}
	}
	return out
}
