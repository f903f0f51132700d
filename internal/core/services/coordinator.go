package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
	"github.com/custodia-labs/algosync/internal/core/ports/driving"
	"github.com/custodia-labs/algosync/internal/logger"
)

// Ensure IndexingCoordinator implements the interface.
var _ driving.Indexer = (*IndexingCoordinator)(nil)

// IndexingCoordinator owns the per-record indexing state machine:
// Unindexed -> Indexed -> (Reindexed | Removed), with errors recorded on
// the record. It is the only writer of a record's indexing state.
//
// Concurrent indexing of the same record from two triggers is not
// serialised; the last state write wins.
type IndexingCoordinator struct {
	classes   *domain.ClassRegistry
	records   driven.RecordStore
	extractor *AttributeExtractor
	router    *IndexRouter
	client    *IndexClient

	// jobs is set in queued mode.
	jobs driving.JobRunner

	clock   func() time.Time
	newUUID func() string
}

// NewIndexingCoordinator creates a coordinator that indexes inline.
func NewIndexingCoordinator(
	classes *domain.ClassRegistry,
	records driven.RecordStore,
	extractor *AttributeExtractor,
	router *IndexRouter,
	client *IndexClient,
) *IndexingCoordinator {
	return &IndexingCoordinator{
		classes:   classes,
		records:   records,
		extractor: extractor,
		router:    router,
		client:    client,
		clock:     time.Now,
		newUUID:   uuid.NewString,
	}
}

// UseQueue switches the coordinator to queued mode: Index and Remove
// submit jobs instead of calling the remote service. A nil runner
// restores inline mode.
func (c *IndexingCoordinator) UseQueue(jobs driving.JobRunner) {
	c.jobs = jobs
}

// Index writes the record to every index it routes to. A record that may
// not be indexed is removed instead.
func (c *IndexingCoordinator) Index(ctx context.Context, rec *domain.Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", domain.ErrInvalidInput)
	}
	if !c.classes.CanIndex(rec) {
		logger.Debug("%s %d is not indexable, removing", rec.ClassName, rec.ID)
		if err := c.Remove(ctx, rec); err != nil && !errors.Is(err, domain.ErrNotIndexed) {
			return err
		}
		return nil
	}
	if c.jobs != nil {
		if err := c.ensureUUID(ctx, rec); err != nil {
			return err
		}
		_, err := c.jobs.Submit(ctx, domain.JobIndexItems, domain.IndexItemsPayload{
			Class:     rec.ClassName,
			IDs:       []int64{rec.ID},
			Remaining: []int64{rec.ID},
		})
		return err
	}
	return c.index(ctx, rec)
}

// index performs an inline index of an indexable record.
func (c *IndexingCoordinator) index(ctx context.Context, rec *domain.Record) error {
	if err := c.removeFromPreviousClass(ctx, rec); err != nil {
		return c.fail(ctx, rec, err)
	}

	c.assignUUID(rec)
	ext, err := c.extractor.Extract(ctx, rec)
	if err != nil {
		return c.fail(ctx, rec, err)
	}

	targets := c.router.ResolveIndexesForWrite(rec)
	var errs []error
	for _, index := range targets {
		if err := c.client.SaveOne(ctx, index, ext.Document); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return c.fail(ctx, rec, err)
	}

	// Retract copies from indexes whose filter the record no longer passes.
	if rec.IsIndexed() {
		for _, index := range c.router.IndexesForClass(rec.ClassName) {
			if slices.Contains(targets, index) {
				continue
			}
			if err := c.client.Delete(ctx, index, rec.State.SearchUUID); err != nil {
				logger.Warn("retract %s %d from %s: %v", rec.ClassName, rec.ID, index, err)
			}
		}
	}

	if len(targets) == 0 {
		logger.Debug("%s %d routes to no index", rec.ClassName, rec.ID)
		return c.markRemoved(ctx, rec)
	}
	return c.markIndexed(ctx, rec)
}

// removeFromPreviousClass retracts the record from the indexes of the
// class it was last indexed as, when that class differs from the current.
func (c *IndexingCoordinator) removeFromPreviousClass(ctx context.Context, rec *domain.Record) error {
	prev := rec.State.IndexedClassName
	if prev == "" || prev == rec.ClassName || !rec.IsIndexed() {
		return nil
	}
	logger.Debug("%d changed class from %s to %s, removing first", rec.ID, prev, rec.ClassName)
	for _, index := range c.router.IndexesForClass(prev) {
		if err := c.client.Delete(ctx, index, rec.State.SearchUUID); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the record's document from its indexes. Returns
// domain.ErrNotIndexed without any remote call when the record never
// received a search identity.
func (c *IndexingCoordinator) Remove(ctx context.Context, rec *domain.Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", domain.ErrInvalidInput)
	}
	if rec.State.SearchUUID == "" {
		if rec.IsIndexed() {
			if err := c.markRemoved(ctx, rec); err != nil {
				return err
			}
		}
		return fmt.Errorf("%w: %s %d", domain.ErrNotIndexed, rec.ClassName, rec.ID)
	}
	if c.jobs != nil {
		if _, err := c.jobs.Submit(ctx, domain.JobDeleteItem, domain.DeleteItemPayload{
			Class:      rec.ClassName,
			SearchUUID: rec.State.SearchUUID,
		}); err != nil {
			return err
		}
		return c.markRemoved(ctx, rec)
	}
	return c.remove(ctx, rec)
}

// remove performs an inline removal. Indexes of both the current class
// and the class last indexed are targeted. On failure the state is left
// untouched.
func (c *IndexingCoordinator) remove(ctx context.Context, rec *domain.Record) error {
	if err := c.deleteRemote(ctx, rec.ClassName, rec.State.SearchUUID); err != nil {
		return err
	}
	if prev := rec.State.IndexedClassName; prev != "" && prev != rec.ClassName {
		if err := c.deleteRemote(ctx, prev, rec.State.SearchUUID); err != nil {
			return err
		}
	}
	return c.markRemoved(ctx, rec)
}

// deleteRemote deletes a search uuid from every index of a class.
func (c *IndexingCoordinator) deleteRemote(ctx context.Context, class, searchUUID string) error {
	var errs []error
	for _, index := range c.router.IndexesForClass(class) {
		if err := c.client.Delete(ctx, index, searchUUID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IndexByID loads a record and indexes it. A non-empty class must match
// the record's class or one of its ancestors.
func (c *IndexingCoordinator) IndexByID(ctx context.Context, class string, id int64) error {
	rec, err := c.load(ctx, class, id)
	if err != nil {
		return err
	}
	return c.Index(ctx, rec)
}

func (c *IndexingCoordinator) load(ctx context.Context, class string, id int64) (*domain.Record, error) {
	rec, err := c.records.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load %s %d: %w", class, id, err)
	}
	if class != "" && !c.classes.IsA(rec.ClassName, class) {
		return nil, fmt.Errorf("%w: record %d is a %s, not a %s", domain.ErrNotFound, id, rec.ClassName, class)
	}
	return rec, nil
}

// Duplicate saves a copy of rec. The copy has never been indexed under
// its own identity, so it receives a fresh search uuid and empty state.
func (c *IndexingCoordinator) Duplicate(ctx context.Context, rec *domain.Record) (*domain.Record, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", domain.ErrInvalidInput)
	}
	cp := rec.Clone()
	cp.ID = 0
	cp.State = domain.IndexingState{SearchUUID: c.newUUID()}
	if err := c.records.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("save duplicate of %s %d: %w", rec.ClassName, rec.ID, err)
	}
	return cp, nil
}

// Handle dispatches a record lifecycle event.
func (c *IndexingCoordinator) Handle(ctx context.Context, ev domain.Event) error {
	rec := ev.Record
	if rec == nil {
		return fmt.Errorf("%w: event %s without record", domain.ErrInvalidInput, ev.Kind)
	}
	if ev.PreviousClassName != "" && ev.PreviousClassName != rec.ClassName && rec.State.IndexedClassName == "" {
		rec.State.IndexedClassName = ev.PreviousClassName
	}

	switch ev.Kind {
	case domain.EventWrite:
		if err := c.ensureUUID(ctx, rec); err != nil {
			return err
		}
		if rec.Versioned {
			return nil
		}
		return c.Index(ctx, rec)
	case domain.EventPublish:
		return c.Index(ctx, rec)
	case domain.EventUnpublish, domain.EventDelete:
		if err := c.Remove(ctx, rec); err != nil && !errors.Is(err, domain.ErrNotIndexed) {
			return err
		}
		return nil
	case domain.EventDuplicate:
		rec.State = domain.IndexingState{SearchUUID: c.newUUID()}
		return c.saveState(ctx, rec)
	default:
		return fmt.Errorf("%w: unknown event %q", domain.ErrInvalidInput, ev.Kind)
	}
}

// Inspect compares a record's local document with its remote copies.
func (c *IndexingCoordinator) Inspect(ctx context.Context, class string, id int64) (*driving.Inspection, error) {
	rec, err := c.load(ctx, class, id)
	if err != nil {
		return nil, err
	}
	out := &driving.Inspection{
		Record:       rec,
		Indexes:      c.router.ResolveIndexesForWrite(rec),
		Remote:       make(map[string]*domain.Document),
		RemoteErrors: make(map[string]string),
		Settings:     make(map[string]map[string]any),
	}

	if rec.State.SearchUUID != "" {
		ext, err := c.extractor.Extract(ctx, rec)
		if err != nil {
			return nil, err
		}
		out.Local = ext.Document
		out.Dropped = ext.Dropped
	}

	for _, index := range out.Indexes {
		if rec.State.SearchUUID != "" {
			doc, err := c.client.GetByID(ctx, index, rec.State.SearchUUID)
			switch {
			case err == nil:
				out.Remote[index] = doc
			case !errors.Is(err, domain.ErrNotFound):
				out.RemoteErrors[index] = err.Error()
			}
		}
		settings, err := c.client.Settings(ctx, index)
		if err != nil {
			logger.Debug("inspect settings of %s: %v", index, err)
			continue
		}
		out.Settings[index] = settings
	}
	return out, nil
}

// assignUUID gives the record a search identity if it has none.
func (c *IndexingCoordinator) assignUUID(rec *domain.Record) bool {
	if rec.State.SearchUUID != "" {
		return false
	}
	rec.State.SearchUUID = c.newUUID()
	return true
}

// ensureUUID assigns and persists a search identity.
func (c *IndexingCoordinator) ensureUUID(ctx context.Context, rec *domain.Record) error {
	if !c.assignUUID(rec) {
		return nil
	}
	return c.saveState(ctx, rec)
}

// markIndexed records a successful write.
func (c *IndexingCoordinator) markIndexed(ctx context.Context, rec *domain.Record) error {
	now := c.clock()
	rec.State.LastIndexedAt = &now
	rec.State.LastError = ""
	rec.State.IndexedClassName = rec.ClassName
	return c.saveState(ctx, rec)
}

// markRemoved records that the record is no longer in any index.
func (c *IndexingCoordinator) markRemoved(ctx context.Context, rec *domain.Record) error {
	rec.State.LastIndexedAt = nil
	rec.State.IndexedClassName = ""
	return c.saveState(ctx, rec)
}

// fail records an indexing failure and returns it. lastIndexedAt is kept.
func (c *IndexingCoordinator) fail(ctx context.Context, rec *domain.Record, cause error) error {
	rec.State.LastError = cause.Error()
	logger.Debug("index %s %d failed: %v", rec.ClassName, rec.ID, cause)
	if err := c.saveState(ctx, rec); err != nil {
		return errors.Join(cause, err)
	}
	return fmt.Errorf("index %s %d: %w", rec.ClassName, rec.ID, cause)
}

func (c *IndexingCoordinator) saveState(ctx context.Context, rec *domain.Record) error {
	if err := c.records.SaveIndexingState(ctx, rec.ID, rec.State); err != nil {
		return fmt.Errorf("save indexing state of %s %d: %w", rec.ClassName, rec.ID, err)
	}
	return nil
}
