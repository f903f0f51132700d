package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
	"github.com/custodia-labs/algosync/internal/core/ports/driving"
	"github.com/custodia-labs/algosync/internal/logger"
)

// Ensure BulkReindexScheduler implements the interface.
var _ driving.Reindexer = (*BulkReindexScheduler)(nil)

// BulkReindexScheduler reindexes many records in (index, class) batches.
// Run loops to completion; Step processes one batch of a persisted cursor
// so a job queue can drive the same loop across processes.
type BulkReindexScheduler struct {
	classes     *domain.ClassRegistry
	records     driven.RecordStore
	extractor   *AttributeExtractor
	router      *IndexRouter
	client      *IndexClient
	coordinator *IndexingCoordinator
	settings    domain.ReindexSettings
	clock       func() time.Time
}

// NewBulkReindexScheduler creates a bulk reindexer. Indexing state is
// written through the coordinator.
func NewBulkReindexScheduler(
	classes *domain.ClassRegistry,
	records driven.RecordStore,
	extractor *AttributeExtractor,
	router *IndexRouter,
	client *IndexClient,
	coordinator *IndexingCoordinator,
	settings domain.ReindexSettings,
) *BulkReindexScheduler {
	if settings.BatchSize <= 0 {
		settings.BatchSize = domain.DefaultBatchSize
	}
	if settings.StaleAfter <= 0 {
		settings.StaleAfter = domain.DefaultStaleAfter
	}
	return &BulkReindexScheduler{
		classes:     classes,
		records:     records,
		extractor:   extractor,
		router:      router,
		client:      client,
		coordinator: coordinator,
		settings:    settings,
		clock:       time.Now,
	}
}

// Plan enumerates candidate ids into a fresh cursor. Candidates are the
// records of every (index, class) group that pass the group's include
// filter, the class default filter, the caller's filter and, unless
// forced, the staleness filter. Clearing implies forcing, since the
// cleared indexes no longer hold any record.
func (s *BulkReindexScheduler) Plan(ctx context.Context, opts domain.ReindexOptions) (*domain.ReindexCursor, error) {
	groups, err := s.router.Groups(opts.Only)
	if err != nil {
		return nil, err
	}
	if opts.Clear {
		if err := s.Clear(ctx, opts.Only); err != nil {
			return nil, err
		}
		opts.Force = true
	}

	var stale domain.Filter
	if !opts.Force {
		stale = domain.StalenessFilter(s.clock().Add(-s.settings.StaleAfter))
	}

	cursor := &domain.ReindexCursor{Version: domain.CursorVersion}
	for _, g := range groups {
		ids, err := s.records.QueryIDs(ctx, driven.RecordQuery{
			Classes: []string{g.Class},
			Filter:  domain.Combine(g.Filter, s.settings.DefaultFilters[g.Class], opts.Filter, stale),
		})
		if err != nil {
			return nil, fmt.Errorf("enumerate %s for %s: %w", g.Class, g.Index, err)
		}
		if len(ids) == 0 {
			continue
		}
		slices.SortFunc(ids, compareDesc)
		cursor.Groups = append(cursor.Groups, domain.ReindexGroup{Index: g.Index, Class: g.Class, IDs: ids})
		cursor.Total += len(ids)
	}
	cursor.Report.Candidates = cursor.Total
	logger.Info("reindex planned: %d candidates in %d groups", cursor.Total, len(cursor.Groups))
	return cursor, nil
}

func compareDesc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

// Step processes the next batch of the cursor and advances it. Per-record
// and per-batch failures are counted in the report, never returned.
// A done cursor yields an empty result.
func (s *BulkReindexScheduler) Step(ctx context.Context, cursor *domain.ReindexCursor) (*domain.StepResult, error) {
	if cursor == nil {
		return nil, fmt.Errorf("%w: nil cursor", domain.ErrInvalidInput)
	}
	if cursor.Done() {
		return &domain.StepResult{}, nil
	}
	start := s.clock()
	group := cursor.Groups[cursor.GroupIndex]
	end := min(cursor.Offset+s.settings.BatchSize, len(group.IDs))
	batch := group.IDs[cursor.Offset:end]

	res := &domain.StepResult{Index: group.Index, Class: group.Class, IDs: batch}
	s.processBatch(ctx, group, batch, &res.Report)

	cursor.Offset = end
	if cursor.Offset >= len(group.IDs) {
		cursor.GroupIndex++
		cursor.Offset = 0
	}
	cursor.Report.Add(res.Report)
	res.Elapsed = s.clock().Sub(start)
	return res, nil
}

// processBatch extracts every indexable record of the batch and writes
// the documents with one batch call. Class changes and filter retractions
// are handled as for a single-record index, so both paths end in the same
// remote state.
func (s *BulkReindexScheduler) processBatch(
	ctx context.Context,
	group domain.ReindexGroup,
	ids []int64,
	report *domain.ReindexReport,
) {
	var (
		docs    []*domain.Document
		pending []*domain.Record
	)
	for _, id := range ids {
		rec, err := s.records.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			report.Skipped++
			continue
		}
		if err != nil {
			report.Errored++
			report.Errors = append(report.Errors, fmt.Sprintf("load %s %d: %v", group.Class, id, err))
			continue
		}
		// Records may have changed since enumeration.
		if !s.classes.CanIndex(rec) || !slices.Contains(s.router.ResolveIndexesForWrite(rec), group.Index) {
			report.Skipped++
			continue
		}

		if err := s.coordinator.removeFromPreviousClass(ctx, rec); err != nil {
			report.Errored++
			report.Errors = append(report.Errors, s.coordinator.fail(ctx, rec, err).Error())
			continue
		}

		s.coordinator.assignUUID(rec)
		ext, err := s.extractor.Extract(ctx, rec)
		if err != nil {
			report.Errored++
			report.Errors = append(report.Errors, s.coordinator.fail(ctx, rec, err).Error())
			continue
		}
		docs = append(docs, ext.Document)
		pending = append(pending, rec)
	}
	if len(docs) == 0 {
		return
	}

	report.Batches++
	if err := s.client.SaveBatch(ctx, group.Index, docs); err != nil {
		report.Errored += len(pending)
		report.Errors = append(report.Errors, fmt.Sprintf("batch %s/%s: %v", group.Index, group.Class, err))
		for _, rec := range pending {
			logger.Debug("%v", s.coordinator.fail(ctx, rec, err))
		}
		return
	}
	for _, rec := range pending {
		s.retract(ctx, rec)
		if err := s.coordinator.markIndexed(ctx, rec); err != nil {
			report.Errored++
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		report.Indexed++
	}
}

// retract deletes an already indexed record from the indexes of its class
// whose include filter it no longer passes. Such indexes never enumerate
// the record, so the group that still holds it does the cleanup.
func (s *BulkReindexScheduler) retract(ctx context.Context, rec *domain.Record) {
	if !rec.IsIndexed() {
		return
	}
	targets := s.router.ResolveIndexesForWrite(rec)
	for _, index := range s.router.IndexesForClass(rec.ClassName) {
		if slices.Contains(targets, index) {
			continue
		}
		if err := s.client.Delete(ctx, index, rec.State.SearchUUID); err != nil {
			logger.Warn("retract %s %d from %s: %v", rec.ClassName, rec.ID, index, err)
		}
	}
}

// Run plans and processes every batch, pacing between batches to respect
// remote rate limits. progress, if non-nil, is called after every batch.
func (s *BulkReindexScheduler) Run(
	ctx context.Context,
	opts domain.ReindexOptions,
	progress func(domain.StepResult),
) (*domain.ReindexReport, error) {
	cursor, err := s.Plan(ctx, opts)
	if err != nil {
		return nil, err
	}

	pace := rate.NewLimiter(rate.Inf, 1)
	if s.settings.Pace > 0 {
		pace = rate.NewLimiter(rate.Every(s.settings.Pace), 1)
	}
	for !cursor.Done() {
		if err := pace.Wait(ctx); err != nil {
			return &cursor.Report, err
		}
		res, err := s.Step(ctx, cursor)
		if err != nil {
			return &cursor.Report, err
		}
		if progress != nil {
			progress(*res)
		}
	}
	r := cursor.Report
	logger.Info("reindex done: %d candidates, %d indexed, %d skipped, %d errored",
		r.Candidates, r.Indexed, r.Skipped, r.Errored)
	return &r, nil
}

// Clear empties the write indexes of the given classes and their
// subclasses, or every write index when only is empty.
func (s *BulkReindexScheduler) Clear(ctx context.Context, only []string) error {
	var indexes []string
	if len(only) == 0 {
		indexes = s.router.WriteIndexes()
	} else {
		for _, class := range only {
			if _, ok := s.classes.Spec(class); !ok {
				return fmt.Errorf("%w: %s", domain.ErrUnknownClass, class)
			}
			for _, d := range s.classes.Descendants(class) {
				for _, index := range s.router.IndexesForClass(d) {
					if !slices.Contains(indexes, index) {
						indexes = append(indexes, index)
					}
				}
			}
		}
	}
	for _, index := range indexes {
		if err := s.client.Clear(ctx, index); err != nil {
			return err
		}
	}
	return nil
}
