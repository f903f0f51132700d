package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
	"github.com/custodia-labs/algosync/internal/core/ports/driving"
	"github.com/custodia-labs/algosync/internal/logger"
)

// Ensure QueryMapper implements the interface.
var _ driving.Querier = (*QueryMapper)(nil)

// DefaultHitsPerPage is used when a request does not set one.
const DefaultHitsPerPage = 20

// QueryMapper runs remote searches and maps hits back to local records.
type QueryMapper struct {
	classes *domain.ClassRegistry
	records driven.RecordStore
	client  *IndexClient
	mapping *domain.IndexMapping
}

// NewQueryMapper creates a query mapper.
func NewQueryMapper(
	classes *domain.ClassRegistry,
	records driven.RecordStore,
	client *IndexClient,
	mapping *domain.IndexMapping,
) *QueryMapper {
	return &QueryMapper{
		classes: classes,
		records: records,
		client:  client,
		mapping: mapping,
	}
}

// Search queries the requested index, or the first configured index, and
// returns the hits whose local records exist, still have the hit's class
// and may be viewed.
func (q *QueryMapper) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchPage, error) {
	index := req.Index
	if index == "" {
		index = q.mapping.Default()
	}
	if index == "" {
		return nil, fmt.Errorf("%w: no index configured", domain.ErrConfiguration)
	}
	params := req.Params
	if params.HitsPerPage <= 0 {
		params.HitsPerPage = DefaultHitsPerPage
	}
	if params.Page < 0 {
		params.Page = 0
	}

	resp, err := q.client.Search(ctx, index, req.Query, params)
	if err != nil {
		return nil, err
	}

	page := &domain.SearchPage{
		CurrentPage: resp.Page + 1,
		TotalItems:  resp.NbHits,
		PageStart:   resp.Page * resp.HitsPerPage,
		PageLength:  resp.HitsPerPage,
	}
	for _, hit := range resp.Hits {
		rec, err := q.resolve(ctx, hit)
		if err != nil {
			logger.Debug("search %s: dropping hit %v: %v", index, hit[domain.KeyObjectID], err)
			page.Dropped++
			continue
		}
		page.Records = append(page.Records, *rec)
	}
	return page, nil
}

// resolve loads the viewable local record behind a hit.
func (q *QueryMapper) resolve(ctx context.Context, hit map[string]any) (*domain.Record, error) {
	class, _ := hit[domain.KeyClassName].(string)
	id, ok := hitID(hit[domain.KeyLocalID])
	if class == "" || !ok {
		return nil, fmt.Errorf("%w: hit lacks class or local id", domain.ErrInvalidInput)
	}
	rec, err := q.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !q.classes.IsA(rec.ClassName, class) {
		return nil, fmt.Errorf("%w: record %d is now a %s", domain.ErrNotFound, id, rec.ClassName)
	}
	if !q.classes.CanView(rec) {
		return nil, errors.New("not viewable")
	}
	return rec, nil
}

// hitID reads a local id decoded from JSON or stored natively.
func hitID(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), n == float64(int64(n))
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		return id, err == nil
	}
	return 0, false
}
