package services

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
	"github.com/custodia-labs/algosync/internal/core/ports/driving"
	"github.com/custodia-labs/algosync/internal/logger"
)

// Ensure IndexClient implements the interface.
var _ driving.SettingsSyncer = (*IndexClient)(nil)

// settingsConcurrency bounds parallel settings pushes.
const settingsConcurrency = 4

// IndexClient wraps the remote search backend with environment isolation.
// Every operation takes a logical index name and addresses the
// environmentized remote index.
type IndexClient struct {
	backend driven.SearchBackend
	mapping *domain.IndexMapping
	prefix  string
}

// NewIndexClient creates a client. The prefix comes from the index prefix
// override when set, otherwise from the deployment environment.
func NewIndexClient(backend driven.SearchBackend, mapping *domain.IndexMapping, algolia domain.AlgoliaSettings) *IndexClient {
	return &IndexClient{
		backend: backend,
		mapping: mapping,
		prefix:  algolia.Prefix(),
	}
}

// Environmentize returns the remote name of a logical index.
func (c *IndexClient) Environmentize(name string) string {
	return c.prefix + "_" + name
}

func (c *IndexClient) remote(name string) driven.RemoteIndex {
	return c.backend.Index(c.Environmentize(name))
}

// SaveOne upserts a single document.
func (c *IndexClient) SaveOne(ctx context.Context, index string, doc *domain.Document) error {
	return c.SaveBatch(ctx, index, []*domain.Document{doc})
}

// SaveBatch upserts documents that share one target index.
func (c *IndexClient) SaveBatch(ctx context.Context, index string, docs []*domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := c.remote(index).SaveObjects(ctx, docs); err != nil {
		return fmt.Errorf("save %d documents to %s: %w", len(docs), c.Environmentize(index), err)
	}
	logger.Debug("saved %d documents to %s", len(docs), c.Environmentize(index))
	return nil
}

// SaveRouted writes a heterogeneous set of documents index by index, in
// configuration order. A failing index does not stop the others.
func (c *IndexClient) SaveRouted(ctx context.Context, routed map[string][]*domain.Document) error {
	var errs []error
	order := c.mapping.Names()
	for name := range routed {
		if _, ok := c.mapping.Entry(name); !ok {
			order = append(order, name)
		}
	}
	for _, name := range order {
		docs, ok := routed[name]
		if !ok {
			continue
		}
		if err := c.SaveBatch(ctx, name, docs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Delete removes a document by object id. A missing document is not an error.
func (c *IndexClient) Delete(ctx context.Context, index, objectID string) error {
	err := c.remote(index).DeleteObject(ctx, objectID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete %s from %s: %w", objectID, c.Environmentize(index), err)
	}
	return nil
}

// GetByID fetches a stored document.
// Returns domain.ErrNotFound when the index holds no such document.
func (c *IndexClient) GetByID(ctx context.Context, index, objectID string) (*domain.Document, error) {
	doc, err := c.remote(index).GetObject(ctx, objectID)
	if err != nil {
		return nil, fmt.Errorf("get %s from %s: %w", objectID, c.Environmentize(index), err)
	}
	return doc, nil
}

// Search runs a query against a logical index.
func (c *IndexClient) Search(
	ctx context.Context,
	index, query string,
	params domain.SearchParams,
) (*domain.SearchResponse, error) {
	resp, err := c.remote(index).Search(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.Environmentize(index), err)
	}
	return resp, nil
}

// Settings returns the remote settings of a logical index.
func (c *IndexClient) Settings(ctx context.Context, index string) (map[string]any, error) {
	settings, err := c.remote(index).GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("get settings of %s: %w", c.Environmentize(index), err)
	}
	return settings, nil
}

// Clear removes every document from a logical index.
func (c *IndexClient) Clear(ctx context.Context, index string) error {
	if err := c.remote(index).ClearObjects(ctx); err != nil {
		return fmt.Errorf("clear %s: %w", c.Environmentize(index), err)
	}
	logger.Info("cleared %s", c.Environmentize(index))
	return nil
}

// SyncSettings pushes every entry's settings to its remote index. Replica
// names in the settings are rewritten to their environmentized form.
func (c *IndexClient) SyncSettings(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(settingsConcurrency)

	for _, e := range c.mapping.Entries() {
		settings := c.remoteSettings(e)
		if len(settings) == 0 {
			logger.Debug("no settings for %s", e.Name)
			continue
		}
		name := e.Name
		g.Go(func() error {
			if err := c.remote(name).SetSettings(gctx, settings); err != nil {
				return fmt.Errorf("set settings of %s: %w", c.Environmentize(name), err)
			}
			logger.Info("updated settings of %s", c.Environmentize(name))
			return nil
		})
	}
	return g.Wait()
}

// remoteSettings returns a copy of the entry's settings ready to send.
func (c *IndexClient) remoteSettings(e domain.IndexEntry) map[string]any {
	settings := maps.Clone(e.Settings)
	if settings == nil {
		settings = make(map[string]any)
	}
	names := e.Replicas
	if len(names) == 0 {
		names = stringList(settings["replicas"])
	}
	if len(names) > 0 {
		replicas := make([]string, 0, len(names))
		for _, r := range names {
			replicas = append(replicas, c.Environmentize(r))
		}
		settings["replicas"] = replicas
	}
	return settings
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
