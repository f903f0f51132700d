package algolia

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/opt"
	"github.com/algolia/algoliasearch-client-go/v3/algolia/search"
	"github.com/algolia/algoliasearch-client-go/v3/algolia/transport"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
	"github.com/custodia-labs/algosync/internal/logger"
)

// Ensure Backend implements the interface.
var _ driven.SearchBackend = (*Backend)(nil)

// Config holds the client settings of a Backend.
type Config struct {
	ApplicationID string
	APIKey        string

	// RequestsPerSecond and Burst configure proactive throttling.
	RequestsPerSecond float64
	Burst             int

	// Timeout bounds every request; zero keeps the client defaults.
	Timeout time.Duration

	// Requester replaces the HTTP transport, mainly for tests.
	Requester transport.Requester
}

// Backend is an Algolia application addressed with the admin API key.
type Backend struct {
	client  *search.Client
	limiter *RateLimiter
}

// New creates a backend. Credentials must be present.
func New(cfg Config) (*Backend, error) {
	if cfg.ApplicationID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: algolia application id and admin api key are required", domain.ErrConfiguration)
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = DefaultRate
	}
	if cfg.Burst == 0 {
		cfg.Burst = DefaultBurst
	}

	clientCfg := search.Configuration{
		AppID:     cfg.ApplicationID,
		APIKey:    cfg.APIKey,
		Requester: cfg.Requester,
	}
	if cfg.Timeout > 0 {
		clientCfg.ReadTimeout = cfg.Timeout
		clientCfg.WriteTimeout = cfg.Timeout
	}
	return &Backend{
		client:  search.NewClientWithConfig(clientCfg),
		limiter: NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
	}, nil
}

// NewFromSettings creates a backend from the admin credentials.
func NewFromSettings(s domain.AlgoliaSettings) (*Backend, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return New(Config{ApplicationID: s.ApplicationID, APIKey: s.AdminAPIKey})
}

// Index returns a handle for the named remote index.
func (b *Backend) Index(name string) driven.RemoteIndex {
	return &index{
		name:    name,
		index:   b.client.InitIndex(name),
		limiter: b.limiter,
	}
}

// index implements driven.RemoteIndex. The client has no context support,
// so cancellation is honoured before each request.
type index struct {
	name    string
	index   *search.Index
	limiter *RateLimiter
}

func (i *index) Name() string {
	return i.name
}

// do waits for the limiter, runs call and maps its error.
func (i *index) do(ctx context.Context, op string, call func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := i.limiter.Wait(ctx); err != nil {
		return err
	}
	status, err := mapError(fmt.Sprintf("%s %s", op, i.name), call())
	i.limiter.Observe(status)
	if err != nil {
		logger.Debug("algolia %s %s: %v", op, i.name, err)
	}
	return err
}

func (i *index) SaveObjects(ctx context.Context, docs []*domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	objects := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		if doc.ObjectID() == "" {
			return fmt.Errorf("%w: document without objectID", domain.ErrInvalidInput)
		}
		objects = append(objects, doc.Map())
	}
	return i.do(ctx, "save objects", func() error {
		_, err := i.index.SaveObjects(objects)
		return err
	})
}

func (i *index) DeleteObject(ctx context.Context, objectID string) error {
	return i.do(ctx, "delete object", func() error {
		_, err := i.index.DeleteObject(objectID)
		return err
	})
}

func (i *index) GetObject(ctx context.Context, objectID string) (*domain.Document, error) {
	var obj map[string]any
	err := i.do(ctx, "get object", func() error {
		return i.index.GetObject(objectID, &obj)
	})
	if err != nil {
		return nil, err
	}
	return domain.DocumentFromMap(obj), nil
}

func (i *index) Search(ctx context.Context, query string, params domain.SearchParams) (*domain.SearchResponse, error) {
	opts := []any{opt.Page(params.Page)}
	if params.HitsPerPage > 0 {
		opts = append(opts, opt.HitsPerPage(params.HitsPerPage))
	}
	if params.Filters != "" {
		opts = append(opts, opt.Filters(params.Filters))
	}

	var res search.QueryRes
	err := i.do(ctx, "search", func() error {
		var err error
		res, err = i.index.Search(query, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &domain.SearchResponse{
		Hits:        res.Hits,
		NbHits:      res.NbHits,
		Page:        res.Page,
		NbPages:     res.NbPages,
		HitsPerPage: res.HitsPerPage,
	}, nil
}

func (i *index) SetSettings(ctx context.Context, settings map[string]any) error {
	s, err := toSettings(settings)
	if err != nil {
		return err
	}
	return i.do(ctx, "set settings", func() error {
		_, err := i.index.SetSettings(s)
		return err
	})
}

func (i *index) GetSettings(ctx context.Context) (map[string]any, error) {
	var s search.Settings
	err := i.do(ctx, "get settings", func() error {
		var err error
		s, err = i.index.GetSettings()
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromSettings(s)
}

func (i *index) ClearObjects(ctx context.Context) error {
	return i.do(ctx, "clear objects", func() error {
		_, err := i.index.ClearObjects()
		return err
	})
}

// toSettings converts free-form settings to the client's typed settings.
// Keys the client does not model are dropped.
func toSettings(m map[string]any) (search.Settings, error) {
	var s search.Settings
	data, err := json.Marshal(m)
	if err != nil {
		return s, fmt.Errorf("%w: encode index settings: %v", domain.ErrInvalidInput, err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("%w: decode index settings: %v", domain.ErrInvalidInput, err)
	}
	return s, nil
}

func fromSettings(s search.Settings) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode index settings: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode index settings: %w", err)
	}
	return m, nil
}
