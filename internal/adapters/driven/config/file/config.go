package file

import (
	"fmt"
	"time"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

// Config is the on-disk configuration.
type Config struct {
	Algolia AlgoliaSection `toml:"algolia" yaml:"algolia"`
	Indexer IndexerSection `toml:"indexer" yaml:"indexer"`
	Reindex ReindexSection `toml:"reindex" yaml:"reindex"`
	Worker  WorkerSection  `toml:"worker" yaml:"worker"`
	Classes []ClassSection `toml:"classes" yaml:"classes"`
	Indexes []IndexSection `toml:"indexes" yaml:"indexes"`
}

// AlgoliaSection holds account credentials and index naming.
type AlgoliaSection struct {
	ApplicationID string `toml:"application_id" yaml:"application_id"`
	AdminAPIKey   string `toml:"admin_api_key" yaml:"admin_api_key"`
	SearchAPIKey  string `toml:"search_api_key" yaml:"search_api_key"`
	IndexPrefix   string `toml:"index_prefix" yaml:"index_prefix"`
	Environment   string `toml:"environment" yaml:"environment"`
}

// IndexerSection controls extraction, dispatch and page crawling.
type IndexerSection struct {
	IncludePageContent    *bool    `toml:"include_page_content" yaml:"include_page_content"`
	MaxFieldSizeBytes     int      `toml:"max_field_size_bytes" yaml:"max_field_size_bytes"`
	MaxChunks             int      `toml:"max_chunks" yaml:"max_chunks"`
	OversizePolicy        string   `toml:"oversize_policy" yaml:"oversize_policy"`
	BlacklistedAttributes []string `toml:"blacklisted_attributes" yaml:"blacklisted_attributes"`
	UseQueuedIndexing     bool     `toml:"use_queued_indexing" yaml:"use_queued_indexing"`
	BaseURL               string   `toml:"base_url" yaml:"base_url"`
	ContentSelector       string   `toml:"content_selector" yaml:"content_selector"`
	CrawlTimeout          Duration `toml:"crawl_timeout" yaml:"crawl_timeout"`
}

// ReindexSection controls bulk reindexing.
type ReindexSection struct {
	BatchSize  int       `toml:"batch_size" yaml:"batch_size"`
	Pace       *Duration `toml:"pace" yaml:"pace"`
	StaleAfter Duration  `toml:"stale_after" yaml:"stale_after"`

	// DefaultFilters maps a class name to a filter expression.
	DefaultFilters map[string]string `toml:"default_filters" yaml:"default_filters"`
}

// WorkerSection controls the recurring tasks of the worker.
type WorkerSection struct {
	Enabled              *bool    `toml:"enabled" yaml:"enabled"`
	PollInterval         Duration `toml:"poll_interval" yaml:"poll_interval"`
	StaleReindex         *bool    `toml:"stale_reindex" yaml:"stale_reindex"`
	StaleReindexInterval Duration `toml:"stale_reindex_interval" yaml:"stale_reindex_interval"`
}

// ClassSection configures one record class.
type ClassSection struct {
	Name            string   `toml:"name" yaml:"name"`
	Parent          string   `toml:"parent" yaml:"parent"`
	IndexFields     []string `toml:"index_fields" yaml:"index_fields"`
	Renderable      bool     `toml:"renderable" yaml:"renderable"`
	Disabled        bool     `toml:"disabled" yaml:"disabled"`
	CopyContentFrom string   `toml:"copy_content_from" yaml:"copy_content_from"`
}

// IndexSection configures one target index.
type IndexSection struct {
	Name           string            `toml:"name" yaml:"name"`
	IncludeClasses []string          `toml:"include_classes" yaml:"include_classes"`
	IncludeFilter  map[string]string `toml:"include_filter" yaml:"include_filter"`
	Settings       map[string]any    `toml:"settings" yaml:"settings"`
	Replicas       []string          `toml:"replicas" yaml:"replicas"`
}

// Duration is a time.Duration written as a Go duration string ("90s").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Domain converts the file configuration into the immutable runtime
// configuration. behaviours attaches class behaviours by class name.
func (c *Config) Domain(behaviours map[string]any) (*domain.Config, error) {
	settings, err := c.settings()
	if err != nil {
		return nil, err
	}

	specs := make([]domain.ClassSpec, 0, len(c.Classes))
	for _, cs := range c.Classes {
		specs = append(specs, domain.ClassSpec{
			Name:            cs.Name,
			Parent:          cs.Parent,
			IndexFields:     cs.IndexFields,
			Renderable:      cs.Renderable,
			Disabled:        cs.Disabled,
			CopyContentFrom: cs.CopyContentFrom,
			Behaviour:       behaviours[cs.Name],
		})
	}
	classes, err := domain.NewClassRegistry(specs...)
	if err != nil {
		return nil, fmt.Errorf("%w: classes: %v", domain.ErrConfiguration, err)
	}

	settings.Reindex.DefaultFilters, err = parseFilters(classes, "reindex.default_filters", c.Reindex.DefaultFilters)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.IndexEntry, 0, len(c.Indexes))
	for _, is := range c.Indexes {
		for _, name := range is.IncludeClasses {
			if _, ok := classes.Spec(name); !ok {
				return nil, fmt.Errorf("%w: index %s includes unknown class %s", domain.ErrConfiguration, is.Name, name)
			}
		}
		filters, err := parseFilters(classes, "index "+is.Name+" include_filter", is.IncludeFilter)
		if err != nil {
			return nil, err
		}
		entries = append(entries, domain.IndexEntry{
			Name:           is.Name,
			IncludeClasses: is.IncludeClasses,
			IncludeFilter:  filters,
			Settings:       is.Settings,
			Replicas:       is.Replicas,
		})
	}
	indexes, err := domain.NewIndexMapping(entries...)
	if err != nil {
		return nil, fmt.Errorf("%w: indexes: %v", domain.ErrConfiguration, err)
	}

	return &domain.Config{Settings: settings, Classes: classes, Indexes: indexes}, nil
}

func (c *Config) settings() (domain.Settings, error) {
	s := domain.DefaultSettings()

	s.Algolia = domain.AlgoliaSettings{
		ApplicationID: c.Algolia.ApplicationID,
		AdminAPIKey:   c.Algolia.AdminAPIKey,
		SearchAPIKey:  c.Algolia.SearchAPIKey,
		IndexPrefix:   c.Algolia.IndexPrefix,
		Environment:   c.Algolia.Environment,
	}

	in := c.Indexer
	if in.IncludePageContent != nil {
		s.Indexer.IncludePageContent = *in.IncludePageContent
	}
	s.Indexer.MaxFieldSizeBytes = in.MaxFieldSizeBytes
	s.Indexer.MaxChunks = in.MaxChunks
	s.Indexer.OversizePolicy = domain.OversizePolicy(in.OversizePolicy)
	if in.BlacklistedAttributes != nil {
		s.Indexer.BlacklistedAttributes = in.BlacklistedAttributes
	}
	s.Indexer.UseQueuedIndexing = in.UseQueuedIndexing
	s.Crawler = domain.CrawlerSettings{
		BaseURL:         in.BaseURL,
		ContentSelector: in.ContentSelector,
		Timeout:         time.Duration(in.CrawlTimeout),
	}

	s.Reindex.BatchSize = c.Reindex.BatchSize
	if c.Reindex.Pace != nil {
		s.Reindex.Pace = time.Duration(*c.Reindex.Pace)
	}
	s.Reindex.StaleAfter = time.Duration(c.Reindex.StaleAfter)

	w := c.Worker
	if w.Enabled != nil {
		s.Scheduler.Enabled = *w.Enabled
	}
	if w.PollInterval > 0 {
		poll := time.Duration(w.PollInterval)
		s.Scheduler.TickInterval = poll
		s.Scheduler.TaskConfigs[domain.TaskIDJobQueue] = domain.TaskConfig{Enabled: true, Interval: poll}
	}
	stale := s.Scheduler.GetTaskConfig(domain.TaskIDStaleReindex)
	if w.StaleReindex != nil {
		stale.Enabled = *w.StaleReindex
	}
	if w.StaleReindexInterval > 0 {
		stale.Interval = time.Duration(w.StaleReindexInterval)
	}
	s.Scheduler.TaskConfigs[domain.TaskIDStaleReindex] = stale

	if err := s.Normalise(); err != nil {
		return s, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return s, nil
}

func parseFilters(classes *domain.ClassRegistry, where string, raw map[string]string) (map[string]domain.Filter, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	filters := make(map[string]domain.Filter, len(raw))
	for class, expr := range raw {
		if _, ok := classes.Spec(class); !ok {
			return nil, fmt.Errorf("%w: %s: unknown class %s", domain.ErrConfiguration, where, class)
		}
		f, err := domain.ParseFilter(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s for %s: %v", domain.ErrConfiguration, where, class, err)
		}
		if f != nil {
			filters[class] = f
		}
	}
	return filters, nil
}
