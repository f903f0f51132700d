package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// OversizePolicy decides how long text exceeding the field size threshold
// is written. A deployment uses exactly one policy.
type OversizePolicy string

// Available oversize policies.
const (
	// OversizeChunk splits text into numbered <Field>_Block<N> attributes.
	OversizeChunk OversizePolicy = "chunk"

	// OversizeTruncate keeps a single attribute cut at the threshold.
	OversizeTruncate OversizePolicy = "truncate"
)

// IsValid returns true if the policy is recognised.
func (p OversizePolicy) IsValid() bool {
	switch p {
	case OversizeChunk, OversizeTruncate:
		return true
	default:
		return false
	}
}

// Description returns a human-readable description of the policy.
func (p OversizePolicy) Description() string {
	switch p {
	case OversizeChunk:
		return "Chunk (numbered block attributes)"
	case OversizeTruncate:
		return "Truncate (single attribute, hard cap)"
	default:
		return unknownDescription
	}
}

// Defaults mirrored by the config loader.
const (
	DefaultMaxFieldSizeBytes = 10000
	DefaultMaxChunks         = 100
	DefaultBatchSize         = 20
	DefaultPace              = time.Second
	DefaultStaleAfter        = 2 * time.Hour
	DefaultEnvironment       = "dev"
	DefaultContentSelector   = "main"
	DefaultCrawlTimeout      = 10 * time.Second
)

// DefaultBlacklistedAttributes are fields already represented by canonical keys.
func DefaultBlacklistedAttributes() []string {
	return []string{"ID", "Title", "ClassName", "LastEdited", "Created"}
}

// AlgoliaSettings holds remote account configuration.
type AlgoliaSettings struct {
	ApplicationID string
	AdminAPIKey   string
	SearchAPIKey  string

	// IndexPrefix overrides Environment as the index name prefix.
	IndexPrefix string

	// Environment is the deployment environment tag (dev, test, live).
	Environment string
}

// Prefix returns the prefix used to environmentize index names.
func (s AlgoliaSettings) Prefix() string {
	if s.IndexPrefix != "" {
		return s.IndexPrefix
	}
	if s.Environment != "" {
		return s.Environment
	}
	return DefaultEnvironment
}

// Validate reports missing credentials as ErrConfiguration.
func (s AlgoliaSettings) Validate() error {
	if s.ApplicationID == "" {
		return fmt.Errorf("%w: no application id configured", ErrConfiguration)
	}
	if s.AdminAPIKey == "" {
		return fmt.Errorf("%w: no admin api key configured", ErrConfiguration)
	}
	return nil
}

// IndexerSettings controls document extraction and dispatch.
type IndexerSettings struct {
	// IncludePageContent adds crawled main content to renderable records.
	IncludePageContent bool

	// MaxFieldSizeBytes is the byte threshold for a single text attribute.
	MaxFieldSizeBytes int

	// MaxChunks bounds the number of block attributes per field.
	MaxChunks int

	OversizePolicy OversizePolicy

	// BlacklistedAttributes are never copied from index fields.
	BlacklistedAttributes []string

	// UseQueuedIndexing defers index and remove calls to the job queue.
	UseQueuedIndexing bool
}

// CrawlerSettings controls how rendered pages are fetched for main content.
type CrawlerSettings struct {
	// BaseURL resolves relative record links.
	BaseURL string

	// ContentSelector is the element whose text is the main content:
	// a tag name, "#id" or ".class".
	ContentSelector string

	Timeout time.Duration
}

// ReindexSettings controls bulk reindexing.
type ReindexSettings struct {
	BatchSize  int
	Pace       time.Duration
	StaleAfter time.Duration

	// DefaultFilters are per-class predicates applied to bulk candidates.
	DefaultFilters map[string]Filter
}

// Settings holds all runtime settings.
type Settings struct {
	Algolia   AlgoliaSettings
	Indexer   IndexerSettings
	Crawler   CrawlerSettings
	Reindex   ReindexSettings
	Scheduler SchedulerConfig
}

// DefaultSettings returns settings with the documented defaults.
// Credentials are left empty.
func DefaultSettings() Settings {
	return Settings{
		Algolia: AlgoliaSettings{
			Environment: DefaultEnvironment,
		},
		Indexer: IndexerSettings{
			IncludePageContent:    true,
			MaxFieldSizeBytes:     DefaultMaxFieldSizeBytes,
			MaxChunks:             DefaultMaxChunks,
			OversizePolicy:        OversizeChunk,
			BlacklistedAttributes: DefaultBlacklistedAttributes(),
		},
		Crawler: CrawlerSettings{
			ContentSelector: DefaultContentSelector,
			Timeout:         DefaultCrawlTimeout,
		},
		Reindex: ReindexSettings{
			BatchSize:  DefaultBatchSize,
			Pace:       DefaultPace,
			StaleAfter: DefaultStaleAfter,
		},
		Scheduler: DefaultSchedulerConfig(),
	}
}

// Normalise fills zero values with defaults and validates enumerations.
func (s *Settings) Normalise() error {
	d := DefaultSettings()
	if s.Algolia.Environment == "" {
		s.Algolia.Environment = d.Algolia.Environment
	}
	if s.Indexer.MaxFieldSizeBytes <= 0 {
		s.Indexer.MaxFieldSizeBytes = d.Indexer.MaxFieldSizeBytes
	}
	if s.Indexer.MaxChunks <= 0 {
		s.Indexer.MaxChunks = d.Indexer.MaxChunks
	}
	if s.Indexer.OversizePolicy == "" {
		s.Indexer.OversizePolicy = d.Indexer.OversizePolicy
	}
	if !s.Indexer.OversizePolicy.IsValid() {
		return fmt.Errorf("%w: oversize policy %q", ErrInvalidInput, s.Indexer.OversizePolicy)
	}
	if s.Indexer.BlacklistedAttributes == nil {
		s.Indexer.BlacklistedAttributes = d.Indexer.BlacklistedAttributes
	}
	if s.Crawler.ContentSelector == "" {
		s.Crawler.ContentSelector = d.Crawler.ContentSelector
	}
	if s.Crawler.Timeout <= 0 {
		s.Crawler.Timeout = d.Crawler.Timeout
	}
	if s.Reindex.BatchSize <= 0 {
		s.Reindex.BatchSize = d.Reindex.BatchSize
	}
	if s.Reindex.Pace < 0 {
		s.Reindex.Pace = 0
	}
	if s.Reindex.StaleAfter <= 0 {
		s.Reindex.StaleAfter = d.Reindex.StaleAfter
	}
	if s.Scheduler.TaskConfigs == nil {
		s.Scheduler = d.Scheduler
	}
	if s.Scheduler.TickInterval <= 0 {
		s.Scheduler.TickInterval = d.Scheduler.TickInterval
	}
	return nil
}

// Config is the fully loaded configuration: runtime settings plus the
// immutable class registry and index mapping built from it.
type Config struct {
	Settings Settings
	Classes  *ClassRegistry
	Indexes  *IndexMapping
}
