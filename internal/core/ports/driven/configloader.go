package driven

import "github.com/custodia-labs/algosync/internal/core/domain"

// ConfigLoader reads the indexing configuration.
// Implementations handle the file format and environment overrides.
type ConfigLoader interface {
	// Load reads and validates the configuration.
	Load() (*domain.Config, error)

	// Path returns the configuration file path.
	Path() string
}
