// Package file loads the indexing configuration from a TOML or YAML file.
//
// The file format is chosen by extension: .yaml and .yml are decoded with
// gopkg.in/yaml.v3, anything else as TOML. Credentials may be overridden
// from the environment:
//
//   - ALGOLIA_APPLICATION_ID
//   - ALGOLIA_ADMIN_API_KEY
//   - ALGOLIA_SEARCH_API_KEY
//   - ALGOLIA_PREFIX_INDEX_NAME
//   - ALGOSYNC_ENVIRONMENT
//
// Loader.Watch reloads the file on change for long-running workers.
package file
