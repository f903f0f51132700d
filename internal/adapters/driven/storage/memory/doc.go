// Package memory provides in-memory implementations of the driven ports.
// They back the dry-run mode of the CLI and serve as fakes in tests.
package memory
