// Package domain defines the core entities of the indexing pipeline.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Record: A content entity owned by the record store
//   - Document: The ordered projection of a record sent to the search index
//   - ClassRegistry: Static per-class indexing configuration and ancestry
//   - IndexMapping: Which classes route to which named indexes
//   - Filter: Record predicates shared by routing and bulk enumeration
//   - ReindexCursor: Resumable bulk reindex state
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
