// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - RecordStore: Content records and their indexing state
//   - SearchBackend: The remote search service (Algolia)
//   - ConfigLoader: Class registry, index mapping and runtime settings
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - Crawler: Main-content extraction. Without it, no objectForTemplate is written.
//   - JobStore: Persisted asynchronous jobs. Without it, queued indexing is unavailable.
//   - SchedulerStore: Recurring task state. Without it, the worker keeps state in memory.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
