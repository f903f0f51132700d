// Package services implements the driving port interfaces.
//
// The indexing pipeline is split across a few collaborators:
// AttributeExtractor turns a record into a search document, IndexRouter
// decides which indexes a record belongs to, IndexClient talks to the
// environmentized remote indexes and IndexingCoordinator owns the
// per-record indexing state. BulkReindexScheduler and JobRunner drive the
// same pipeline in batches, and Scheduler runs the worker's recurring
// tasks.
//
// Services are pure Go and depend only on driven ports.
package services
