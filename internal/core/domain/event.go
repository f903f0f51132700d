package domain

// EventKind is a record lifecycle event observed by the indexer.
type EventKind string

// Lifecycle events.
const (
	EventWrite     EventKind = "write"
	EventPublish   EventKind = "publish"
	EventUnpublish EventKind = "unpublish"
	EventDelete    EventKind = "delete"
	EventDuplicate EventKind = "duplicate"
)

// Event carries a lifecycle event for one record.
type Event struct {
	Kind   EventKind
	Record *Record

	// PreviousClassName is the class before the write, when it changed.
	PreviousClassName string
}
