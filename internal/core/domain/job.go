package domain

import (
	"encoding/json"
	"time"
)

// JobKind identifies the unit of work a job performs.
type JobKind string

// Job kinds.
const (
	JobIndexItems JobKind = "index-item"
	JobDeleteItem JobKind = "delete-item"
	JobReindexAll JobKind = "reindex-all"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

// Job statuses.
const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobFailed   JobStatus = "failed"
)

// Job is a persisted unit of asynchronous work. Payload is one of
// IndexItemsPayload, DeleteItemPayload or a ReindexCursor, encoded as JSON.
type Job struct {
	ID        string
	Kind      JobKind
	Status    JobStatus
	Payload   json.RawMessage
	Steps     int
	Messages  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AddMessage appends a progress message to the job.
func (j *Job) AddMessage(msg string) {
	j.Messages = append(j.Messages, msg)
}

// IndexItemsPayload indexes the listed records of one class, one per step.
type IndexItemsPayload struct {
	Class     string  `json:"class"`
	IDs       []int64 `json:"ids"`
	Remaining []int64 `json:"remaining"`
}

// DeleteItemPayload removes one document from the indexes of a class.
// The record itself may already be gone.
type DeleteItemPayload struct {
	Class      string `json:"class"`
	SearchUUID string `json:"search_uuid"`
}
