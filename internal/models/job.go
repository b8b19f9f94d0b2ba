// Package models defines the wire and storage shapes of the job pipeline.
package models

import "time"

// Job status constants. Status advances along exactly one of two paths:
// QUEUED -> PROCESSING -> COMPLETED or QUEUED -> PROCESSING -> FAILED.
const (
	JobStatusQueued     = "QUEUED"
	JobStatusProcessing = "PROCESSING"
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
)

// IsTerminal reports whether status is a terminal state (COMPLETED or FAILED).
func IsTerminal(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// Job is the durable registry row for one submission. (id) is the sole
// natural key; id is client-opaque. logs is populated iff status is
// terminal. A Job row is created only by the ingress gate; its status
// is mutated only by the worker loop.
type Job struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Logs        string    `json:"logs"`
}

// QueueMessage is the durable work-queue body. Delivery is at-least-once
// with redelivery on un-acked consumer loss; prefetch per consumer is 1.
type QueueMessage struct {
	JobID string `json:"job_id"`
}

// EventMessage is the ephemeral event-bus body. Persistence: none.
// Fan-out: broadcast — every subscribed hub instance receives every event.
type EventMessage struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Logs   string `json:"logs"`
}
