// Package interfaces defines the service contracts between pipeline components.
package interfaces

import (
	"context"
	"io"

	"github.com/spicyneutrino/distributed-rce-engine/internal/models"
)

// ArtifactStore is the content-addressed blob store (C1). Keys are job ids.
// An artifact is never mutated once written; its lifetime is independent
// of the Job row.
type ArtifactStore interface {
	Put(ctx context.Context, jobID string, data []byte) error
	Get(ctx context.Context, jobID string) ([]byte, error)
	Close() error
}

// Registry is the durable job record (C2): id -> {filename, status,
// created_at, logs}. Every operation commits atomically.
type Registry interface {
	// Insert creates a new Job row in QUEUED status. Returns an error if
	// a row with the same id already exists.
	Insert(ctx context.Context, job *models.Job) error

	// Get returns the Job row for id, or (nil, nil) if absent.
	Get(ctx context.Context, id string) (*models.Job, error)

	// MarkProcessing transitions id from QUEUED to PROCESSING.
	MarkProcessing(ctx context.Context, id string) error

	// Complete sets a terminal status and logs for id.
	Complete(ctx context.Context, id, status, logs string) error

	// ListQueuedOlderThan returns QUEUED rows created before the cutoff,
	// for the orphan-recovery sweeper described in spec.md §4.1/§9.
	ListQueuedOlderThan(ctx context.Context, seconds int64) ([]*models.Job, error)

	Close() error
}

// WorkQueue is the durable point-to-point queue of pending job ids (C3).
// Delivery is at-least-once with redelivery on un-acked consumer loss;
// prefetch per consumer is 1.
type WorkQueue interface {
	// Enqueue publishes a QueueMessage with the durable-delivery flag.
	Enqueue(ctx context.Context, jobID string) error

	// Consume blocks delivering messages to handler one at a time
	// (prefetch 1) until ctx is cancelled. handler must call Ack or Nak
	// on the delivery before returning.
	Consume(ctx context.Context, handler func(Delivery)) error

	Close() error
}

// Delivery wraps one received QueueMessage with its ack/nak controls.
type Delivery interface {
	JobID() (string, error) // malformed body surfaces as a decode error
	Ack() error
	Nak() error
}

// EventBus is the ephemeral broadcast fan-out channel of job lifecycle
// events (C4). Publish failures must never affect the durable path —
// callers log and continue.
type EventBus interface {
	Publish(ctx context.Context, evt models.EventMessage) error
	Subscribe(ctx context.Context) (<-chan models.EventMessage, func(), error)
	Close() error
}

// Scanner performs the static pre-filter (C5): a source-level token walk
// rejecting forbidden imports and calls. It never executes the artifact.
type Scanner interface {
	Scan(source []byte) error // returns *scanner.SecurityViolation, or nil
}

// Sandbox executes an artifact inside a hardened container (C6). It never
// raises for execution-time failures — the contract is run(bytes) -> string,
// with failures encoded in the returned string per spec.md §4.4.
type Sandbox interface {
	Run(ctx context.Context, source []byte) (string, error)
}

// Hub is the live per-job subscription hub (C9): at most one subscriber
// channel per job id; a second subscription for the same id evicts the
// first.
type Hub interface {
	Register(jobID string) <-chan models.EventMessage
	Unregister(jobID string, ch <-chan models.EventMessage)
	Deliver(evt models.EventMessage)
}

// ArtifactReader is satisfied by stores that can stream large artifacts
// instead of buffering them fully; not required by the core contract. The
// BlobStore backends in internal/artifact have a matching PutReader method;
// no component in this module refers to this interface.
type ArtifactReader interface {
	PutReader(ctx context.Context, jobID string, r io.Reader, size int64) error
}
