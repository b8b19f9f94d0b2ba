// Package ingress implements the ingress gate (C8): accepts a submitted
// artifact, assigns it a job id, and drives it through the
// artifact-before-registry-before-queue commit order.
package ingress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
	"github.com/spicyneutrino/distributed-rce-engine/internal/interfaces"
	"github.com/spicyneutrino/distributed-rce-engine/internal/models"
)

// Gate accepts submissions and commits them through C1 -> C2 -> C3 in
// that mandatory order: a worker must never dequeue an id whose
// artifact is absent, and a registry row must never reference a
// missing artifact.
type Gate struct {
	store    interfaces.ArtifactStore
	registry interfaces.Registry
	queue    interfaces.WorkQueue
	logger   *common.Logger
	config   common.IngressConfig

	uploadSem chan struct{}
}

// New builds a Gate with a bounded upload semaphore sized from
// config.UploadConcurrency, which caps how many blocking artifact-store
// writes run at once.
func New(
	store interfaces.ArtifactStore,
	registry interfaces.Registry,
	queue interfaces.WorkQueue,
	logger *common.Logger,
	config common.IngressConfig,
) *Gate {
	limit := config.UploadConcurrency
	if limit <= 0 {
		limit = 100
	}
	return &Gate{
		store:     store,
		registry:  registry,
		queue:     queue,
		logger:    logger,
		config:    config,
		uploadSem: make(chan struct{}, limit),
	}
}

// ErrArtifactTooLarge is returned when the submitted bytes exceed the
// configured maximum.
var ErrArtifactTooLarge = fmt.Errorf("artifact exceeds configured maximum size")

// Submit implements the submit(filename, bytes) -> {job_id, status} contract.
func (g *Gate) Submit(ctx context.Context, filename string, data []byte) (*models.Job, error) {
	if g.config.MaxArtifactBytes > 0 && int64(len(data)) > g.config.MaxArtifactBytes {
		return nil, ErrArtifactTooLarge
	}

	jobID := uuid.New().String()

	if err := g.uploadArtifact(ctx, jobID, data); err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}

	job := &models.Job{
		ID:        jobID,
		Filename:  filename,
		Status:    models.JobStatusQueued,
		CreatedAt: time.Now(),
	}
	if err := g.registry.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to record job: %w", err)
	}

	if err := g.queue.Enqueue(ctx, jobID); err != nil {
		// Best-effort after commit: the row stays QUEUED and becomes
		// orphaned, to be recovered by the sweeper. The submitter still
		// gets back a valid job id.
		g.logger.Warn().Str("job_id", jobID).Err(err).Msg("failed to enqueue job, relying on orphan sweep")
	}

	return job, nil
}

// uploadArtifact performs the blocking object-store write on the caller's
// goroutine once a slot in the bounded upload semaphore is free, or
// returns ctx's error if ctx ends while waiting for a slot.
func (g *Gate) uploadArtifact(ctx context.Context, jobID string, data []byte) error {
	select {
	case g.uploadSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.uploadSem }()

	return g.store.Put(ctx, jobID, data)
}
