// Package pipeline implements the worker loop (C7): the single consumer
// that drives a job from PROCESSING through the static scanner and
// sandbox executor to a terminal status, then publishing the terminal
// lifecycle event.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
	"github.com/spicyneutrino/distributed-rce-engine/internal/interfaces"
	"github.com/spicyneutrino/distributed-rce-engine/internal/ledger"
	"github.com/spicyneutrino/distributed-rce-engine/internal/models"
)

// Pipeline runs the worker loop and orphan sweeper for one worker
// instance. It holds an exclusive work-queue consumer with prefetch 1:
// one job in flight at a time.
type Pipeline struct {
	registry interfaces.Registry
	queue    interfaces.WorkQueue
	store    interfaces.ArtifactStore
	scanner  interfaces.Scanner
	sandbox  interfaces.Sandbox
	bus      interfaces.EventBus
	hub      interfaces.Hub
	ledger   *ledger.Ledger
	logger   *common.Logger
	config   common.WorkerConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Pipeline wired to its collaborators. ledg may be nil, in
// which case in-flight tracking is skipped (the ledger is purely
// informational, never load-bearing for correctness).
func New(
	registry interfaces.Registry,
	queue interfaces.WorkQueue,
	store interfaces.ArtifactStore,
	scanner interfaces.Scanner,
	sandbox interfaces.Sandbox,
	bus interfaces.EventBus,
	hub interfaces.Hub,
	ledg *ledger.Ledger,
	logger *common.Logger,
	config common.WorkerConfig,
) *Pipeline {
	return &Pipeline{
		registry: registry,
		queue:    queue,
		store:    store,
		scanner:  scanner,
		sandbox:  sandbox,
		bus:      bus,
		hub:      hub,
		ledger:   ledg,
		logger:   logger,
		config:   config,
	}
}

// safeGo launches a goroutine with panic recovery and logging, matching
// the rest of this codebase's background-loop convention.
func (p *Pipeline) safeGo(name string, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic in pipeline goroutine")
			}
		}()
		fn()
	}()
}

// Start launches the consumer loop and the orphan sweeper. Safe to call
// multiple times — stops any existing loops first.
func (p *Pipeline) Start() {
	if p.cancel != nil {
		p.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.safeGo("consumer", func() {
		if err := p.queue.Consume(ctx, p.handle); err != nil && ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("work queue consumer exited unexpectedly")
		}
	})

	p.safeGo("sweeper", func() { p.sweepLoop(ctx) })

	p.logger.Info().
		Dur("sweep_interval", p.config.GetSweepInterval()).
		Dur("orphan_threshold", p.config.GetOrphanThreshold()).
		Msg("worker pipeline started")
}

// Stop cancels both loops and waits for them to exit.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.wg.Wait()
	p.logger.Info().Msg("worker pipeline stopped")
}

// handle implements the per-message contract of spec §4.2.
func (p *Pipeline) handle(d interfaces.Delivery) {
	ctx := context.Background()

	jobID, err := d.JobID()
	if err != nil {
		p.logger.Warn().Err(err).Msg("malformed queue message, dropping")
		d.Ack()
		return
	}

	job, err := p.registry.Get(ctx, jobID)
	if err != nil {
		p.logger.Error().Str("job_id", jobID).Err(err).Msg("registry lookup failed, will redeliver")
		d.Nak()
		return
	}
	if job == nil {
		p.logger.Warn().Str("job_id", jobID).Msg("job row absent, dropping (operator intervention expected)")
		d.Ack()
		return
	}

	// Idempotency guard: a redelivered message for an already-terminal
	// job is a no-op ack, never reprocessed.
	if models.IsTerminal(job.Status) {
		p.logger.Debug().Str("job_id", jobID).Str("status", job.Status).Msg("redelivered terminal job, ack as no-op")
		d.Ack()
		return
	}

	if err := p.registry.MarkProcessing(ctx, jobID); err != nil {
		p.logger.Error().Str("job_id", jobID).Err(err).Msg("failed to mark job processing, will redeliver")
		d.Nak()
		return
	}

	if p.ledger != nil {
		if err := p.ledger.MarkInFlight(jobID); err != nil {
			p.logger.Warn().Str("job_id", jobID).Err(err).Msg("failed to record in-flight ledger entry")
		}
	}

	status, logs := p.execute(ctx, jobID)

	if err := p.registry.Complete(ctx, jobID, status, logs); err != nil {
		p.logger.Error().Str("job_id", jobID).Err(err).Msg("failed to commit terminal status, will redeliver")
		d.Nak()
		return
	}

	p.publish(ctx, jobID, status, logs)

	if p.ledger != nil {
		if err := p.ledger.Clear(); err != nil {
			p.logger.Warn().Str("job_id", jobID).Err(err).Msg("failed to clear in-flight ledger entry")
		}
	}

	d.Ack()
}

// execute fetches the artifact, runs the static scan, and on a clean
// scan invokes the sandbox. Returns the terminal status and logs.
func (p *Pipeline) execute(ctx context.Context, jobID string) (status, logs string) {
	source, err := p.store.Get(ctx, jobID)
	if err != nil {
		p.logger.Error().Str("job_id", jobID).Err(err).Msg("failed to fetch artifact")
		return models.JobStatusFailed, fmt.Sprintf("System Error: %s", err)
	}

	if err := p.scanner.Scan(source); err != nil {
		return models.JobStatusFailed, err.Error()
	}

	output, err := p.sandbox.Run(ctx, source)
	if err != nil {
		p.logger.Error().Str("job_id", jobID).Err(err).Msg("sandbox infrastructure failure")
		return models.JobStatusFailed, fmt.Sprintf("System Error: %s", err)
	}

	if isFailureOutput(output) {
		return models.JobStatusFailed, output
	}
	return models.JobStatusCompleted, output
}

// isFailureOutput reports whether the sandbox's returned string is one
// of its distinguished failure diagnostics rather than program output.
func isFailureOutput(output string) bool {
	const (
		exitPrefix    = "Error (Exit Code"
		timeoutString = "Error: Execution timed out."
		systemPrefix  = "System Error:"
	)
	return len(output) >= len(exitPrefix) && output[:len(exitPrefix)] == exitPrefix ||
		output == timeoutString ||
		len(output) >= len(systemPrefix) && output[:len(systemPrefix)] == systemPrefix
}

// publish broadcasts the terminal event. Publish failures never affect
// the durable path — they are logged and otherwise ignored.
func (p *Pipeline) publish(ctx context.Context, jobID, status, logs string) {
	evt := models.EventMessage{JobID: jobID, Status: status, Logs: logs}
	if err := p.bus.Publish(ctx, evt); err != nil {
		p.logger.Warn().Str("job_id", jobID).Err(err).Msg("failed to publish lifecycle event")
	}
	p.hub.Deliver(evt)
}
