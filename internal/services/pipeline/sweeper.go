package pipeline

import (
	"context"
	"time"
)

// sweepLoop periodically requeues QUEUED rows older than the configured
// orphan threshold: rows whose artifact/registry commit succeeded but
// whose best-effort enqueue (spec §4.1 step 4) was lost. This is
// out-of-core-scope recovery, not a correctness mechanism — the registry
// remains the sole source of truth.
func (p *Pipeline) sweepLoop(ctx context.Context) {
	interval := p.config.GetSweepInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepOrphans(ctx)
		}
	}
}

func (p *Pipeline) sweepOrphans(ctx context.Context) {
	threshold := p.config.GetOrphanThreshold()
	jobs, err := p.registry.ListQueuedOlderThan(ctx, int64(threshold.Seconds()))
	if err != nil {
		p.logger.Warn().Err(err).Msg("orphan sweep: failed to list stale queued rows")
		return
	}

	for _, job := range jobs {
		if err := p.queue.Enqueue(ctx, job.ID); err != nil {
			p.logger.Warn().Str("job_id", job.ID).Err(err).Msg("orphan sweep: failed to requeue")
			continue
		}
		p.logger.Info().Str("job_id", job.ID).Msg("orphan sweep: requeued stale QUEUED job")
	}
}
