// Package ledger implements the worker local ledger: a small embedded
// record of the job id a worker instance currently holds in flight.
// Purely informational. It exists for crash-visibility logging across an
// unclean shutdown, never to resume or mutate job state — the registry
// and work queue remain the sole sources of truth for correctness.
package ledger

import (
	"fmt"
	"os"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
)

const inFlightKey = "in_flight"

// inFlightRecord is the single record a Ledger ever holds.
type inFlightRecord struct {
	Key       string `boltholdKey:"Key"`
	JobID     string
	StartedAt time.Time
}

// Ledger wraps an embedded BadgerHold database tracking the single job a
// worker instance is currently processing.
type Ledger struct {
	db     *badgerhold.Store
	logger *common.Logger
}

// Open opens (creating if absent) the ledger database at path. Any
// pre-existing in-flight record is logged as a warning and discarded: its
// presence means the previous process holding this ledger did not shut
// down cleanly while handling that job.
func Open(logger *common.Logger, path string) (*Ledger, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory %s: %w", path, err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	l := &Ledger{db: db, logger: logger}
	l.discardStaleEntry()
	return l, nil
}

func (l *Ledger) discardStaleEntry() {
	var rec inFlightRecord
	if err := l.db.Get(inFlightKey, &rec); err != nil {
		return
	}
	l.logger.Warn().
		Str("job_id", rec.JobID).
		Time("started_at", rec.StartedAt).
		Msg("discarding stale worker ledger entry from unclean shutdown")
	l.db.Delete(inFlightKey, inFlightRecord{})
}

// MarkInFlight records jobID as the job this worker instance currently
// holds. Called right after the job is marked PROCESSING, before the
// artifact fetch, static scan and sandbox run.
func (l *Ledger) MarkInFlight(jobID string) error {
	rec := inFlightRecord{Key: inFlightKey, JobID: jobID, StartedAt: time.Now()}
	return l.db.Upsert(inFlightKey, rec)
}

// Clear removes the in-flight record. Called after the terminal registry
// commit and event publish, before the queue ack.
func (l *Ledger) Clear() error {
	err := l.db.Delete(inFlightKey, inFlightRecord{})
	if err == badgerhold.ErrNotFound {
		return nil
	}
	return err
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
