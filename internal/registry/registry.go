// Package registry implements the durable job record (C2) on SurrealDB:
// id -> {filename, status, created_at, logs}.
package registry

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
	"github.com/spicyneutrino/distributed-rce-engine/internal/interfaces"
	"github.com/spicyneutrino/distributed-rce-engine/internal/models"
)

const jobTable = "job"

// jobSelectFields aliases job_id to id for struct mapping, matching the
// shape of models.Job.
const jobSelectFields = "job_id as id, filename, status, created_at, started_at, completed_at, logs"

// Registry implements interfaces.Registry on SurrealDB.
type Registry struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// New connects to SurrealDB and prepares the job table.
func New(ctx context.Context, logger *common.Logger, cfg *common.RegistryConfig) (*Registry, error) {
	db, err := surrealdb.New(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to registry: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": cfg.Username(),
		"pass": cfg.Password(),
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to registry: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to select registry namespace/database: %w", err)
	}

	sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", jobTable)
	if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
		return nil, fmt.Errorf("failed to define job table: %w", err)
	}

	logger.Info().
		Str("endpoint", cfg.Endpoint).
		Str("namespace", cfg.Namespace).
		Str("database", cfg.Database).
		Msg("job registry initialized")

	return &Registry{db: db, logger: logger}, nil
}

// Insert creates a new Job row in QUEUED status.
func (r *Registry) Insert(ctx context.Context, job *models.Job) error {
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}

	sql := `CREATE $rid SET
		job_id = $job_id, filename = $filename, status = $status,
		created_at = $created_at, started_at = $started_at,
		completed_at = $completed_at, logs = $logs`
	vars := map[string]any{
		"rid":          surrealmodels.NewRecordID(jobTable, job.ID),
		"job_id":       job.ID,
		"filename":     job.Filename,
		"status":       job.Status,
		"created_at":   job.CreatedAt,
		"started_at":   job.StartedAt,
		"completed_at": job.CompletedAt,
		"logs":         job.Logs,
	}

	if _, err := surrealdb.Query[any](ctx, r.db, sql, vars); err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns the Job row for id, or (nil, nil) if absent.
func (r *Registry) Get(ctx context.Context, id string) (*models.Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID(jobTable, id)}

	results, err := surrealdb.Query[[]models.Job](ctx, r.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	job := (*results)[0].Result[0]
	return &job, nil
}

// MarkProcessing transitions id from QUEUED to PROCESSING.
func (r *Registry) MarkProcessing(ctx context.Context, id string) error {
	sql := `UPDATE $rid SET status = $processing, started_at = time::now() WHERE status = $queued`
	vars := map[string]any{
		"rid":        surrealmodels.NewRecordID(jobTable, id),
		"processing": models.JobStatusProcessing,
		"queued":     models.JobStatusQueued,
	}
	if _, err := surrealdb.Query[any](ctx, r.db, sql, vars); err != nil {
		return fmt.Errorf("failed to mark job %s processing: %w", id, err)
	}
	return nil
}

// Complete sets a terminal status and logs for id.
func (r *Registry) Complete(ctx context.Context, id, status, logs string) error {
	sql := `UPDATE $rid SET status = $status, completed_at = time::now(), logs = $logs`
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID(jobTable, id),
		"status": status,
		"logs":   logs,
	}
	if _, err := surrealdb.Query[any](ctx, r.db, sql, vars); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", id, err)
	}
	return nil
}

// ListQueuedOlderThan returns QUEUED rows created more than seconds ago.
func (r *Registry) ListQueuedOlderThan(ctx context.Context, seconds int64) ([]*models.Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM " + jobTable +
		" WHERE status = $queued AND created_at < time::now() - " + fmt.Sprintf("%ds", seconds)
	vars := map[string]any{"queued": models.JobStatusQueued}

	results, err := surrealdb.Query[[]models.Job](ctx, r.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned queued jobs: %w", err)
	}

	var jobs []*models.Job
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			jobs = append(jobs, &(*results)[0].Result[i])
		}
	}
	return jobs, nil
}

// Close releases the underlying connection.
func (r *Registry) Close() error {
	r.db.Close(context.Background())
	return nil
}

var _ interfaces.Registry = (*Registry)(nil)
