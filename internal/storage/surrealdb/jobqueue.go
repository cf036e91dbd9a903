// Package surrealdb implements the production C9 metadata-store adapter
// against an external SurrealDB instance.
package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// jobSelectFields aliases job_id to id for struct mapping against the
// job_queue table.
const jobSelectFields = "job_id as id, type, payload, priority, attempt, max_attempts, status, error, run_after, lease_owner, lease_expiry, created_at, updated_at, completed_at"

// deadLetterTable holds jobs that exhausted max_attempts.
const deadLetterTable = "job_dead_letter"
const jobTable = "job_queue"

// JobQueueStore implements interfaces.JobQueueStore using SurrealDB.
type JobQueueStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewJobQueueStore creates a new JobQueueStore.
func NewJobQueueStore(db *surrealdb.DB, logger *common.Logger) *JobQueueStore {
	return &JobQueueStore{db: db, logger: logger}
}

func (s *JobQueueStore) Enqueue(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.JobStatusWaiting
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.RunAfter.IsZero() {
		job.RunAfter = job.CreatedAt
	}
	if job.MaxAttempts == 0 {
		if d, ok := models.DefaultMaxAttempts[job.Type]; ok {
			job.MaxAttempts = d
		} else {
			job.MaxAttempts = 3
		}
	}
	if job.Priority == 0 {
		job.Priority = models.DefaultStagePriority
	}
	job.UpdatedAt = time.Now()

	sql := `UPSERT $rid SET
		job_id = $job_id, type = $type, payload = $payload, priority = $priority,
		attempt = $attempt, max_attempts = $max_attempts, status = $status,
		error = $error, run_after = $run_after, created_at = $created_at,
		updated_at = $updated_at`
	vars := map[string]any{
		"rid":          surrealmodels.NewRecordID(jobTable, job.ID),
		"job_id":       job.ID,
		"type":         job.Type,
		"payload":      job.Payload,
		"priority":     job.Priority,
		"attempt":      job.Attempt,
		"max_attempts": job.MaxAttempts,
		"status":       job.Status,
		"error":        job.Error,
		"run_after":    job.RunAfter,
		"created_at":   job.CreatedAt,
		"updated_at":   job.UpdatedAt,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue is a two-step SELECT-then-conditional-UPDATE atomic claim: find
// the best candidate, then update it only if it is still waiting, which
// prevents two workers from double-claiming it.
func (s *JobQueueStore) Dequeue(ctx context.Context, consumerID string) (*models.Job, error) {
	now := time.Now()
	selectSQL := "SELECT " + jobSelectFields + " FROM " + jobTable +
		" WHERE status = $waiting AND run_after <= $now ORDER BY priority DESC, created_at ASC LIMIT 1"
	vars := map[string]any{
		"waiting": models.JobStatusWaiting,
		"now":     now,
	}

	candidates, err := surrealdb.Query[[]models.Job](ctx, s.db, selectSQL, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to select candidate job: %w", err)
	}
	if candidates == nil || len(*candidates) == 0 || len((*candidates)[0].Result) == 0 {
		return nil, nil
	}

	candidate := (*candidates)[0].Result[0]

	updateSQL := `UPDATE $rid SET status = $active, attempt = attempt + 1,
		lease_owner = $owner, updated_at = $now WHERE status = $waiting`
	updateVars := map[string]any{
		"rid":     surrealmodels.NewRecordID(jobTable, candidate.ID),
		"active":  models.JobStatusActive,
		"owner":   consumerID,
		"now":     now,
		"waiting": models.JobStatusWaiting,
	}

	claimed, err := surrealdb.Query[[]map[string]any](ctx, s.db, updateSQL, updateVars)
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	if claimed == nil || len(*claimed) == 0 || len((*claimed)[0].Result) == 0 {
		// Another worker claimed the candidate between the SELECT and UPDATE.
		return nil, nil
	}

	candidate.Status = models.JobStatusActive
	candidate.Attempt++
	candidate.LeaseOwner = consumerID
	return &candidate, nil
}

func (s *JobQueueStore) Complete(ctx context.Context, id string) error {
	now := time.Now()
	sql := "UPDATE $rid SET status = $status, completed_at = $now, updated_at = $now"
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID(jobTable, id),
		"status": models.JobStatusCompleted,
		"now":    now,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Fail applies the -or-dead-letter policy: delay =
// base·2^(attempt-1) capped at maxDelay, up to maxAttempts; beyond that the
// job moves to the dead-letter partition.
func (s *JobQueueStore) Fail(ctx context.Context, id string, reason error) error {
	getSQL := "SELECT " + jobSelectFields + " FROM " + jobTable + " WHERE job_id = $id"
	results, err := surrealdb.Query[[]models.Job](ctx, s.db, getSQL, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("failed to load job for fail: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	job := (*results)[0].Result[0]

	errMsg := ""
	if reason != nil {
		errMsg = reason.Error()
	}

	if job.Attempt >= job.MaxAttempts {
		return s.moveToDeadLetter(ctx, job, errMsg)
	}

	delay := backoffDelay(job.Attempt, 1*time.Second, 60*time.Second)
	now := time.Now()
	sql := `UPDATE $rid SET status = $status, error = $error, run_after = $run_after, updated_at = $now`
	vars := map[string]any{
		"rid":       surrealmodels.NewRecordID(jobTable, id),
		"status":    models.JobStatusWaiting,
		"error":     errMsg,
		"run_after": now.Add(delay),
		"now":       now,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	return nil
}

// backoffDelay implements base·2^(attempt-1) capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}

func (s *JobQueueStore) moveToDeadLetter(ctx context.Context, job models.Job, errMsg string) error {
	job.Status = models.JobStatusFailed
	job.Error = errMsg
	sql := `UPSERT $rid SET job_id = $job_id, type = $type, payload = $payload,
		priority = $priority, attempt = $attempt, max_attempts = $max_attempts,
		status = $status, error = $error, created_at = $created_at, updated_at = $now`
	vars := map[string]any{
		"rid":          surrealmodels.NewRecordID(deadLetterTable, job.ID),
		"job_id":       job.ID,
		"type":         job.Type,
		"payload":      job.Payload,
		"priority":     job.Priority,
		"attempt":      job.Attempt,
		"max_attempts": job.MaxAttempts,
		"status":       job.Status,
		"error":        job.Error,
		"created_at":   job.CreatedAt,
		"now":          time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to move job to dead letter: %w", err)
	}

	delSQL := "DELETE $rid"
	if _, err := surrealdb.Query[any](ctx, s.db, delSQL, map[string]any{
		"rid": surrealmodels.NewRecordID(jobTable, job.ID),
	}); err != nil {
		return fmt.Errorf("failed to remove job from active queue: %w", err)
	}
	return nil
}

func (s *JobQueueStore) Cancel(ctx context.Context, id string) error {
	sql := "UPDATE $rid SET status = $status WHERE status = $waiting"
	vars := map[string]any{
		"rid":     surrealmodels.NewRecordID(jobTable, id),
		"status":  models.JobStatusFailed,
		"waiting": models.JobStatusWaiting,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	return nil
}

// CancelByCourse discards pending jobs for a cancelled course (:
// "signals the queue to discard pending jobs for that course").
func (s *JobQueueStore) CancelByCourse(ctx context.Context, courseID string) (int, error) {
	sql := "UPDATE " + jobTable + " SET status = $status WHERE payload.courseId = $course AND status = $waiting"
	vars := map[string]any{
		"status":  models.JobStatusFailed,
		"course":  courseID,
		"waiting": models.JobStatusWaiting,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, fmt.Errorf("failed to cancel jobs by course: %w", err)
	}
	return 0, nil
}

func (s *JobQueueStore) GetMaxPriority(ctx context.Context) (int, error) {
	sql := "SELECT math::max(priority) AS max_priority FROM " + jobTable + " WHERE status = $waiting GROUP ALL"
	vars := map[string]any{"waiting": models.JobStatusWaiting}

	type maxResult struct {
		MaxPriority int `json:"max_priority"`
	}
	results, err := surrealdb.Query[[]maxResult](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to get max priority: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].MaxPriority, nil
	}
	return 0, nil
}

func (s *JobQueueStore) ListPending(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := "SELECT " + jobSelectFields + " FROM " + jobTable + " WHERE status = $waiting ORDER BY priority DESC, created_at ASC LIMIT $limit"
	vars := map[string]any{"waiting": models.JobStatusWaiting, "limit": limit}
	return s.queryJobs(ctx, sql, vars)
}

func (s *JobQueueStore) ListDeadLetter(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := "SELECT " + jobSelectFields + " FROM " + deadLetterTable + " ORDER BY updated_at DESC LIMIT $limit"
	return s.queryJobs(ctx, sql, map[string]any{"limit": limit})
}

func (s *JobQueueStore) CountPending(ctx context.Context) (int, error) {
	sql := "SELECT count() AS cnt FROM " + jobTable + " WHERE status = $waiting GROUP ALL"
	vars := map[string]any{"waiting": models.JobStatusWaiting}

	type countResult struct {
		Cnt int `json:"cnt"`
	}
	results, err := surrealdb.Query[[]countResult](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Cnt, nil
	}
	return 0, nil
}

func (s *JobQueueStore) HasPendingJob(ctx context.Context, jobType models.JobType, courseID string) (bool, error) {
	sql := "SELECT count() AS cnt FROM " + jobTable + " WHERE type = $type AND payload.courseId = $course AND status = $waiting GROUP ALL"
	vars := map[string]any{
		"type":    jobType,
		"course":  courseID,
		"waiting": models.JobStatusWaiting,
	}

	type countResult struct {
		Cnt int `json:"cnt"`
	}
	results, err := surrealdb.Query[[]countResult](ctx, s.db, sql, vars)
	if err != nil {
		return false, fmt.Errorf("failed to check pending job: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Cnt > 0, nil
	}
	return false, nil
}

func (s *JobQueueStore) PurgeCompleted(ctx context.Context, olderThan time.Time) (int, error) {
	sql := "DELETE FROM " + jobTable + " WHERE status = $completed AND completed_at < $cutoff"
	vars := map[string]any{
		"completed": models.JobStatusCompleted,
		"cutoff":    olderThan,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, fmt.Errorf("failed to purge completed jobs: %w", err)
	}
	return 0, nil
}

func (s *JobQueueStore) queryJobs(ctx context.Context, sql string, vars map[string]any) ([]*models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	var jobs []*models.Job
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			jobs = append(jobs, &(*results)[0].Result[i])
		}
	}
	return jobs, nil
}

// ResetRunningJobs returns orphaned active jobs to waiting on startup,
// leaving attempt counts unchanged.
func (s *JobQueueStore) ResetRunningJobs(ctx context.Context) (int, error) {
	sql := `UPDATE ` + jobTable + ` SET status = $waiting, lease_owner = NONE WHERE status = $active`
	_, err := surrealdb.Query[any](ctx, s.db, sql, map[string]any{
		"waiting": models.JobStatusWaiting,
		"active":  models.JobStatusActive,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset running jobs: %w", err)
	}
	return 0, nil
}

var _ interfaces.JobQueueStore = (*JobQueueStore)(nil)
