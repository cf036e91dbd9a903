package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"
)

// jobQueueStorage implements interfaces.JobQueueStore over BadgerHold for
// local/dev and test use. BadgerHold has no conditional UPDATE, so Dequeue's
// atomic claim (preventing two workers from double-claiming the same job)
// is done under a process-local mutex instead of the surrealdb backend's
// SELECT-then-conditional-UPDATE pattern.
type jobQueueStorage struct {
	store  *Store
	logger *common.Logger
	mu     sync.Mutex
}

func NewJobQueueStorage(store *Store, logger *common.Logger) *jobQueueStorage {
	return &jobQueueStorage{store: store, logger: logger}
}

func (s *jobQueueStorage) Enqueue(_ context.Context, job *models.Job) error {
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

	if err := s.store.db.Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

func (s *jobQueueStorage) Dequeue(ctx context.Context, consumerID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []models.Job
	now := time.Now()
	if err := s.store.db.Find(&candidates, badgerhold.Where("Status").Eq(models.JobStatusWaiting).
		And("RunAfter").Le(now).
		SortBy("Priority").Reverse()); err != nil {
		return nil, fmt.Errorf("failed to select candidate job: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// SortBy only orders by one field; break priority ties by created_at FIFO.
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Priority > best.Priority || (c.Priority == best.Priority && c.CreatedAt.Before(best.CreatedAt)) {
			best = c
		}
	}

	best.Status = models.JobStatusActive
	best.Attempt++
	best.LeaseOwner = consumerID
	best.UpdatedAt = now
	if err := s.store.db.Update(best.ID, &best); err != nil {
		return nil, fmt.Errorf("failed to dequeue job %s: %w", best.ID, err)
	}
	return &best, nil
}

func (s *jobQueueStorage) Complete(_ context.Context, id string) error {
	var job models.Job
	if err := s.store.db.Get(id, &job); err != nil {
		return fmt.Errorf("failed to load job %s: %w", id, err)
	}
	job.Status = models.JobStatusCompleted
	job.CompletedAt = time.Now()
	job.UpdatedAt = job.CompletedAt
	return s.store.db.Update(id, &job)
}

func (s *jobQueueStorage) Fail(_ context.Context, id string, reason error) error {
	var job models.Job
	if err := s.store.db.Get(id, &job); err != nil {
		return fmt.Errorf("failed to load job %s: %w", id, err)
	}

	errMsg := ""
	if reason != nil {
		errMsg = reason.Error()
	}

	if job.Attempt >= job.MaxAttempts {
		job.Status = models.JobStatusFailed
		job.Error = errMsg
		job.UpdatedAt = time.Now()
		return s.store.db.Update(id, &job)
	}

	delay := backoffDelay(job.Attempt, 1*time.Second, 60*time.Second)
	job.Status = models.JobStatusWaiting
	job.Error = errMsg
	job.RunAfter = time.Now().Add(delay)
	job.UpdatedAt = time.Now()
	return s.store.db.Update(id, &job)
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

func (s *jobQueueStorage) Cancel(_ context.Context, id string) error {
	var job models.Job
	if err := s.store.db.Get(id, &job); err != nil {
		return fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if job.Status != models.JobStatusWaiting {
		return nil
	}
	job.Status = models.JobStatusFailed
	job.UpdatedAt = time.Now()
	return s.store.db.Update(id, &job)
}

func (s *jobQueueStorage) CancelByCourse(_ context.Context, courseID string) (int, error) {
	var jobs []models.Job
	if err := s.store.db.Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusWaiting)); err != nil {
		return 0, fmt.Errorf("failed to find jobs to cancel: %w", err)
	}
	count := 0
	for _, j := range jobs {
		if j.Payload.CourseID != courseID {
			continue
		}
		j.Status = models.JobStatusFailed
		j.UpdatedAt = time.Now()
		if err := s.store.db.Update(j.ID, &j); err != nil {
			return count, fmt.Errorf("failed to cancel job %s: %w", j.ID, err)
		}
		count++
	}
	return count, nil
}

func (s *jobQueueStorage) GetMaxPriority(_ context.Context) (int, error) {
	var jobs []models.Job
	if err := s.store.db.Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusWaiting)); err != nil {
		return 0, fmt.Errorf("failed to find jobs: %w", err)
	}
	max := 0
	for _, j := range jobs {
		if j.Priority > max {
			max = j.Priority
		}
	}
	return max, nil
}

func (s *jobQueueStorage) ListPending(_ context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	var jobs []models.Job
	if err := s.store.db.Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusWaiting).
		SortBy("Priority").Reverse().Limit(limit)); err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	out := make([]*models.Job, len(jobs))
	for i := range jobs {
		out[i] = &jobs[i]
	}
	return out, nil
}

func (s *jobQueueStorage) ListDeadLetter(_ context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	var jobs []models.Job
	if err := s.store.db.Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusFailed).Limit(limit)); err != nil {
		return nil, fmt.Errorf("failed to list dead-letter jobs: %w", err)
	}
	out := make([]*models.Job, len(jobs))
	for i := range jobs {
		out[i] = &jobs[i]
	}
	return out, nil
}

func (s *jobQueueStorage) CountPending(_ context.Context) (int, error) {
	n, err := s.store.db.Count(&models.Job{}, badgerhold.Where("Status").Eq(models.JobStatusWaiting))
	if err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return n, nil
}

func (s *jobQueueStorage) HasPendingJob(_ context.Context, jobType models.JobType, courseID string) (bool, error) {
	var jobs []models.Job
	if err := s.store.db.Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusWaiting).
		And("Type").Eq(jobType)); err != nil {
		return false, fmt.Errorf("failed to check pending job: %w", err)
	}
	for _, j := range jobs {
		if j.Payload.CourseID == courseID {
			return true, nil
		}
	}
	return false, nil
}

func (s *jobQueueStorage) PurgeCompleted(_ context.Context, olderThan time.Time) (int, error) {
	var jobs []models.Job
	if err := s.store.db.Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusCompleted).
		And("CompletedAt").Lt(olderThan)); err != nil {
		return 0, fmt.Errorf("failed to find completed jobs: %w", err)
	}
	for _, j := range jobs {
		if err := s.store.db.Delete(j.ID, &models.Job{}); err != nil {
			return 0, fmt.Errorf("failed to purge job %s: %w", j.ID, err)
		}
	}
	return len(jobs), nil
}

// ResetRunningJobs returns orphaned active jobs to waiting on startup,
// leaving attempt counts unchanged.
func (s *jobQueueStorage) ResetRunningJobs(_ context.Context) (int, error) {
	var jobs []models.Job
	if err := s.store.db.Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusActive)); err != nil {
		return 0, fmt.Errorf("failed to find running jobs: %w", err)
	}
	for _, j := range jobs {
		j.Status = models.JobStatusWaiting
		j.LeaseOwner = ""
		if err := s.store.db.Update(j.ID, &j); err != nil {
			return 0, fmt.Errorf("failed to reset job %s: %w", j.ID, err)
		}
	}
	return len(jobs), nil
}

var _ interfaces.JobQueueStore = (*jobQueueStorage)(nil)
