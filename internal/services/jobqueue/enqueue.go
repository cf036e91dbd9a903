package jobqueue

import (
	"context"
	"time"

	"github.com/bobmcallan/coursegen/internal/models"
)

// Enqueue adds a job to the persistent queue, filling in sensible defaults.
func (m *Manager) Enqueue(ctx context.Context, job *models.Job) error {
	return m.storage.JobQueueStore().Enqueue(ctx, job)
}

// EnqueueIfNeeded enqueues a job only if no waiting job of the same type
// already exists for the course, preventing duplicate dispatch when a
// caller races with a job still in flight ( via
// job-level idempotency).
func (m *Manager) EnqueueIfNeeded(ctx context.Context, jobType models.JobType, courseID string, payload models.JobPayload, priority int) error {
	exists, err := m.storage.JobQueueStore().HasPendingJob(ctx, jobType, courseID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	maxAttempts := m.config.MaxAttemptsFor(string(jobType), models.DefaultMaxAttempts[jobType])
	job := &models.Job{
		Type:        jobType,
		Payload:     payload,
		Priority:    priority,
		Status:      models.JobStatusWaiting,
		CreatedAt:   time.Now(),
		RunAfter:    time.Now(),
		MaxAttempts: maxAttempts,
	}
	return m.Enqueue(ctx, job)
}

// CancelCourse cancels every waiting job belonging to a course, used when a
// course's generation is aborted.
func (m *Manager) CancelCourse(ctx context.Context, courseID string) (int, error) {
	return m.storage.JobQueueStore().CancelByCourse(ctx, courseID)
}
