// Package jobqueue implements C1's dispatch layer: a worker pool that
// dequeues jobs and routes each to the StageHandler registered for its
// JobType.
package jobqueue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
	"github.com/google/uuid"
)

// heavyJobTypes are rate-limited by a separate semaphore to bound memory use
// from concurrent document parsing / long LLM generations.
var heavyJobTypes = map[models.JobType]bool{
	models.JobTypeDocumentProcessing: true,
	models.JobTypeLessonContent:      true,
}

// Manager runs the worker pool that drains the persistent job queue.
type Manager struct {
	storage  interfaces.StorageManager
	handlers map[models.JobType]interfaces.StageHandler
	fsm      interfaces.CourseFSM
	logger   *common.Logger
	config   common.QueueConfig

	consumerID string
	heavySem   chan struct{}
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewManager wires a handler per JobType. Unregistered job types fail fast
// with DEPENDENCY_MISSING when dequeued. fsm may be nil in tests that never
// exercise the dead-letter path; production callers always supply one so a
// job that exhausts its retries also drives its owning course to failed.
func NewManager(storage interfaces.StorageManager, handlers []interfaces.StageHandler, config common.QueueConfig, fsm interfaces.CourseFSM, logger *common.Logger) *Manager {
	byType := make(map[models.JobType]interfaces.StageHandler, len(handlers))
	for _, h := range handlers {
		byType[h.JobType()] = h
	}

	heavyLimit := config.HeavyJobConcurrency
	if heavyLimit <= 0 {
		heavyLimit = 2
	}

	return &Manager{
		storage:    storage,
		handlers:   byType,
		fsm:        fsm,
		logger:     logger,
		config:     config,
		consumerID: uuid.New().String(),
		heavySem:   make(chan struct{}, heavyLimit),
	}
}

// RegisterHandlers adds or replaces the handler for each given StageHandler's
// JobType. Stage handlers need a *Manager reference to enqueue their
// successor job, so construction is two-phase: build the Manager first (with
// an empty or partial handler set), then build the stage handlers against
// it, then call RegisterHandlers before Start.
func (m *Manager) RegisterHandlers(handlers ...interfaces.StageHandler) {
	for _, h := range handlers {
		m.handlers[h.JobType()] = h
	}
}

// safeGo launches a goroutine with panic recovery so a worker's panic
// never takes down the whole process.
func (m *Manager) safeGo(name string, fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic in job queue worker")
			}
		}()
		fn()
	}()
}

// Start launches the worker pool. Safe to call multiple times — stops any
// existing pool first.
func (m *Manager) Start() {
	if m.cancel != nil {
		m.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	if count, err := m.storage.JobQueueStore().ResetRunningJobs(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("failed to reset orphaned running jobs")
	} else if count > 0 {
		m.logger.Info().Int("count", count).Msg("reset orphaned running jobs to waiting")
	}

	poolSize := m.config.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 5
	}
	for i := 0; i < poolSize; i++ {
		name := fmt.Sprintf("worker-%d", i)
		m.safeGo(name, func() { m.processLoop(ctx) })
	}

	m.logger.Info().Int("pool_size", poolSize).Msg("job queue worker pool started")
}

// Stop cancels all worker loops and waits for in-flight jobs to finish.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.wg.Wait()
	m.logger.Info().Msg("job queue worker pool stopped")
}

func (m *Manager) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.storage.JobQueueStore().Dequeue(ctx, m.consumerID)
		if err != nil {
			m.logger.Warn().Err(err).Msg("dequeue error")
			if !sleepOrDone(ctx, 1*time.Second) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepOrDone(ctx, 1*time.Second) {
				return
			}
			continue
		}

		m.runJob(ctx, job)
	}
}

func (m *Manager) runJob(ctx context.Context, job *models.Job) {
	heavy := heavyJobTypes[job.Type]
	if heavy {
		select {
		case m.heavySem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-m.heavySem }()
	}

	start := time.Now()
	execErr := m.executeJob(ctx, job)
	duration := time.Since(start)

	if execErr != nil {
		m.logger.Warn().
			Str("job_id", job.ID).
			Str("job_type", string(job.Type)).
			Dur("duration", duration).
			Err(execErr).
			Msg("job failed")
		if err := m.storage.JobQueueStore().Fail(ctx, job.ID, execErr); err != nil {
			m.logger.Error().Str("job_id", job.ID).Err(err).Msg("failed to record job failure")
		}
		if job.Attempt >= job.MaxAttempts {
			m.failCourse(ctx, job, execErr)
		}
		return
	}

	m.logger.Debug().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Dur("duration", duration).
		Msg("job completed")
	if err := m.storage.JobQueueStore().Complete(ctx, job.ID); err != nil {
		m.logger.Error().Str("job_id", job.ID).Err(err).Msg("failed to record job completion")
	}
}

// failCourse drives the job's owning course to the terminal failed state
// once the job itself has exhausted maxAttempts and been dead-lettered. A
// course already in a terminal state reports STATE_CONFLICT, which is
// expected when multiple jobs for the same course fail around the same
// time, so it is logged at debug rather than error.
func (m *Manager) failCourse(ctx context.Context, job *models.Job, execErr error) {
	if m.fsm == nil || job.Payload.CourseID == "" {
		return
	}
	if err := m.fsm.Fail(ctx, job.Payload.CourseID, execErr.Error()); err != nil {
		if pipeerr.Is(err, pipeerr.StateConflict) {
			m.logger.Debug().Str("course_id", job.Payload.CourseID).Err(err).Msg("course already terminal, skipping fail transition")
			return
		}
		m.logger.Error().Str("course_id", job.Payload.CourseID).Err(err).Msg("failed to transition course to failed")
	}
}

func (m *Manager) executeJob(ctx context.Context, job *models.Job) error {
	handler, ok := m.handlers[job.Type]
	if !ok {
		return pipeerr.New(pipeerr.DependencyMissing, fmt.Sprintf("no handler registered for job type %s", job.Type), nil)
	}
	return handler.Handle(ctx, job)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
