// Package interfaces defines service contracts for coursegen: storage,
// external clients, and pipeline services are all interfaces with
// production and test/fake implementations kept separate, rather than
// letting test-only fakes leak into production code paths.
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/coursegen/internal/models"
)

// StorageManager coordinates the metadata store backend (C9) selected by
// configuration (badger for dev/test, surrealdb for production).
type StorageManager interface {
	CourseStore() CourseStore
	FileCatalogStore() FileCatalogStore
	SectionStore() SectionStore
	LessonStore() LessonStore
	LessonContentStore() LessonContentStore
	JobQueueStore() JobQueueStore
	JobStatusStore() JobStatusStore
	InternalKVStore() InternalKVStore

	// DataPath returns the base data directory for the badger backend, or
	// empty string when running against surrealdb.
	DataPath() string

	Close() error
}

// InternalKVStore is the system-level key/value surface used for secret
// resolution (common.ResolveAPIKey) and other process-wide runtime settings.
type InternalKVStore interface {
	GetSystemKV(ctx context.Context, key string) (string, error)
	SetSystemKV(ctx context.Context, key, value string) error
}

// CourseStore presents the transactional surface over courses.
// Courses are created externally; the pipeline only transitions
// generation_status/progress and fills the two result blobs.
type CourseStore interface {
	Get(ctx context.Context, id string) (*models.Course, error)
	// UpdateStatus transitions the course's FSM fields inside a single
	// transaction, guarded by the caller-supplied expected current status.
	UpdateStatus(ctx context.Context, id string, expected, next models.GenerationStatus, progress int, errMsg string) error
	SaveAnalysisResult(ctx context.Context, id string, result *models.AnalysisResult) error
	SaveCourseStructure(ctx context.Context, id string, structure *models.CourseStructure) error
}

// FileCatalogStore is C9's surface over file_catalog rows.
// Idempotency key: files.id.
type FileCatalogStore interface {
	Get(ctx context.Context, id string) (*models.File, error)
	ListByCourse(ctx context.Context, courseID string) ([]*models.File, error)
	Upsert(ctx context.Context, file *models.File) error
}

// SectionStore is C9's surface over sections rows. Idempotency key:
// (course_id, order_index) is the natural key established by S5.
type SectionStore interface {
	Get(ctx context.Context, id string) (*models.Section, error)
	ListByCourse(ctx context.Context, courseID string) ([]*models.Section, error)
	Upsert(ctx context.Context, section *models.Section) error
}

// LessonStore is C9's surface over lessons rows. Idempotency key:
// (section_id, order_index).
type LessonStore interface {
	Get(ctx context.Context, id string) (*models.Lesson, error)
	ListBySection(ctx context.Context, sectionID string) ([]*models.Lesson, error)
	ListByCourse(ctx context.Context, courseID string) ([]*models.Lesson, error)
	Upsert(ctx context.Context, lesson *models.Lesson) error
}

// LessonContentStore is C9's surface over lesson_contents (one-to-one with
// Lesson, idempotency key lesson_contents.lesson_id).
type LessonContentStore interface {
	Get(ctx context.Context, lessonID string) (*models.LessonContent, error)
	Upsert(ctx context.Context, content *models.LessonContent) error
}

// JobQueueStore manages the persistent job queue (C1).
type JobQueueStore interface {
	Enqueue(ctx context.Context, job *models.Job) error
	// Dequeue atomically reserves the highest-priority waiting job whose
	// RunAfter has elapsed, using a SELECT-then-conditional-UPDATE pattern
	// that prevents double-claiming.
	Dequeue(ctx context.Context, consumerID string) (*models.Job, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, reason error) error
	Cancel(ctx context.Context, id string) error
	CancelByCourse(ctx context.Context, courseID string) (int, error)
	GetMaxPriority(ctx context.Context) (int, error)
	ListPending(ctx context.Context, limit int) ([]*models.Job, error)
	ListDeadLetter(ctx context.Context, limit int) ([]*models.Job, error)
	CountPending(ctx context.Context) (int, error)
	HasPendingJob(ctx context.Context, jobType models.JobType, courseID string) (bool, error)
	PurgeCompleted(ctx context.Context, olderThan time.Time) (int, error)
	// ResetRunningJobs returns orphaned active jobs (owner process crashed
	// mid-lease) to waiting, unchanged attempt count, on worker-pool startup.
	ResetRunningJobs(ctx context.Context) (int, error)
}

// JobStatusStore is the auxiliary persistent projection of job status rows
// so callers can observe progress without consulting the queue directly.
type JobStatusStore interface {
	Upsert(ctx context.Context, row *models.JobStatusRow) error
	Get(ctx context.Context, id string) (*models.JobStatusRow, error)
	ListByCourse(ctx context.Context, courseID string) ([]*models.JobStatusRow, error)
}
