package surrealdb

import (
	"context"
	"fmt"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/surrealdb/surrealdb.go"
)

// Manager implements interfaces.StorageManager using SurrealDB: the
// production C9 backend standing in for the relational metadata store
// (Postgres/Supabase), which lives outside this system as an external
// collaborator — only the adapter itself is in scope here.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	courseStore        *CourseStore
	fileCatalogStore   *FileCatalogStore
	sectionStore       *SectionStore
	lessonStore        *LessonStore
	lessonContentStore *LessonContentStore
	jobQueueStore      *JobQueueStore
	jobStatusStore     *JobStatusStore
	internalKV         *InternalKV
}

// NewManager connects to SurrealDB and defines the tables the pipeline owns.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Surreal.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]any{
		"user": config.Storage.Surreal.Username,
		"pass": config.Storage.Surreal.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Surreal.Namespace, config.Storage.Surreal.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	tables := []string{"courses", "file_catalog", "sections", "lessons", "lesson_contents", "job_queue", "job_dead_letter", "job_status", "system_kv"}
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	m := &Manager{db: db, logger: logger}
	m.courseStore = NewCourseStore(db, logger)
	m.fileCatalogStore = NewFileCatalogStore(db, logger)
	m.sectionStore = NewSectionStore(db, logger)
	m.lessonStore = NewLessonStore(db, logger)
	m.lessonContentStore = NewLessonContentStore(db, logger)
	m.jobQueueStore = NewJobQueueStore(db, logger)
	m.jobStatusStore = NewJobStatusStore(db, logger)
	m.internalKV = NewInternalKV(db, logger)

	logger.Info().
		Str("endpoint", config.Storage.Surreal.Endpoint).
		Str("namespace", config.Storage.Surreal.Namespace).
		Str("database", config.Storage.Surreal.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

func (m *Manager) CourseStore() interfaces.CourseStore               { return m.courseStore }
func (m *Manager) FileCatalogStore() interfaces.FileCatalogStore     { return m.fileCatalogStore }
func (m *Manager) SectionStore() interfaces.SectionStore             { return m.sectionStore }
func (m *Manager) LessonStore() interfaces.LessonStore               { return m.lessonStore }
func (m *Manager) LessonContentStore() interfaces.LessonContentStore { return m.lessonContentStore }
func (m *Manager) JobQueueStore() interfaces.JobQueueStore           { return m.jobQueueStore }
func (m *Manager) JobStatusStore() interfaces.JobStatusStore         { return m.jobStatusStore }
func (m *Manager) InternalKVStore() interfaces.InternalKVStore       { return m.internalKV }

// DataPath is empty for the surrealdb backend; it owns no local directory.
func (m *Manager) DataPath() string { return "" }

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

var _ interfaces.StorageManager = (*Manager)(nil)
