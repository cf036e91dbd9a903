package badger

import (
	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
)

// Manager implements interfaces.StorageManager using BadgerHold: the
// embedded dev/test C9 backend.
type Manager struct {
	store  *Store
	path   string
	logger *common.Logger

	courseStore        *courseStorage
	fileCatalogStore   *fileStorage
	sectionStore       *sectionStorage
	lessonStore        *lessonStorage
	lessonContentStore *lessonContentStorage
	jobQueueStore      *jobQueueStorage
	jobStatusStore     *jobStatusStorage
	kvStore            *kvStorage
}

// NewManager opens a BadgerHold store at config.Storage.Badger.Path and
// wires up all the metadata store sub-types.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	path := config.Storage.Badger.Path
	store, err := NewStore(logger, path)
	if err != nil {
		return nil, err
	}

	m := &Manager{store: store, path: path, logger: logger}
	m.courseStore = NewCourseStorage(store, logger)
	m.fileCatalogStore = NewFileStorage(store, logger)
	m.sectionStore = NewSectionStorage(store, logger)
	m.lessonStore = NewLessonStorage(store, logger)
	m.lessonContentStore = NewLessonContentStorage(store, logger)
	m.jobQueueStore = NewJobQueueStorage(store, logger)
	m.jobStatusStore = NewJobStatusStorage(store, logger)
	m.kvStore = NewKVStorage(store, logger)

	logger.Info().Str("path", path).Msg("BadgerHold storage manager initialized")

	return m, nil
}

func (m *Manager) CourseStore() interfaces.CourseStore               { return m.courseStore }
func (m *Manager) FileCatalogStore() interfaces.FileCatalogStore     { return m.fileCatalogStore }
func (m *Manager) SectionStore() interfaces.SectionStore             { return m.sectionStore }
func (m *Manager) LessonStore() interfaces.LessonStore               { return m.lessonStore }
func (m *Manager) LessonContentStore() interfaces.LessonContentStore { return m.lessonContentStore }
func (m *Manager) JobQueueStore() interfaces.JobQueueStore           { return m.jobQueueStore }
func (m *Manager) JobStatusStore() interfaces.JobStatusStore         { return m.jobStatusStore }
func (m *Manager) InternalKVStore() interfaces.InternalKVStore       { return m.kvStore }

func (m *Manager) DataPath() string { return m.path }

func (m *Manager) Close() error { return m.store.Close() }

var _ interfaces.StorageManager = (*Manager)(nil)
