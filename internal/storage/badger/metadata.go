// Package badger provides a BadgerHold-based C9 backend for local/dev and
// test use.
package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
	"github.com/timshannon/badgerhold/v4"
)

// courseStorage implements interfaces.CourseStore.
type courseStorage struct {
	store  *Store
	logger *common.Logger
}

func NewCourseStorage(store *Store, logger *common.Logger) *courseStorage {
	return &courseStorage{store: store, logger: logger}
}

func (s *courseStorage) Get(_ context.Context, id string) (*models.Course, error) {
	var c models.Course
	if err := s.store.db.Get(id, &c); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, pipeerr.New(pipeerr.ValidationError, "course not found", errors.New(id))
		}
		return nil, fmt.Errorf("failed to get course %s: %w", id, err)
	}
	return &c, nil
}

func (s *courseStorage) UpdateStatus(_ context.Context, id string, expected, next models.GenerationStatus, progress int, errMsg string) error {
	var c models.Course
	if err := s.store.db.Get(id, &c); err != nil {
		if err == badgerhold.ErrNotFound {
			return pipeerr.New(pipeerr.ValidationError, "course not found", errors.New(id))
		}
		return fmt.Errorf("failed to load course %s: %w", id, err)
	}
	if c.GenerationStatus != expected {
		return pipeerr.NewStateConflict(fmt.Sprintf("course %s not in expected state %s (actual %s)", id, expected, c.GenerationStatus))
	}
	c.GenerationStatus = next
	c.GenerationProgress = progress
	c.ErrorMessage = errMsg
	if err := s.store.db.Update(id, &c); err != nil {
		return fmt.Errorf("failed to update course %s: %w", id, err)
	}
	return nil
}

func (s *courseStorage) SaveAnalysisResult(_ context.Context, id string, result *models.AnalysisResult) error {
	var c models.Course
	if err := s.store.db.Get(id, &c); err != nil {
		return fmt.Errorf("failed to load course %s: %w", id, err)
	}
	c.AnalysisResult = result
	return s.store.db.Update(id, &c)
}

func (s *courseStorage) SaveCourseStructure(_ context.Context, id string, structure *models.CourseStructure) error {
	var c models.Course
	if err := s.store.db.Get(id, &c); err != nil {
		return fmt.Errorf("failed to load course %s: %w", id, err)
	}
	c.CourseStructure = structure
	return s.store.db.Update(id, &c)
}

// UpsertCourse is used by test fixtures to seed a course (courses are
// otherwise created externally, per ).
func (s *courseStorage) UpsertCourse(_ context.Context, c *models.Course) error {
	return s.store.db.Upsert(c.ID, c)
}

// fileStorage implements interfaces.FileCatalogStore.
type fileStorage struct {
	store  *Store
	logger *common.Logger
}

func NewFileStorage(store *Store, logger *common.Logger) *fileStorage {
	return &fileStorage{store: store, logger: logger}
}

func (s *fileStorage) Get(_ context.Context, id string) (*models.File, error) {
	var f models.File
	if err := s.store.db.Get(id, &f); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, pipeerr.New(pipeerr.ValidationError, "file not found", errors.New(id))
		}
		return nil, fmt.Errorf("failed to get file %s: %w", id, err)
	}
	return &f, nil
}

func (s *fileStorage) ListByCourse(_ context.Context, courseID string) ([]*models.File, error) {
	var files []models.File
	if err := s.store.db.Find(&files, badgerhold.Where("CourseID").Eq(courseID)); err != nil {
		return nil, fmt.Errorf("failed to list files for course %s: %w", courseID, err)
	}
	out := make([]*models.File, len(files))
	for i := range files {
		out[i] = &files[i]
	}
	return out, nil
}

func (s *fileStorage) Upsert(_ context.Context, file *models.File) error {
	return s.store.db.Upsert(file.ID, file)
}

// sectionStorage implements interfaces.SectionStore.
type sectionStorage struct {
	store  *Store
	logger *common.Logger
}

func NewSectionStorage(store *Store, logger *common.Logger) *sectionStorage {
	return &sectionStorage{store: store, logger: logger}
}

func (s *sectionStorage) Get(_ context.Context, id string) (*models.Section, error) {
	var sec models.Section
	if err := s.store.db.Get(id, &sec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, pipeerr.New(pipeerr.ValidationError, "section not found", errors.New(id))
		}
		return nil, fmt.Errorf("failed to get section %s: %w", id, err)
	}
	return &sec, nil
}

func (s *sectionStorage) ListByCourse(_ context.Context, courseID string) ([]*models.Section, error) {
	var sections []models.Section
	if err := s.store.db.Find(&sections, badgerhold.Where("CourseID").Eq(courseID).SortBy("OrderIndex")); err != nil {
		return nil, fmt.Errorf("failed to list sections for course %s: %w", courseID, err)
	}
	out := make([]*models.Section, len(sections))
	for i := range sections {
		out[i] = &sections[i]
	}
	return out, nil
}

func (s *sectionStorage) Upsert(_ context.Context, section *models.Section) error {
	if section.OrderIndex <= 0 {
		return pipeerr.NewValidationError("section order_index must be positive")
	}
	return s.store.db.Upsert(section.ID, section)
}

// lessonStorage implements interfaces.LessonStore.
type lessonStorage struct {
	store  *Store
	logger *common.Logger
}

func NewLessonStorage(store *Store, logger *common.Logger) *lessonStorage {
	return &lessonStorage{store: store, logger: logger}
}

func (s *lessonStorage) Get(_ context.Context, id string) (*models.Lesson, error) {
	var l models.Lesson
	if err := s.store.db.Get(id, &l); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, pipeerr.New(pipeerr.ValidationError, "lesson not found", errors.New(id))
		}
		return nil, fmt.Errorf("failed to get lesson %s: %w", id, err)
	}
	return &l, nil
}

func (s *lessonStorage) ListBySection(_ context.Context, sectionID string) ([]*models.Lesson, error) {
	var lessons []models.Lesson
	if err := s.store.db.Find(&lessons, badgerhold.Where("SectionID").Eq(sectionID).SortBy("OrderIndex")); err != nil {
		return nil, fmt.Errorf("failed to list lessons for section %s: %w", sectionID, err)
	}
	out := make([]*models.Lesson, len(lessons))
	for i := range lessons {
		out[i] = &lessons[i]
	}
	return out, nil
}

func (s *lessonStorage) ListByCourse(ctx context.Context, courseID string) ([]*models.Lesson, error) {
	sections, err := NewSectionStorage(s.store, s.logger).ListByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	var all []*models.Lesson
	for _, sec := range sections {
		lessons, err := s.ListBySection(ctx, sec.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, lessons...)
	}
	return all, nil
}

func (s *lessonStorage) Upsert(_ context.Context, lesson *models.Lesson) error {
	if err := lesson.Validate(); err != nil {
		return err
	}
	return s.store.db.Upsert(lesson.ID, lesson)
}

// lessonContentStorage implements interfaces.LessonContentStore, keyed by
// lesson_id (one-to-one).
type lessonContentStorage struct {
	store  *Store
	logger *common.Logger
}

func NewLessonContentStorage(store *Store, logger *common.Logger) *lessonContentStorage {
	return &lessonContentStorage{store: store, logger: logger}
}

func (s *lessonContentStorage) Get(_ context.Context, lessonID string) (*models.LessonContent, error) {
	var c models.LessonContent
	if err := s.store.db.Get(lessonID, &c); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, pipeerr.New(pipeerr.ValidationError, "lesson content not found", errors.New(lessonID))
		}
		return nil, fmt.Errorf("failed to get lesson content %s: %w", lessonID, err)
	}
	return &c, nil
}

func (s *lessonContentStorage) Upsert(_ context.Context, content *models.LessonContent) error {
	return s.store.db.Upsert(content.LessonID, content)
}

// jobStatusStorage implements interfaces.JobStatusStore.
type jobStatusStorage struct {
	store  *Store
	logger *common.Logger
}

func NewJobStatusStorage(store *Store, logger *common.Logger) *jobStatusStorage {
	return &jobStatusStorage{store: store, logger: logger}
}

func (s *jobStatusStorage) Upsert(_ context.Context, row *models.JobStatusRow) error {
	return s.store.db.Upsert(row.ID, row)
}

func (s *jobStatusStorage) Get(_ context.Context, id string) (*models.JobStatusRow, error) {
	var row models.JobStatusRow
	if err := s.store.db.Get(id, &row); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, pipeerr.New(pipeerr.ValidationError, "job status not found", errors.New(id))
		}
		return nil, fmt.Errorf("failed to get job status %s: %w", id, err)
	}
	return &row, nil
}

func (s *jobStatusStorage) ListByCourse(_ context.Context, courseID string) ([]*models.JobStatusRow, error) {
	var rows []models.JobStatusRow
	if err := s.store.db.Find(&rows, badgerhold.Where("CourseID").Eq(courseID)); err != nil {
		return nil, fmt.Errorf("failed to list job status for course %s: %w", courseID, err)
	}
	out := make([]*models.JobStatusRow, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

var (
	_ interfaces.CourseStore        = (*courseStorage)(nil)
	_ interfaces.FileCatalogStore   = (*fileStorage)(nil)
	_ interfaces.SectionStore       = (*sectionStorage)(nil)
	_ interfaces.LessonStore        = (*lessonStorage)(nil)
	_ interfaces.LessonContentStore = (*lessonContentStorage)(nil)
	_ interfaces.JobStatusStore     = (*jobStatusStorage)(nil)
)
