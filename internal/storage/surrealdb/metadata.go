package surrealdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// CourseStore implements interfaces.CourseStore over SurrealDB's courses
// table.
type CourseStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewCourseStore(db *surrealdb.DB, logger *common.Logger) *CourseStore {
	return &CourseStore{db: db, logger: logger}
}

func (s *CourseStore) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := surrealdb.Select[models.Course](ctx, s.db, surrealmodels.NewRecordID("courses", id))
	if err != nil {
		return nil, fmt.Errorf("failed to get course %s: %w", id, err)
	}
	if course == nil {
		return nil, pipeerr.New(pipeerr.ValidationError, "course not found", errors.New(id))
	}
	return course, nil
}

// UpdateStatus applies an FSM transition inside a single conditional UPDATE,
// guarded by the expected current status — the FSM itself acts as the lock.
func (s *CourseStore) UpdateStatus(ctx context.Context, id string, expected, next models.GenerationStatus, progress int, errMsg string) error {
	sql := `UPDATE $rid SET generation_status = $next, generation_progress = $progress,
		generation_metadata.error_message = $err, updated_at = $now
		WHERE generation_status = $expected`
	vars := map[string]any{
		"rid":      surrealmodels.NewRecordID("courses", id),
		"next":     next,
		"progress": progress,
		"err":      errMsg,
		"now":      time.Now(),
		"expected": expected,
	}
	res, err := surrealdb.Query[[]models.Course](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to transition course %s: %w", id, err)
	}
	if res == nil || len(*res) == 0 || len((*res)[0].Result) == 0 {
		// Either already transitioned (idempotent re-run) or a genuine
		// conflict; the caller distinguishes by re-reading current status.
		return pipeerr.NewStateConflict(fmt.Sprintf("course %s not in expected state %s", id, expected))
	}
	return nil
}

func (s *CourseStore) SaveAnalysisResult(ctx context.Context, id string, result *models.AnalysisResult) error {
	sql := "UPDATE $rid SET analysis_result = $result, updated_at = $now"
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("courses", id),
		"result": result,
		"now":    time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save analysis result for course %s: %w", id, err)
	}
	return nil
}

func (s *CourseStore) SaveCourseStructure(ctx context.Context, id string, structure *models.CourseStructure) error {
	sql := "UPDATE $rid SET course_structure = $structure, updated_at = $now"
	vars := map[string]any{
		"rid":       surrealmodels.NewRecordID("courses", id),
		"structure": structure,
		"now":       time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save course structure for course %s: %w", id, err)
	}
	return nil
}

// FileCatalogStore implements interfaces.FileCatalogStore (
// file_catalog table).
type FileCatalogStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewFileCatalogStore(db *surrealdb.DB, logger *common.Logger) *FileCatalogStore {
	return &FileCatalogStore{db: db, logger: logger}
}

func (s *FileCatalogStore) Get(ctx context.Context, id string) (*models.File, error) {
	file, err := surrealdb.Select[models.File](ctx, s.db, surrealmodels.NewRecordID("file_catalog", id))
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", id, err)
	}
	if file == nil {
		return nil, pipeerr.New(pipeerr.ValidationError, "file not found", errors.New(id))
	}
	return file, nil
}

func (s *FileCatalogStore) ListByCourse(ctx context.Context, courseID string) ([]*models.File, error) {
	sql := "SELECT * FROM file_catalog WHERE course_id = $course"
	results, err := surrealdb.Query[[]models.File](ctx, s.db, sql, map[string]any{"course": courseID})
	if err != nil {
		return nil, fmt.Errorf("failed to list files for course %s: %w", courseID, err)
	}
	var files []*models.File
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			files = append(files, &(*results)[0].Result[i])
		}
	}
	return files, nil
}

// Upsert is keyed by files.id.
func (s *FileCatalogStore) Upsert(ctx context.Context, file *models.File) error {
	file.UpdatedAt = time.Now()
	sql := `UPSERT $rid CONTENT $file`
	vars := map[string]any{
		"rid":  surrealmodels.NewRecordID("file_catalog", file.ID),
		"file": file,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert file %s: %w", file.ID, err)
	}
	return nil
}

// SectionStore implements interfaces.SectionStore.
type SectionStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewSectionStore(db *surrealdb.DB, logger *common.Logger) *SectionStore {
	return &SectionStore{db: db, logger: logger}
}

func (s *SectionStore) Get(ctx context.Context, id string) (*models.Section, error) {
	section, err := surrealdb.Select[models.Section](ctx, s.db, surrealmodels.NewRecordID("sections", id))
	if err != nil {
		return nil, fmt.Errorf("failed to get section %s: %w", id, err)
	}
	if section == nil {
		return nil, pipeerr.New(pipeerr.ValidationError, "section not found", errors.New(id))
	}
	return section, nil
}

func (s *SectionStore) ListByCourse(ctx context.Context, courseID string) ([]*models.Section, error) {
	sql := "SELECT * FROM sections WHERE course_id = $course ORDER BY order_index ASC"
	results, err := surrealdb.Query[[]models.Section](ctx, s.db, sql, map[string]any{"course": courseID})
	if err != nil {
		return nil, fmt.Errorf("failed to list sections for course %s: %w", courseID, err)
	}
	var sections []*models.Section
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			sections = append(sections, &(*results)[0].Result[i])
		}
	}
	return sections, nil
}

func (s *SectionStore) Upsert(ctx context.Context, section *models.Section) error {
	if section.OrderIndex <= 0 {
		return pipeerr.NewValidationError("section order_index must be positive")
	}
	sql := `UPSERT $rid CONTENT $section`
	vars := map[string]any{
		"rid":     surrealmodels.NewRecordID("sections", section.ID),
		"section": section,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert section %s: %w", section.ID, err)
	}
	return nil
}

// LessonStore implements interfaces.LessonStore.
type LessonStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewLessonStore(db *surrealdb.DB, logger *common.Logger) *LessonStore {
	return &LessonStore{db: db, logger: logger}
}

func (s *LessonStore) Get(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := surrealdb.Select[models.Lesson](ctx, s.db, surrealmodels.NewRecordID("lessons", id))
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson %s: %w", id, err)
	}
	if lesson == nil {
		return nil, pipeerr.New(pipeerr.ValidationError, "lesson not found", errors.New(id))
	}
	return lesson, nil
}

func (s *LessonStore) ListBySection(ctx context.Context, sectionID string) ([]*models.Lesson, error) {
	sql := "SELECT * FROM lessons WHERE section_id = $section ORDER BY order_index ASC"
	results, err := surrealdb.Query[[]models.Lesson](ctx, s.db, sql, map[string]any{"section": sectionID})
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons for section %s: %w", sectionID, err)
	}
	var lessons []*models.Lesson
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			lessons = append(lessons, &(*results)[0].Result[i])
		}
	}
	return lessons, nil
}

func (s *LessonStore) ListByCourse(ctx context.Context, courseID string) ([]*models.Lesson, error) {
	sql := `SELECT * FROM lessons WHERE section_id IN (SELECT VALUE id FROM sections WHERE course_id = $course) ORDER BY order_index ASC`
	results, err := surrealdb.Query[[]models.Lesson](ctx, s.db, sql, map[string]any{"course": courseID})
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons for course %s: %w", courseID, err)
	}
	var lessons []*models.Lesson
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			lessons = append(lessons, &(*results)[0].Result[i])
		}
	}
	return lessons, nil
}

// Upsert is keyed by the lesson id; uniqueness of (section_id, order_index)
// is not enforced.
func (s *LessonStore) Upsert(ctx context.Context, lesson *models.Lesson) error {
	if err := lesson.Validate(); err != nil {
		return err
	}
	sql := `UPSERT $rid CONTENT $lesson`
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("lessons", lesson.ID),
		"lesson": lesson,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert lesson %s: %w", lesson.ID, err)
	}
	return nil
}

// LessonContentStore implements interfaces.LessonContentStore, one-to-one
// with Lesson, idempotency key lesson_contents.lesson_id.
type LessonContentStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewLessonContentStore(db *surrealdb.DB, logger *common.Logger) *LessonContentStore {
	return &LessonContentStore{db: db, logger: logger}
}

func (s *LessonContentStore) Get(ctx context.Context, lessonID string) (*models.LessonContent, error) {
	content, err := surrealdb.Select[models.LessonContent](ctx, s.db, surrealmodels.NewRecordID("lesson_contents", lessonID))
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson content %s: %w", lessonID, err)
	}
	if content == nil {
		return nil, pipeerr.New(pipeerr.ValidationError, "lesson content not found", errors.New(lessonID))
	}
	return content, nil
}

func (s *LessonContentStore) Upsert(ctx context.Context, content *models.LessonContent) error {
	content.UpdatedAt = time.Now()
	sql := `UPSERT $rid CONTENT $content`
	vars := map[string]any{
		"rid":     surrealmodels.NewRecordID("lesson_contents", content.LessonID),
		"content": content,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert lesson content %s: %w", content.LessonID, err)
	}
	return nil
}

// JobStatusStore implements interfaces.JobStatusStore over the job_status
// projection table.
type JobStatusStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewJobStatusStore(db *surrealdb.DB, logger *common.Logger) *JobStatusStore {
	return &JobStatusStore{db: db, logger: logger}
}

func (s *JobStatusStore) Upsert(ctx context.Context, row *models.JobStatusRow) error {
	row.UpdatedAt = time.Now()
	sql := `UPSERT $rid CONTENT $row`
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("job_status", row.ID),
		"row": row,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert job status %s: %w", row.ID, err)
	}
	return nil
}

func (s *JobStatusStore) Get(ctx context.Context, id string) (*models.JobStatusRow, error) {
	row, err := surrealdb.Select[models.JobStatusRow](ctx, s.db, surrealmodels.NewRecordID("job_status", id))
	if err != nil {
		return nil, fmt.Errorf("failed to get job status %s: %w", id, err)
	}
	if row == nil {
		return nil, pipeerr.New(pipeerr.ValidationError, "job status not found", errors.New(id))
	}
	return row, nil
}

func (s *JobStatusStore) ListByCourse(ctx context.Context, courseID string) ([]*models.JobStatusRow, error) {
	sql := "SELECT * FROM job_status WHERE course_id = $course ORDER BY updated_at DESC"
	results, err := surrealdb.Query[[]models.JobStatusRow](ctx, s.db, sql, map[string]any{"course": courseID})
	if err != nil {
		return nil, fmt.Errorf("failed to list job status for course %s: %w", courseID, err)
	}
	var rows []*models.JobStatusRow
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			rows = append(rows, &(*results)[0].Result[i])
		}
	}
	return rows, nil
}

// InternalKV implements interfaces.InternalKVStore over a system_kv table.
type InternalKV struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewInternalKV(db *surrealdb.DB, logger *common.Logger) *InternalKV {
	return &InternalKV{db: db, logger: logger}
}

type sysKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *InternalKV) GetSystemKV(ctx context.Context, key string) (string, error) {
	kv, err := surrealdb.Select[sysKV](ctx, s.db, surrealmodels.NewRecordID("system_kv", key))
	if err != nil {
		return "", fmt.Errorf("failed to get system KV: %w", err)
	}
	if kv == nil {
		return "", errors.New("system KV not found")
	}
	return kv.Value, nil
}

func (s *InternalKV) SetSystemKV(ctx context.Context, key, value string) error {
	kv := sysKV{Key: key, Value: value}
	sql := "UPSERT $rid CONTENT $kv"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("system_kv", key), "kv": kv}
	if _, err := surrealdb.Query[[]sysKV](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to set system KV: %w", err)
	}
	return nil
}

var (
	_ interfaces.CourseStore        = (*CourseStore)(nil)
	_ interfaces.FileCatalogStore   = (*FileCatalogStore)(nil)
	_ interfaces.SectionStore       = (*SectionStore)(nil)
	_ interfaces.LessonStore        = (*LessonStore)(nil)
	_ interfaces.LessonContentStore = (*LessonContentStore)(nil)
	_ interfaces.JobStatusStore     = (*JobStatusStore)(nil)
	_ interfaces.InternalKVStore    = (*InternalKV)(nil)
)
