package surrealdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
)

func TestCourseGetMissingIsValidationError(t *testing.T) {
	store := NewCourseStore(testDB(t), testLogger())
	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, pipeerr.Is(err, pipeerr.ValidationError))
}

func TestCourseUpdateStatusRequiresExpectedStatus(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := surrealInsertCourse(ctx, db, &models.Course{ID: "c1", GenerationStatus: models.StatusPending})
	require.NoError(t, err)

	store := NewCourseStore(db, testLogger())
	err = store.UpdateStatus(ctx, "c1", models.StatusUploading, models.StatusParsing, 25, "")
	require.Error(t, err)
	assert.True(t, pipeerr.Is(err, pipeerr.StateConflict))

	require.NoError(t, store.UpdateStatus(ctx, "c1", models.StatusPending, models.StatusUploading, 10, ""))
	course, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, course.GenerationStatus)
	assert.Equal(t, 10, course.GenerationProgress)
}

func TestCourseSaveAnalysisResultAndStructureRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := surrealInsertCourse(ctx, db, &models.Course{ID: "c1", GenerationStatus: models.StatusPending})
	require.NoError(t, err)

	store := NewCourseStore(db, testLogger())
	require.NoError(t, store.SaveAnalysisResult(ctx, "c1", &models.AnalysisResult{Category: "technical"}))
	require.NoError(t, store.SaveCourseStructure(ctx, "c1", &models.CourseStructure{
		Sections: []models.SectionSpec{{Title: "Intro", OrderIndex: 1}},
	}))

	course, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, course.AnalysisResult)
	assert.Equal(t, "technical", course.AnalysisResult.Category)
	require.NotNil(t, course.CourseStructure)
	assert.Len(t, course.CourseStructure.Sections, 1)
}

func TestFileCatalogUpsertAndListByCourse(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	store := NewFileCatalogStore(db, testLogger())

	require.NoError(t, store.Upsert(ctx, &models.File{ID: "f1", CourseID: "c1", Filename: "a.md"}))
	require.NoError(t, store.Upsert(ctx, &models.File{ID: "f2", CourseID: "c1", Filename: "b.md"}))

	files, err := store.ListByCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	got, err := store.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "a.md", got.Filename)
}

func TestSectionUpsertRejectsNonPositiveOrderIndex(t *testing.T) {
	store := NewSectionStore(testDB(t), testLogger())
	err := store.Upsert(context.Background(), &models.Section{ID: "s1", CourseID: "c1", OrderIndex: 0})
	require.Error(t, err)
	assert.True(t, pipeerr.Is(err, pipeerr.ValidationError))
}

func TestSectionListByCourseIsOrderedByOrderIndex(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	store := NewSectionStore(db, testLogger())

	require.NoError(t, store.Upsert(ctx, &models.Section{ID: "s2", CourseID: "c1", OrderIndex: 2}))
	require.NoError(t, store.Upsert(ctx, &models.Section{ID: "s1", CourseID: "c1", OrderIndex: 1}))

	sections, err := store.ListByCourse(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "s1", sections[0].ID)
}

func TestLessonUpsertValidatesBeforePersisting(t *testing.T) {
	store := NewLessonStore(testDB(t), testLogger())
	err := store.Upsert(context.Background(), &models.Lesson{ID: "l1", OrderIndex: -1})
	require.Error(t, err)
}

func TestLessonListBySectionAndByCourse(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	sections := NewSectionStore(db, testLogger())
	require.NoError(t, sections.Upsert(ctx, &models.Section{ID: "s1", CourseID: "c1", OrderIndex: 1}))

	lessons := NewLessonStore(db, testLogger())
	require.NoError(t, lessons.Upsert(ctx, &models.Lesson{ID: "l1", SectionID: "s1", OrderIndex: 1}))
	require.NoError(t, lessons.Upsert(ctx, &models.Lesson{ID: "l2", SectionID: "s1", OrderIndex: 2}))

	bySection, err := lessons.ListBySection(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, bySection, 2)

	byCourse, err := lessons.ListByCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, byCourse, 2)
}

func TestLessonContentUpsertAndGetIsKeyedByLessonID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	store := NewLessonContentStore(db, testLogger())

	require.NoError(t, store.Upsert(ctx, &models.LessonContent{LessonID: "l1", CourseID: "c1", Status: models.LessonStatusCompleted}))

	got, err := store.Get(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCompleted, got.Status)
}

func TestJobStatusUpsertAndListByCourse(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	store := NewJobStatusStore(db, testLogger())

	require.NoError(t, store.Upsert(ctx, &models.JobStatusRow{ID: "j1", CourseID: "c1", JobType: models.JobTypeSummarization, State: models.JobStatusWaiting}))
	require.NoError(t, store.Upsert(ctx, &models.JobStatusRow{ID: "j2", CourseID: "c1", JobType: models.JobTypeSummarization, State: models.JobStatusActive}))

	rows, err := store.ListByCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestInternalKVSetAndGet(t *testing.T) {
	store := NewInternalKV(testDB(t), testLogger())
	ctx := context.Background()

	require.NoError(t, store.SetSystemKV(ctx, "llm_api_key", "secret"))
	v, err := store.GetSystemKV(ctx, "llm_api_key")
	require.NoError(t, err)
	assert.Equal(t, "secret", v)
}

func TestInternalKVGetMissingKeyErrors(t *testing.T) {
	store := NewInternalKV(testDB(t), testLogger())
	_, err := store.GetSystemKV(context.Background(), "missing")
	require.Error(t, err)
}
