package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "data")
	m, err := NewManager(common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCourseGetReturnsNotFoundAsValidationError(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CourseStore().Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, pipeerr.Is(err, pipeerr.ValidationError))
}

func TestCourseUpdateStatusGuardsOnExpectedStatus(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.courseStore.UpsertCourse(context.Background(), &models.Course{
		ID: "c1", GenerationStatus: models.StatusPending,
	}))

	err := m.CourseStore().UpdateStatus(context.Background(), "c1", models.StatusUploading, models.StatusParsing, 25, "")
	require.Error(t, err)
	assert.True(t, pipeerr.Is(err, pipeerr.StateConflict))

	require.NoError(t, m.CourseStore().UpdateStatus(context.Background(), "c1", models.StatusPending, models.StatusUploading, 10, ""))
	c, err := m.CourseStore().Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, c.GenerationStatus)
	assert.Equal(t, 10, c.GenerationProgress)
}

func TestCourseSaveAnalysisResultAndStructurePersist(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.courseStore.UpsertCourse(context.Background(), &models.Course{ID: "c1"}))

	result := &models.AnalysisResult{Category: "technical"}
	require.NoError(t, m.CourseStore().SaveAnalysisResult(context.Background(), "c1", result))

	structure := &models.CourseStructure{Sections: []models.SectionSpec{{Title: "Intro", OrderIndex: 1}}}
	require.NoError(t, m.CourseStore().SaveCourseStructure(context.Background(), "c1", structure))

	c, err := m.CourseStore().Get(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, c.AnalysisResult)
	assert.Equal(t, "technical", c.AnalysisResult.Category)
	require.NotNil(t, c.CourseStructure)
	assert.Len(t, c.CourseStructure.Sections, 1)
}

func TestFileCatalogUpsertGetAndListByCourse(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.FileCatalogStore().Upsert(context.Background(), &models.File{ID: "f1", CourseID: "c1", Filename: "a.md"}))
	require.NoError(t, m.FileCatalogStore().Upsert(context.Background(), &models.File{ID: "f2", CourseID: "c1", Filename: "b.md"}))
	require.NoError(t, m.FileCatalogStore().Upsert(context.Background(), &models.File{ID: "f3", CourseID: "other", Filename: "c.md"}))

	f, err := m.FileCatalogStore().Get(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "a.md", f.Filename)

	files, err := m.FileCatalogStore().ListByCourse(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestSectionUpsertRejectsNonPositiveOrderIndex(t *testing.T) {
	m := newTestManager(t)
	err := m.SectionStore().Upsert(context.Background(), &models.Section{ID: "s1", CourseID: "c1", OrderIndex: 0})
	require.Error(t, err)
	assert.True(t, pipeerr.Is(err, pipeerr.ValidationError))
}

func TestSectionListByCourseIsOrdered(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SectionStore().Upsert(context.Background(), &models.Section{ID: "s2", CourseID: "c1", OrderIndex: 2}))
	require.NoError(t, m.SectionStore().Upsert(context.Background(), &models.Section{ID: "s1", CourseID: "c1", OrderIndex: 1}))

	sections, err := m.SectionStore().ListByCourse(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "s1", sections[0].ID)
	assert.Equal(t, "s2", sections[1].ID)
}

func TestLessonUpsertValidatesBeforePersisting(t *testing.T) {
	m := newTestManager(t)
	err := m.LessonStore().Upsert(context.Background(), &models.Lesson{ID: "l1", OrderIndex: -1})
	require.Error(t, err)
}

func TestLessonListByCourseAggregatesAcrossSections(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SectionStore().Upsert(context.Background(), &models.Section{ID: "s1", CourseID: "c1", OrderIndex: 1}))
	require.NoError(t, m.SectionStore().Upsert(context.Background(), &models.Section{ID: "s2", CourseID: "c1", OrderIndex: 2}))
	require.NoError(t, m.LessonStore().Upsert(context.Background(), &models.Lesson{ID: "l1", SectionID: "s1", OrderIndex: 1}))
	require.NoError(t, m.LessonStore().Upsert(context.Background(), &models.Lesson{ID: "l2", SectionID: "s2", OrderIndex: 1}))

	lessons, err := m.LessonStore().ListByCourse(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, lessons, 2)
}

func TestLessonContentUpsertAndGetRoundTrips(t *testing.T) {
	m := newTestManager(t)
	content := &models.LessonContent{LessonID: "l1", CourseID: "c1", Status: models.LessonStatusCompleted}
	require.NoError(t, m.LessonContentStore().Upsert(context.Background(), content))

	got, err := m.LessonContentStore().Get(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCompleted, got.Status)
}

func TestLessonContentGetMissingIsValidationError(t *testing.T) {
	m := newTestManager(t)
	_, err := m.LessonContentStore().Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, pipeerr.Is(err, pipeerr.ValidationError))
}

func TestJobQueueEnqueueFillsDefaults(t *testing.T) {
	m := newTestManager(t)
	job := &models.Job{Type: models.JobTypeSummarization, Payload: models.JobPayload{JobType: models.JobTypeSummarization}}
	require.NoError(t, m.JobQueueStore().Enqueue(context.Background(), job))

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobStatusWaiting, job.Status)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Equal(t, models.DefaultStagePriority, job.Priority)
}

func TestJobQueueDequeueClaimsHighestPriorityFirst(t *testing.T) {
	m := newTestManager(t)
	low := &models.Job{Type: models.JobTypeSummarization, Priority: 1, Payload: models.JobPayload{}}
	high := &models.Job{Type: models.JobTypeSummarization, Priority: 10, Payload: models.JobPayload{}}
	require.NoError(t, m.JobQueueStore().Enqueue(context.Background(), low))
	require.NoError(t, m.JobQueueStore().Enqueue(context.Background(), high))

	job, err := m.JobQueueStore().Dequeue(context.Background(), "worker-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, high.ID, job.ID)
	assert.Equal(t, models.JobStatusActive, job.Status)
	assert.Equal(t, 1, job.Attempt)
}

func TestJobQueueDequeueReturnsNilWhenEmpty(t *testing.T) {
	m := newTestManager(t)
	job, err := m.JobQueueStore().Dequeue(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestJobQueueFailRetriesUntilMaxAttempts(t *testing.T) {
	m := newTestManager(t)
	job := &models.Job{Type: models.JobTypeSummarization, MaxAttempts: 2, Payload: models.JobPayload{}}
	require.NoError(t, m.JobQueueStore().Enqueue(context.Background(), job))

	claimed, err := m.JobQueueStore().Dequeue(context.Background(), "w1")
	require.NoError(t, err)
	require.NoError(t, m.JobQueueStore().Fail(context.Background(), claimed.ID, assert.AnError))

	// Fail reschedules attempt 1 with a 1s backoff; wait it out.
	time.Sleep(1100 * time.Millisecond)
	row, err := m.JobQueueStore().Dequeue(context.Background(), "w1")
	require.NoError(t, err)
	require.NotNil(t, row, "job should be retried, not yet exhausted")
	assert.Equal(t, models.JobStatusActive, row.Status)

	require.NoError(t, m.JobQueueStore().Fail(context.Background(), row.ID, assert.AnError))
	none, err := m.JobQueueStore().Dequeue(context.Background(), "w1")
	require.NoError(t, err)
	assert.Nil(t, none, "job exhausted its retries and should not be claimable again")
}

func TestJobQueueCompleteMarksJobDone(t *testing.T) {
	m := newTestManager(t)
	job := &models.Job{Type: models.JobTypeSummarization, Payload: models.JobPayload{}}
	require.NoError(t, m.JobQueueStore().Enqueue(context.Background(), job))

	claimed, err := m.JobQueueStore().Dequeue(context.Background(), "w1")
	require.NoError(t, err)
	require.NoError(t, m.JobQueueStore().Complete(context.Background(), claimed.ID))

	count, err := m.JobQueueStore().CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestJobQueueHasPendingJobDedupsByTypeAndCourse(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.JobQueueStore().Enqueue(context.Background(), &models.Job{
		Type: models.JobTypeSummarization, Payload: models.JobPayload{CourseID: "c1"},
	}))

	has, err := m.JobQueueStore().HasPendingJob(context.Background(), models.JobTypeSummarization, "c1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = m.JobQueueStore().HasPendingJob(context.Background(), models.JobTypeSummarization, "c2")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestJobQueueResetRunningJobsReturnsOrphansToWaiting(t *testing.T) {
	m := newTestManager(t)
	job := &models.Job{Type: models.JobTypeSummarization, Payload: models.JobPayload{}}
	require.NoError(t, m.JobQueueStore().Enqueue(context.Background(), job))
	_, err := m.JobQueueStore().Dequeue(context.Background(), "crashed-worker")
	require.NoError(t, err)

	count, err := m.JobQueueStore().ResetRunningJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	reclaimed, err := m.JobQueueStore().Dequeue(context.Background(), "new-worker")
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
}

func TestJobStatusUpsertAndGet(t *testing.T) {
	m := newTestManager(t)
	row := &models.JobStatusRow{ID: "j1", CourseID: "c1", JobType: models.JobTypeSummarization, State: models.JobStatusWaiting, UpdatedAt: time.Now()}
	require.NoError(t, m.JobStatusStore().Upsert(context.Background(), row))

	got, err := m.JobStatusStore().Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.CourseID)
}

func TestInternalKVSetAndGet(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.InternalKVStore().SetSystemKV(context.Background(), "llm_api_key", "secret"))

	v, err := m.InternalKVStore().GetSystemKV(context.Background(), "llm_api_key")
	require.NoError(t, err)
	assert.Equal(t, "secret", v)
}

func TestInternalKVGetMissingKeyErrors(t *testing.T) {
	m := newTestManager(t)
	_, err := m.InternalKVStore().GetSystemKV(context.Background(), "missing")
	require.Error(t, err)
}
