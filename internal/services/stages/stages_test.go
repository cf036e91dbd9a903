package stages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/services/fsm"
	"github.com/bobmcallan/coursegen/internal/services/jobqueue"
)

func newTestQueue() (*jobqueue.Manager, *fakeJobQueueStore) {
	store := newFakeJobQueueStore()
	mgr := jobqueue.NewManager(&fakeStorageManager{jobQueue: store}, nil, common.QueueConfig{}, nil, common.NewSilentLogger())
	return mgr, store
}

func TestDocumentUploadHandlerPersistsFileAndEnqueuesProcessing(t *testing.T) {
	courses := newFakeCourseStore(&models.Course{ID: "c1", GenerationStatus: models.StatusPending})
	files := newFakeFileStore()
	queue, jobs := newTestQueue()
	handler := NewDocumentUploadHandler(files, courses, fsm.NewCourseFSM(courses, common.NewSilentLogger()), queue, common.NewSilentLogger())

	job := &models.Job{Payload: models.JobPayload{CourseID: "c1", Fields: map[string]any{
		"fileId": "f1", "filename": "notes.pdf", "mimeType": "application/pdf", "sizeBytes": 1024, "storagePath": "/tmp/f1.pdf",
	}}}

	err := handler.Handle(context.Background(), job)
	require.NoError(t, err)

	f, err := files.Get(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, models.VectorStatusPending, f.VectorStatus)

	c, _ := courses.Get(context.Background(), "c1")
	assert.Equal(t, models.StatusUploading, c.GenerationStatus)

	require.Len(t, jobs.jobs, 1)
	assert.Equal(t, models.JobTypeDocumentProcessing, jobs.jobs[0].Type)
}

func TestDocumentUploadHandlerRejectsOversizedFile(t *testing.T) {
	courses := newFakeCourseStore(&models.Course{ID: "c1", GenerationStatus: models.StatusPending})
	files := newFakeFileStore()
	queue, _ := newTestQueue()
	handler := NewDocumentUploadHandler(files, courses, fsm.NewCourseFSM(courses, common.NewSilentLogger()), queue, common.NewSilentLogger())

	job := &models.Job{Payload: models.JobPayload{CourseID: "c1", Fields: map[string]any{
		"fileId": "f1", "filename": "huge.pdf", "mimeType": "application/pdf", "sizeBytes": defaultMaxUploadBytes + 1,
	}}}

	err := handler.Handle(context.Background(), job)
	assert.Error(t, err)
}

func TestDocumentProcessingHandlerChunksAndEnqueuesSummarization(t *testing.T) {
	courses := newFakeCourseStore(&models.Course{ID: "c1", GenerationStatus: models.StatusUploading})
	files := newFakeFileStore(&models.File{ID: "f1", CourseID: "c1", VectorStatus: models.VectorStatusPending, MimeType: "text/plain"})
	vectors := newFakeVectorStore()
	parser := &fakeDocParser{markdown: "# Doc\n\nSome content about the subject."}
	queue, jobs := newTestQueue()
	handler := NewDocumentProcessingHandler(files, courses, fsm.NewCourseFSM(courses, common.NewSilentLogger()), parser, vectors, queue, common.NewSilentLogger())

	job := &models.Job{Payload: models.JobPayload{CourseID: "c1", Fields: map[string]any{"fileId": "f1"}}}
	err := handler.Handle(context.Background(), job)
	require.NoError(t, err)

	f, _ := files.Get(context.Background(), "f1")
	assert.Equal(t, models.VectorStatusReady, f.VectorStatus)
	assert.NotEmpty(t, f.MarkdownContent)
	assert.NotEmpty(t, vectors.chunks["f1"])

	c, _ := courses.Get(context.Background(), "c1")
	assert.Equal(t, models.StatusParsing, c.GenerationStatus)

	require.Len(t, jobs.jobs, 1)
	assert.Equal(t, models.JobTypeSummarization, jobs.jobs[0].Type)
}

func TestDocumentProcessingHandlerMarksFileFailedNonFatally(t *testing.T) {
	courses := newFakeCourseStore(&models.Course{ID: "c1", GenerationStatus: models.StatusUploading})
	files := newFakeFileStore(&models.File{ID: "f1", CourseID: "c1", VectorStatus: models.VectorStatusPending})
	vectors := newFakeVectorStore()
	parser := &fakeDocParser{err: assertErr("parse failed")}
	queue, _ := newTestQueue()
	handler := NewDocumentProcessingHandler(files, courses, fsm.NewCourseFSM(courses, common.NewSilentLogger()), parser, vectors, queue, common.NewSilentLogger())

	job := &models.Job{Payload: models.JobPayload{CourseID: "c1", Fields: map[string]any{"fileId": "f1"}}}
	err := handler.Handle(context.Background(), job)
	require.NoError(t, err) // non-fatal to the course

	f, _ := files.Get(context.Background(), "f1")
	assert.Equal(t, models.VectorStatusFailed, f.VectorStatus)
}

func TestSummarizationHandlerSkipsFailedFilesAndEnqueuesAnalysis(t *testing.T) {
	courses := newFakeCourseStore(&models.Course{ID: "c1", GenerationStatus: models.StatusParsing})
	files := newFakeFileStore(
		&models.File{ID: "f1", CourseID: "c1", VectorStatus: models.VectorStatusReady, MarkdownContent: "content one"},
		&models.File{ID: "f2", CourseID: "c1", VectorStatus: models.VectorStatusFailed},
	)
	llm := &fakeLLM{response: "a tidy summary"}
	queue, jobs := newTestQueue()
	handler := NewSummarizationHandler(files, courses, fsm.NewCourseFSM(courses, common.NewSilentLogger()), llm, queue, common.NewSilentLogger())

	job := &models.Job{Payload: models.JobPayload{CourseID: "c1"}}
	err := handler.Handle(context.Background(), job)
	require.NoError(t, err)

	f1, _ := files.Get(context.Background(), "f1")
	assert.Equal(t, "a tidy summary", f1.ProcessedContent)

	require.Len(t, jobs.jobs, 1)
	assert.Equal(t, models.JobTypeStructureAnalysis, jobs.jobs[0].Type)
}

func TestSummarizationHandlerFailsFatallyWhenEveryFileFails(t *testing.T) {
	courses := newFakeCourseStore(&models.Course{ID: "c1", GenerationStatus: models.StatusParsing})
	files := newFakeFileStore(&models.File{ID: "f1", CourseID: "c1", VectorStatus: models.VectorStatusReady, MarkdownContent: "content one"})
	llm := &fakeLLM{err: assertErr("llm down")}
	queue, _ := newTestQueue()
	handler := NewSummarizationHandler(files, courses, fsm.NewCourseFSM(courses, common.NewSilentLogger()), llm, queue, common.NewSilentLogger())

	err := handler.Handle(context.Background(), &models.Job{Payload: models.JobPayload{CourseID: "c1"}})
	assert.Error(t, err)
}

func TestStructureAnalysisHandlerParsesJSONAndEnqueuesGeneration(t *testing.T) {
	courses := newFakeCourseStore(&models.Course{ID: "c1", GenerationStatus: models.StatusSummarizing, Title: "Intro to Tides"})
	files := newFakeFileStore(&models.File{ID: "f1", CourseID: "c1", ProcessedContent: "summary text"})
	llm := &fakeLLM{response: `{"category":"science","topicAnalysis":"tides","guidance":{"tone":"friendly","audience":"beginners","depth":"intro"},"documentRelevance":[],"researchFlags":[]}`}
	queue, jobs := newTestQueue()
	handler := NewStructureAnalysisHandler(files, courses, fsm.NewCourseFSM(courses, common.NewSilentLogger()), llm, queue, common.NewSilentLogger())

	err := handler.Handle(context.Background(), &models.Job{Payload: models.JobPayload{CourseID: "c1"}})
	require.NoError(t, err)

	c, _ := courses.Get(context.Background(), "c1")
	require.NotNil(t, c.AnalysisResult)
	assert.Equal(t, "science", c.AnalysisResult.Category)

	require.Len(t, jobs.jobs, 1)
	assert.Equal(t, models.JobTypeStructureGeneration, jobs.jobs[0].Type)
}

func TestStructureAnalysisHandlerRejectsMalformedJSON(t *testing.T) {
	courses := newFakeCourseStore(&models.Course{ID: "c1", GenerationStatus: models.StatusSummarizing})
	files := newFakeFileStore()
	llm := &fakeLLM{response: "not json"}
	queue, _ := newTestQueue()
	handler := NewStructureAnalysisHandler(files, courses, fsm.NewCourseFSM(courses, common.NewSilentLogger()), llm, queue, common.NewSilentLogger())

	err := handler.Handle(context.Background(), &models.Job{Payload: models.JobPayload{CourseID: "c1"}})
	assert.Error(t, err)
}

func TestStructureGenerationHandlerMaterializesSectionsAndLessons(t *testing.T) {
	courses := newFakeCourseStore(&models.Course{
		ID: "c1", GenerationStatus: models.StatusAnalyzing,
		AnalysisResult: &models.AnalysisResult{Category: "science"},
	})
	sections := newFakeSectionStore()
	lessons := newFakeLessonStore()
	llm := &fakeLLM{response: `{"sections":[{"title":"Tides","description":"d","orderIndex":1,"lessons":[{"title":"What are tides","description":"d2","orderIndex":1,"learningOutcomes":["explain tides"],"topics":["gravity","moon"],"durationMinutes":15}]}]}`}
	queue, jobs := newTestQueue()
	handler := NewStructureGenerationHandler(courses, sections, lessons, fsm.NewCourseFSM(courses, common.NewSilentLogger()), llm, queue, common.NewSilentLogger())

	err := handler.Handle(context.Background(), &models.Job{Payload: models.JobPayload{CourseID: "c1"}})
	require.NoError(t, err)

	secs, _ := sections.ListByCourse(context.Background(), "c1")
	require.Len(t, secs, 1)
	assert.Equal(t, "Tides", secs[0].Title)

	les, _ := lessons.ListByCourse(context.Background(), "c1")
	require.Len(t, les, 1)
	assert.Equal(t, "What are tides", les[0].Title)
	assert.Equal(t, []string{"explain tides"}, les[0].Objectives)

	c, _ := courses.Get(context.Background(), "c1")
	assert.Equal(t, models.StatusGeneratingLessons, c.GenerationStatus)

	require.Len(t, jobs.jobs, 1)
	assert.Equal(t, models.JobTypeLessonContent, jobs.jobs[0].Type)
}

func TestStructureGenerationHandlerEnqueuesOneJobPerLesson(t *testing.T) {
	courses := newFakeCourseStore(&models.Course{
		ID: "c1", GenerationStatus: models.StatusAnalyzing,
		AnalysisResult: &models.AnalysisResult{Category: "science"},
	})
	sections := newFakeSectionStore()
	lessons := newFakeLessonStore()
	llm := &fakeLLM{response: `{"sections":[{"title":"Tides","orderIndex":1,"lessons":[
		{"title":"Lesson A","orderIndex":1},
		{"title":"Lesson B","orderIndex":2}
	]}]}`}
	queue, jobs := newTestQueue()
	handler := NewStructureGenerationHandler(courses, sections, lessons, fsm.NewCourseFSM(courses, common.NewSilentLogger()), llm, queue, common.NewSilentLogger())

	err := handler.Handle(context.Background(), &models.Job{Payload: models.JobPayload{CourseID: "c1"}})
	require.NoError(t, err)

	// Both lessons must be enqueued even though HasPendingJob would
	// otherwise mask the second one at course granularity.
	require.Len(t, jobs.jobs, 2)
}

func TestLessonContentHandlerPersistsContentAndCompletesCourse(t *testing.T) {
	courses := newFakeCourseStore(&models.Course{ID: "c1", GenerationStatus: models.StatusGeneratingLessons, Language: "en"})
	sections := newFakeSectionStore()
	lessons := newFakeLessonStore()
	content := newFakeLessonContentStore()

	require.NoError(t, sections.Upsert(context.Background(), &models.Section{ID: "s1", CourseID: "c1", Title: "Tides"}))
	require.NoError(t, lessons.Upsert(context.Background(), &models.Lesson{
		ID: "l1", SectionID: "s1", Title: "What are tides", OrderIndex: 1, Status: models.LessonStatusPending,
		Metadata: map[string]any{"description": "d", "topics": []interface{}{"gravity", "moon"}},
	}))

	handler := NewLessonContentHandler(courses, sections, lessons, content, fakeRAGBuilder{}, &fakeGraphRunner{}, fsm.NewCourseFSM(courses, common.NewSilentLogger()), common.NewSilentLogger())

	job := &models.Job{Payload: models.JobPayload{CourseID: "c1", Fields: map[string]any{"lessonId": "l1"}}}
	err := handler.Handle(context.Background(), job)
	require.NoError(t, err)

	lc, err := content.Get(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCompleted, lc.Status)

	l, _ := lessons.Get(context.Background(), "l1")
	assert.Equal(t, models.LessonStatusCompleted, l.Status)

	c, _ := courses.Get(context.Background(), "c1")
	assert.Equal(t, models.StatusCompleted, c.GenerationStatus)
}

func TestLessonContentHandlerSkipsAlreadyTerminalLesson(t *testing.T) {
	courses := newFakeCourseStore(&models.Course{ID: "c1", GenerationStatus: models.StatusGeneratingLessons})
	sections := newFakeSectionStore()
	lessons := newFakeLessonStore()
	content := newFakeLessonContentStore()
	require.NoError(t, lessons.Upsert(context.Background(), &models.Lesson{ID: "l1", Status: models.LessonStatusCompleted}))
	require.NoError(t, content.Upsert(context.Background(), &models.LessonContent{LessonID: "l1", Status: models.LessonStatusCompleted, UpdatedAt: time.Now()}))

	graph := &fakeGraphRunner{err: assertErr("should not be called")}
	handler := NewLessonContentHandler(courses, sections, lessons, content, fakeRAGBuilder{}, graph, fsm.NewCourseFSM(courses, common.NewSilentLogger()), common.NewSilentLogger())

	job := &models.Job{Payload: models.JobPayload{CourseID: "c1", Fields: map[string]any{"lessonId": "l1"}}}
	err := handler.Handle(context.Background(), job)
	require.NoError(t, err)
}

func TestBuildLessonSpecFallsBackToOverviewSectionWithoutTopics(t *testing.T) {
	lesson := &models.Lesson{ID: "l1", Title: "Intro", Metadata: map[string]any{"description": "an overview"}}
	section := &models.Section{ID: "s1", Title: "Foundations"}
	course := &models.Course{ID: "c1", Language: "en"}

	spec := buildLessonSpec(lesson, section, course)
	require.Len(t, spec.Sections, 1)
	assert.Equal(t, "overview", spec.Sections[0].SectionID)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
