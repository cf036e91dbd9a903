package stages

import (
	"context"
	"sync"
	"time"

	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
)

type fakeCourseStore struct {
	mu      sync.Mutex
	courses map[string]*models.Course
}

func newFakeCourseStore(courses ...*models.Course) *fakeCourseStore {
	s := &fakeCourseStore{courses: make(map[string]*models.Course)}
	for _, c := range courses {
		s.courses[c.ID] = c
	}
	return s
}

func (s *fakeCourseStore) Get(_ context.Context, id string) (*models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return nil, pipeerr.NewValidationError("course not found")
	}
	cp := *c
	return &cp, nil
}

func (s *fakeCourseStore) UpdateStatus(_ context.Context, id string, expected, next models.GenerationStatus, progress int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return pipeerr.NewValidationError("course not found")
	}
	if c.GenerationStatus != expected {
		return pipeerr.NewStateConflict("status mismatch")
	}
	c.GenerationStatus = next
	c.GenerationProgress = progress
	c.ErrorMessage = errMsg
	c.UpdatedAt = time.Now()
	return nil
}

func (s *fakeCourseStore) SaveAnalysisResult(_ context.Context, id string, result *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return pipeerr.NewValidationError("course not found")
	}
	c.AnalysisResult = result
	return nil
}

func (s *fakeCourseStore) SaveCourseStructure(_ context.Context, id string, structure *models.CourseStructure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return pipeerr.NewValidationError("course not found")
	}
	c.CourseStructure = structure
	return nil
}

var _ interfaces.CourseStore = (*fakeCourseStore)(nil)

type fakeFileStore struct {
	mu    sync.Mutex
	files map[string]*models.File
}

func newFakeFileStore(files ...*models.File) *fakeFileStore {
	s := &fakeFileStore{files: make(map[string]*models.File)}
	for _, f := range files {
		s.files[f.ID] = f
	}
	return s
}

func (s *fakeFileStore) Get(_ context.Context, id string) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, pipeerr.NewValidationError("file not found")
	}
	cp := *f
	return &cp, nil
}

func (s *fakeFileStore) ListByCourse(_ context.Context, courseID string) ([]*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.File
	for _, f := range s.files {
		if f.CourseID == courseID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeFileStore) Upsert(_ context.Context, file *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *file
	s.files[file.ID] = &cp
	return nil
}

var _ interfaces.FileCatalogStore = (*fakeFileStore)(nil)

type fakeSectionStore struct {
	mu       sync.Mutex
	sections map[string]*models.Section
}

func newFakeSectionStore() *fakeSectionStore {
	return &fakeSectionStore{sections: make(map[string]*models.Section)}
}

func (s *fakeSectionStore) Get(_ context.Context, id string) (*models.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[id]
	if !ok {
		return nil, pipeerr.NewValidationError("section not found")
	}
	cp := *sec
	return &cp, nil
}

func (s *fakeSectionStore) ListByCourse(_ context.Context, courseID string) ([]*models.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Section
	for _, sec := range s.sections {
		if sec.CourseID == courseID {
			cp := *sec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSectionStore) Upsert(_ context.Context, section *models.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *section
	s.sections[section.ID] = &cp
	return nil
}

var _ interfaces.SectionStore = (*fakeSectionStore)(nil)

type fakeLessonStore struct {
	mu      sync.Mutex
	lessons map[string]*models.Lesson
}

func newFakeLessonStore() *fakeLessonStore {
	return &fakeLessonStore{lessons: make(map[string]*models.Lesson)}
}

func (s *fakeLessonStore) Get(_ context.Context, id string) (*models.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lessons[id]
	if !ok {
		return nil, pipeerr.NewValidationError("lesson not found")
	}
	cp := *l
	return &cp, nil
}

func (s *fakeLessonStore) ListBySection(_ context.Context, sectionID string) ([]*models.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Lesson
	for _, l := range s.lessons {
		if l.SectionID == sectionID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeLessonStore) ListByCourse(_ context.Context, courseID string) ([]*models.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Lesson
	for _, l := range s.lessons {
		cp := *l
		out = append(out, &cp)
	}
	_ = courseID // fake has no section->course join table; tests scope by lesson id instead
	return out, nil
}

func (s *fakeLessonStore) Upsert(_ context.Context, lesson *models.Lesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *lesson
	s.lessons[lesson.ID] = &cp
	return nil
}

var _ interfaces.LessonStore = (*fakeLessonStore)(nil)

type fakeLessonContentStore struct {
	mu      sync.Mutex
	content map[string]*models.LessonContent
}

func newFakeLessonContentStore() *fakeLessonContentStore {
	return &fakeLessonContentStore{content: make(map[string]*models.LessonContent)}
}

func (s *fakeLessonContentStore) Get(_ context.Context, lessonID string) (*models.LessonContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.content[lessonID]
	if !ok {
		return nil, pipeerr.NewValidationError("lesson content not found")
	}
	cp := *c
	return &cp, nil
}

func (s *fakeLessonContentStore) Upsert(_ context.Context, content *models.LessonContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *content
	s.content[content.LessonID] = &cp
	return nil
}

var _ interfaces.LessonContentStore = (*fakeLessonContentStore)(nil)

type fakeDocParser struct {
	markdown string
	err      error
}

func (p *fakeDocParser) Parse(_ context.Context, _, _ string) (*interfaces.ParsedDocument, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &interfaces.ParsedDocument{MarkdownContent: p.markdown, PageCount: 1}, nil
}

var _ interfaces.DocParserClient = (*fakeDocParser)(nil)

type fakeVectorStore struct {
	mu     sync.Mutex
	chunks map[string][]models.RAGChunk
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{chunks: make(map[string][]models.RAGChunk)}
}

func (v *fakeVectorStore) UpsertChunks(_ context.Context, fileID string, chunks []models.RAGChunk) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.chunks[fileID] = chunks
	return nil
}

func (v *fakeVectorStore) Query(_ context.Context, _ interfaces.VectorQuery) ([]models.RAGChunk, error) {
	return nil, nil
}

var _ interfaces.VectorStoreClient = (*fakeVectorStore)(nil)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Complete(_ context.Context, _ interfaces.CompletionRequest) (*interfaces.CompletionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &interfaces.CompletionResult{Text: f.response, ModelUsed: "fake-model"}, nil
}

var _ interfaces.LLMGatewayClient = (*fakeLLM)(nil)

type fakeRAGBuilder struct{}

func (fakeRAGBuilder) BuildForSection(_ context.Context, _ string, section models.SectionBreakdown, _ int) ([]models.RAGChunk, error) {
	return []models.RAGChunk{{ID: section.SectionID + "-c1", Content: "context"}}, nil
}

var _ interfaces.RAGContextBuilder = fakeRAGBuilder{}

type fakeGraphRunner struct {
	status models.LessonStatus
	err    error
}

func (g *fakeGraphRunner) Run(_ context.Context, spec models.LessonSpec, courseID string, _ map[string][]models.RAGChunk) (*models.LessonContent, error) {
	if g.err != nil {
		return nil, g.err
	}
	status := g.status
	if status == "" {
		status = models.LessonStatusCompleted
	}
	return &models.LessonContent{
		LessonID: spec.LessonID,
		CourseID: courseID,
		Status:   status,
		Intro:    "intro",
		Sections: []models.RenderedSection{{ID: "overview", Title: "Overview", Body: "body"}},
	}, nil
}

var _ interfaces.LessonGraphRunner = (*fakeGraphRunner)(nil)

// fakeJobQueueStore backs a real jobqueue.Manager in tests so stage
// handlers can Enqueue/EnqueueIfNeeded without a storage backend.
type fakeJobQueueStore struct {
	mu   sync.Mutex
	jobs []*models.Job
}

func newFakeJobQueueStore() *fakeJobQueueStore {
	return &fakeJobQueueStore{}
}

func (q *fakeJobQueueStore) Enqueue(_ context.Context, job *models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.Status == "" {
		job.Status = models.JobStatusWaiting
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeJobQueueStore) Dequeue(_ context.Context, _ string) (*models.Job, error) { return nil, nil }
func (q *fakeJobQueueStore) Complete(_ context.Context, _ string) error               { return nil }
func (q *fakeJobQueueStore) Fail(_ context.Context, _ string, _ error) error          { return nil }
func (q *fakeJobQueueStore) Cancel(_ context.Context, _ string) error                 { return nil }
func (q *fakeJobQueueStore) CancelByCourse(_ context.Context, _ string) (int, error)   { return 0, nil }
func (q *fakeJobQueueStore) GetMaxPriority(_ context.Context) (int, error)             { return 0, nil }
func (q *fakeJobQueueStore) ListPending(_ context.Context, _ int) ([]*models.Job, error) {
	return nil, nil
}
func (q *fakeJobQueueStore) ListDeadLetter(_ context.Context, _ int) ([]*models.Job, error) {
	return nil, nil
}
func (q *fakeJobQueueStore) CountPending(_ context.Context) (int, error) { return 0, nil }

func (q *fakeJobQueueStore) HasPendingJob(_ context.Context, jobType models.JobType, courseID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.Type == jobType && j.Payload.CourseID == courseID && j.Status == models.JobStatusWaiting {
			return true, nil
		}
	}
	return false, nil
}

func (q *fakeJobQueueStore) PurgeCompleted(_ context.Context, _ time.Time) (int, error) { return 0, nil }
func (q *fakeJobQueueStore) ResetRunningJobs(_ context.Context) (int, error)            { return 0, nil }

var _ interfaces.JobQueueStore = (*fakeJobQueueStore)(nil)

// fakeStorageManager wraps a fakeJobQueueStore; jobqueue.Manager only ever
// calls JobQueueStore() on it, so the other accessors are unused stubs.
type fakeStorageManager struct {
	jobQueue interfaces.JobQueueStore
}

func (m *fakeStorageManager) CourseStore() interfaces.CourseStore               { return nil }
func (m *fakeStorageManager) FileCatalogStore() interfaces.FileCatalogStore     { return nil }
func (m *fakeStorageManager) SectionStore() interfaces.SectionStore             { return nil }
func (m *fakeStorageManager) LessonStore() interfaces.LessonStore               { return nil }
func (m *fakeStorageManager) LessonContentStore() interfaces.LessonContentStore { return nil }
func (m *fakeStorageManager) JobQueueStore() interfaces.JobQueueStore           { return m.jobQueue }
func (m *fakeStorageManager) JobStatusStore() interfaces.JobStatusStore        { return nil }
func (m *fakeStorageManager) InternalKVStore() interfaces.InternalKVStore      { return nil }
func (m *fakeStorageManager) DataPath() string                                 { return "" }
func (m *fakeStorageManager) Close() error                                     { return nil }

var _ interfaces.StorageManager = (*fakeStorageManager)(nil)
