package stages

import (
	"context"
	"fmt"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
)

const defaultExpectedChunksPerSection = 6

// LessonContentHandler implements S6: builds a LessonSpec
// from the materialized Lesson/Section/Course rows, resolves RAG chunks per
// section via C5, drives the Stage 6 graph (C6), and persists the result.
type LessonContentHandler struct {
	courses   interfaces.CourseStore
	sections  interfaces.SectionStore
	lessons   interfaces.LessonStore
	content   interfaces.LessonContentStore
	rag       interfaces.RAGContextBuilder
	graph     interfaces.LessonGraphRunner
	fsm       interfaces.CourseFSM
	logger    *common.Logger
}

func NewLessonContentHandler(courses interfaces.CourseStore, sections interfaces.SectionStore, lessons interfaces.LessonStore, content interfaces.LessonContentStore, rag interfaces.RAGContextBuilder, graph interfaces.LessonGraphRunner, fsm interfaces.CourseFSM, logger *common.Logger) *LessonContentHandler {
	return &LessonContentHandler{courses: courses, sections: sections, lessons: lessons, content: content, rag: rag, graph: graph, fsm: fsm, logger: logger}
}

func (h *LessonContentHandler) JobType() models.JobType { return models.JobTypeLessonContent }

func (h *LessonContentHandler) Handle(ctx context.Context, job *models.Job) error {
	lessonID, err := fieldString(job.Payload.Fields, "lessonId")
	if err != nil {
		return err
	}

	existing, err := h.content.Get(ctx, lessonID)
	if err == nil && existing != nil && terminalLessonStatus(existing.Status) {
		h.logger.Debug().Str("lesson_id", lessonID).Str("status", string(existing.Status)).Msg("lesson content already terminal, skipping")
		return h.maybeCompleteCourse(ctx, job.Payload.CourseID)
	}

	lesson, err := h.lessons.Get(ctx, lessonID)
	if err != nil {
		return fmt.Errorf("failed to load lesson %s: %w", lessonID, err)
	}
	section, err := h.sections.Get(ctx, lesson.SectionID)
	if err != nil {
		return fmt.Errorf("failed to load section %s: %w", lesson.SectionID, err)
	}
	course, err := h.courses.Get(ctx, job.Payload.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load course %s: %w", job.Payload.CourseID, err)
	}

	lesson.Status = models.LessonStatusGenerating
	if err := h.lessons.Upsert(ctx, lesson); err != nil {
		return fmt.Errorf("failed to mark lesson %s generating: %w", lessonID, err)
	}

	spec := buildLessonSpec(lesson, section, course)

	chunks := make(map[string][]models.RAGChunk, len(spec.Sections))
	for _, sb := range spec.Sections {
		expected := sb.ExpectedChunks
		if expected <= 0 {
			expected = defaultExpectedChunksPerSection
		}
		rc, err := h.rag.BuildForSection(ctx, job.Payload.CourseID, sb, expected)
		if err != nil {
			return fmt.Errorf("failed to build rag context for section %s: %w", sb.SectionID, err)
		}
		chunks[sb.SectionID] = rc
	}

	result, runErr := h.graph.Run(ctx, spec, job.Payload.CourseID, chunks)
	if runErr != nil {
		lesson.Status = models.LessonStatusFailed
		if err := h.lessons.Upsert(ctx, lesson); err != nil {
			h.logger.Error().Str("lesson_id", lessonID).Err(err).Msg("failed to mark lesson failed after graph error")
		}
		return runErr
	}

	if err := h.content.Upsert(ctx, result); err != nil {
		return fmt.Errorf("failed to persist lesson content for %s: %w", lessonID, err)
	}

	lesson.Status = result.Status
	if err := h.lessons.Upsert(ctx, lesson); err != nil {
		return fmt.Errorf("failed to persist lesson status for %s: %w", lessonID, err)
	}

	return h.maybeCompleteCourse(ctx, job.Payload.CourseID)
}

func terminalLessonStatus(s models.LessonStatus) bool {
	return s == models.LessonStatusCompleted || s == models.LessonStatusFailed || s == models.LessonStatusReviewRequired
}

// maybeCompleteCourse transitions the course to completed once every one of
// its lessons has reached a terminal status ( "the course
// completes when every lesson reaches a terminal state").
func (h *LessonContentHandler) maybeCompleteCourse(ctx context.Context, courseID string) error {
	lessons, err := h.lessons.ListByCourse(ctx, courseID)
	if err != nil {
		return fmt.Errorf("failed to list lessons for course %s: %w", courseID, err)
	}
	for _, l := range lessons {
		if !terminalLessonStatus(l.Status) {
			return nil
		}
	}

	course, err := h.courses.Get(ctx, courseID)
	if err != nil {
		return fmt.Errorf("failed to load course %s: %w", courseID, err)
	}
	if course.GenerationStatus == models.StatusGeneratingLessons {
		if err := h.fsm.Transition(ctx, courseID, models.StatusCompleted); err != nil && !pipeerr.Is(err, pipeerr.StateConflict) {
			return err
		}
	}
	return nil
}

// buildLessonSpec bridges S5's minimal LessonSpecSummary (materialized into
// Lesson.Metadata, since the lessons table has no richer per-section
// breakdown column) into the full LessonSpec contract C6 requires. Each
// topic becomes one section breakdown entry; this is a deliberate
// simplification recorded in DESIGN.md rather than inventing a dedicated S5b
// sub-stage.
func buildLessonSpec(lesson *models.Lesson, section *models.Section, course *models.Course) models.LessonSpec {
	description := ""
	var topics []string
	if lesson.Metadata != nil {
		if d, ok := lesson.Metadata["description"].(string); ok {
			description = d
		}
		topics = toStringSlice(lesson.Metadata["topics"])
	}

	tone, audience, depth := "neutral", "general learners", "intermediate"
	if course.AnalysisResult != nil {
		if course.AnalysisResult.Guidance.Tone != "" {
			tone = course.AnalysisResult.Guidance.Tone
		}
		if course.AnalysisResult.Guidance.Audience != "" {
			audience = course.AnalysisResult.Guidance.Audience
		}
		if course.AnalysisResult.Guidance.Depth != "" {
			depth = course.AnalysisResult.Guidance.Depth
		}
	}

	objectives := make([]models.LearningObjective, 0, len(lesson.Objectives))
	for _, o := range lesson.Objectives {
		objectives = append(objectives, models.LearningObjective{Statement: o, BloomLevel: "understand"})
	}

	breakdowns := make([]models.SectionBreakdown, 0, len(topics))
	if len(topics) == 0 {
		breakdowns = append(breakdowns, models.SectionBreakdown{
			SectionID:      "overview",
			Archetype:      "concept",
			Depth:          depth,
			KeyPoints:      []string{description},
			SearchQueries:  []string{lesson.Title},
			ExpectedChunks: defaultExpectedChunksPerSection,
		})
	}
	for i, topic := range topics {
		breakdowns = append(breakdowns, models.SectionBreakdown{
			SectionID:      fmt.Sprintf("topic-%d", i+1),
			Archetype:      "concept",
			Depth:          depth,
			KeyPoints:      []string{topic},
			SearchQueries:  []string{topic},
			ExpectedChunks: defaultExpectedChunksPerSection,
		})
	}

	return models.LessonSpec{
		LessonID: lesson.ID,
		Title:    lesson.Title,
		Language: course.Language,
		Metadata: models.LessonMetadata{
			Audience:  audience,
			Tone:      tone,
			Archetype: section.Title,
		},
		LearningObjectives: objectives,
		IntroBlueprint:     description,
		Sections:           breakdowns,
	}
}

var _ interfaces.StageHandler = (*LessonContentHandler)(nil)
