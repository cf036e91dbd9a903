package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
	"github.com/bobmcallan/coursegen/internal/services/jobqueue"
	"github.com/google/uuid"
)

const structureJSONSchemaHint = `{"sections":[{"title":"string","description":"string","orderIndex":1,"lessons":[{"title":"string","description":"string","orderIndex":1,"learningOutcomes":["string"],"topics":["string"],"durationMinutes":10}]}]}`

// StructureGenerationHandler implements S5.
type StructureGenerationHandler struct {
	courses  interfaces.CourseStore
	sections interfaces.SectionStore
	lessons  interfaces.LessonStore
	fsm      interfaces.CourseFSM
	llm      interfaces.LLMGatewayClient
	queue    *jobqueue.Manager
	logger   *common.Logger
}

func NewStructureGenerationHandler(courses interfaces.CourseStore, sections interfaces.SectionStore, lessons interfaces.LessonStore, fsm interfaces.CourseFSM, llm interfaces.LLMGatewayClient, queue *jobqueue.Manager, logger *common.Logger) *StructureGenerationHandler {
	return &StructureGenerationHandler{courses: courses, sections: sections, lessons: lessons, fsm: fsm, llm: llm, queue: queue, logger: logger}
}

func (h *StructureGenerationHandler) JobType() models.JobType { return models.JobTypeStructureGeneration }

func (h *StructureGenerationHandler) Handle(ctx context.Context, job *models.Job) error {
	course, err := h.courses.Get(ctx, job.Payload.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load course %s: %w", job.Payload.CourseID, err)
	}

	if course.CourseStructure != nil {
		h.logger.Debug().Str("course_id", job.Payload.CourseID).Msg("structure generation already complete, skipping")
		return h.enqueueLessonJobs(ctx, job.Payload)
	}
	if course.AnalysisResult == nil {
		return pipeerr.NewStateConflict(fmt.Sprintf("course %s has no analysis result to generate structure from", job.Payload.CourseID))
	}

	if course.GenerationStatus == models.StatusAnalyzing {
		if err := h.fsm.Transition(ctx, job.Payload.CourseID, models.StatusStructuring); err != nil && !pipeerr.Is(err, pipeerr.StateConflict) {
			return err
		}
	}

	analysisJSON, _ := json.Marshal(course.AnalysisResult)
	resp, err := h.llm.Complete(ctx, interfaces.CompletionRequest{
		SystemPrompt: "You expand a course analysis into a concrete, ordered course structure. Respond with JSON only, matching the schema given, no prose.",
		UserPrompt: fmt.Sprintf(
			"Course title: %s\nLanguage: %s\n\nAnalysis:\n%s\n\nSchema:\n%s",
			course.Title, course.Language, string(analysisJSON), structureJSONSchemaHint),
		Temperature:    0.4,
		MaxTokens:      4000,
		JSONSchemaHint: structureJSONSchemaHint,
		CourseID:       job.Payload.CourseID,
	})
	if err != nil {
		return err
	}

	var structure models.CourseStructure
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &structure); err != nil {
		return pipeerr.New(pipeerr.DecodingError, "structure generation response was not valid JSON", err)
	}
	if len(structure.Sections) == 0 {
		return pipeerr.New(pipeerr.DecodingError, "structure generation produced zero sections", nil)
	}

	if err := h.courses.SaveCourseStructure(ctx, job.Payload.CourseID, &structure); err != nil {
		return fmt.Errorf("failed to save course structure for course %s: %w", job.Payload.CourseID, err)
	}

	if err := h.materialize(ctx, job.Payload.CourseID, structure); err != nil {
		return err
	}

	if course.GenerationStatus == models.StatusStructuring || course.GenerationStatus == models.StatusAnalyzing {
		if err := h.fsm.Transition(ctx, job.Payload.CourseID, models.StatusGeneratingLessons); err != nil && !pipeerr.Is(err, pipeerr.StateConflict) {
			return err
		}
	}

	return h.enqueueLessonJobs(ctx, job.Payload)
}

// materialize writes Section and Lesson rows from the typed structure,
// stashing each lesson's description/topics/outcomes into Lesson.Metadata
// since models.Lesson carries only objectives, not the richer
// LessonSpecSummary shape S6 needs to build a full LessonSpec (
// S5/S6 boundary; see DESIGN.md open-question note).
func (h *StructureGenerationHandler) materialize(ctx context.Context, courseID string, structure models.CourseStructure) error {
	for _, sectionSpec := range structure.Sections {
		section := &models.Section{
			ID:          uuid.NewString(),
			CourseID:    courseID,
			Title:       sectionSpec.Title,
			Description: sectionSpec.Description,
			OrderIndex:  sectionSpec.OrderIndex,
		}
		if err := h.sections.Upsert(ctx, section); err != nil {
			return fmt.Errorf("failed to persist section %q: %w", sectionSpec.Title, err)
		}

		for _, lessonSpec := range sectionSpec.Lessons {
			lesson := &models.Lesson{
				ID:              uuid.NewString(),
				SectionID:       section.ID,
				Title:           lessonSpec.Title,
				OrderIndex:      lessonSpec.OrderIndex,
				DurationMinutes: lessonSpec.DurationMinutes,
				LessonType:      "standard",
				Status:          models.LessonStatusPending,
				Objectives:      lessonSpec.LearningOutcomes,
				Metadata: map[string]any{
					"description": lessonSpec.Description,
					"topics":      lessonSpec.Topics,
				},
			}
			if err := lesson.Validate(); err != nil {
				return fmt.Errorf("invalid lesson %q: %w", lessonSpec.Title, err)
			}
			if err := h.lessons.Upsert(ctx, lesson); err != nil {
				return fmt.Errorf("failed to persist lesson %q: %w", lessonSpec.Title, err)
			}
		}
	}
	return nil
}

// enqueueLessonJobs fans out one LESSON_CONTENT job per lesson row
// materialized for the course ( "enqueues one S6 job per
// lesson"). JobQueueStore.HasPendingJob dedups at (jobType, courseId)
// granularity, not per lesson, so EnqueueIfNeeded can't be used here without
// silently dropping every lesson after the first; instead this enqueues
// directly and relies on S6's own idempotency guard (LessonContent status)
// to make a re-run of this handler safe.
func (h *StructureGenerationHandler) enqueueLessonJobs(ctx context.Context, payload models.JobPayload) error {
	lessons, err := h.lessons.ListByCourse(ctx, payload.CourseID)
	if err != nil {
		return fmt.Errorf("failed to list lessons for course %s: %w", payload.CourseID, err)
	}
	for _, l := range lessons {
		if l.Status == models.LessonStatusCompleted || l.Status == models.LessonStatusReviewRequired || l.Status == models.LessonStatusFailed {
			continue
		}
		if err := h.queue.Enqueue(ctx, &models.Job{
			Type:     models.JobTypeLessonContent,
			Priority: models.DefaultStagePriority,
			Status:   models.JobStatusWaiting,
			Payload: models.JobPayload{
				JobType:        models.JobTypeLessonContent,
				OrganizationID: payload.OrganizationID,
				CourseID:       payload.CourseID,
				UserID:         payload.UserID,
				CreatedAt:      time.Now(),
				Fields:         map[string]any{"lessonId": l.ID},
			},
		}); err != nil {
			return fmt.Errorf("failed to enqueue lesson content job for lesson %s: %w", l.ID, err)
		}
	}
	return nil
}

var _ interfaces.StageHandler = (*StructureGenerationHandler)(nil)
