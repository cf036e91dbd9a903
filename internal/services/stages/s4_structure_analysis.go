package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
	"github.com/bobmcallan/coursegen/internal/services/jobqueue"
)

const analysisJSONSchemaHint = `{"category":"string","topicAnalysis":"string","guidance":{"tone":"string","audience":"string","depth":"string"},"documentRelevance":[{"fileId":"string","sectionHint":"string","relevanceScore":0.0}],"researchFlags":["string"]}`

// StructureAnalysisHandler implements S4.
type StructureAnalysisHandler struct {
	files   interfaces.FileCatalogStore
	courses interfaces.CourseStore
	fsm     interfaces.CourseFSM
	llm     interfaces.LLMGatewayClient
	queue   *jobqueue.Manager
	logger  *common.Logger
}

func NewStructureAnalysisHandler(files interfaces.FileCatalogStore, courses interfaces.CourseStore, fsm interfaces.CourseFSM, llm interfaces.LLMGatewayClient, queue *jobqueue.Manager, logger *common.Logger) *StructureAnalysisHandler {
	return &StructureAnalysisHandler{files: files, courses: courses, fsm: fsm, llm: llm, queue: queue, logger: logger}
}

func (h *StructureAnalysisHandler) JobType() models.JobType { return models.JobTypeStructureAnalysis }

func (h *StructureAnalysisHandler) Handle(ctx context.Context, job *models.Job) error {
	course, err := h.courses.Get(ctx, job.Payload.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load course %s: %w", job.Payload.CourseID, err)
	}
	if course.AnalysisResult != nil {
		h.logger.Debug().Str("course_id", job.Payload.CourseID).Msg("structure analysis already complete, skipping")
		return h.queue.EnqueueIfNeeded(ctx, models.JobTypeStructureGeneration, job.Payload.CourseID, structureGenerationPayload(job.Payload), models.DefaultStagePriority)
	}

	if course.GenerationStatus == models.StatusSummarizing {
		if err := h.fsm.Transition(ctx, job.Payload.CourseID, models.StatusAnalyzing); err != nil && !pipeerr.Is(err, pipeerr.StateConflict) {
			return err
		}
	}

	files, err := h.files.ListByCourse(ctx, job.Payload.CourseID)
	if err != nil {
		return fmt.Errorf("failed to list files for course %s: %w", job.Payload.CourseID, err)
	}

	var sb strings.Builder
	for _, f := range files {
		if f.ProcessedContent == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("File %s (%s):\n%s\n\n", f.ID, f.Filename, f.ProcessedContent))
	}

	resp, err := h.llm.Complete(ctx, interfaces.CompletionRequest{
		SystemPrompt: "You analyze source material to plan a course. Respond with JSON only, matching the schema given, no prose.",
		UserPrompt: fmt.Sprintf(
			"Course title: %s\nLanguage: %s\nStyle: %s\n\nDocument summaries:\n%s\n\nSchema:\n%s",
			course.Title, course.Language, course.Style, sb.String(), analysisJSONSchemaHint),
		Temperature:    0.3,
		MaxTokens:      2000,
		JSONSchemaHint: analysisJSONSchemaHint,
		CourseID:       job.Payload.CourseID,
	})
	if err != nil {
		return err
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &result); err != nil {
		return pipeerr.New(pipeerr.DecodingError, "structure analysis response was not valid JSON", err)
	}

	if err := h.courses.SaveAnalysisResult(ctx, job.Payload.CourseID, &result); err != nil {
		return fmt.Errorf("failed to save analysis result for course %s: %w", job.Payload.CourseID, err)
	}

	return h.queue.EnqueueIfNeeded(ctx, models.JobTypeStructureGeneration, job.Payload.CourseID, structureGenerationPayload(job.Payload), models.DefaultStagePriority)
}

func structureGenerationPayload(payload models.JobPayload) models.JobPayload {
	return models.JobPayload{
		JobType:        models.JobTypeStructureGeneration,
		OrganizationID: payload.OrganizationID,
		CourseID:       payload.CourseID,
		UserID:         payload.UserID,
		CreatedAt:      time.Now(),
	}
}

// extractJSON strips a leading/trailing markdown code fence some models
// wrap JSON responses in despite being asked for JSON only.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var _ interfaces.StageHandler = (*StructureAnalysisHandler)(nil)
