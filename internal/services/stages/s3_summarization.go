package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
	"github.com/bobmcallan/coursegen/internal/services/jobqueue"
)

const summarizeMaxContentChars = 20000

// SummarizationHandler implements S3: produces a compact
// processed_content for every eligible file, skipping files S2 failed.
type SummarizationHandler struct {
	files   interfaces.FileCatalogStore
	courses interfaces.CourseStore
	fsm     interfaces.CourseFSM
	llm     interfaces.LLMGatewayClient
	queue   *jobqueue.Manager
	logger  *common.Logger
}

func NewSummarizationHandler(files interfaces.FileCatalogStore, courses interfaces.CourseStore, fsm interfaces.CourseFSM, llm interfaces.LLMGatewayClient, queue *jobqueue.Manager, logger *common.Logger) *SummarizationHandler {
	return &SummarizationHandler{files: files, courses: courses, fsm: fsm, llm: llm, queue: queue, logger: logger}
}

func (h *SummarizationHandler) JobType() models.JobType { return models.JobTypeSummarization }

// failCourse drives the course straight to failed when every source file
// is unusable: no amount of job retrying recovers from that, so the course
// shouldn't sit in summarizing until the job exhausts its max attempts.
// A STATE_CONFLICT here just means another job already failed the course.
func (h *SummarizationHandler) failCourse(ctx context.Context, courseID, msg string) {
	if err := h.fsm.Fail(ctx, courseID, msg); err != nil && !pipeerr.Is(err, pipeerr.StateConflict) {
		h.logger.Error().Str("course_id", courseID).Err(err).Msg("failed to transition course to failed")
	}
}

func (h *SummarizationHandler) Handle(ctx context.Context, job *models.Job) error {
	course, err := h.courses.Get(ctx, job.Payload.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load course %s: %w", job.Payload.CourseID, err)
	}
	if course.GenerationStatus == models.StatusUploading || course.GenerationStatus == models.StatusParsing {
		if err := h.fsm.Transition(ctx, job.Payload.CourseID, models.StatusSummarizing); err != nil && !pipeerr.Is(err, pipeerr.StateConflict) {
			return err
		}
	} else if course.GenerationStatus != models.StatusSummarizing && course.GenerationStatus != models.StatusAnalyzing {
		h.logger.Debug().Str("course_id", job.Payload.CourseID).Str("status", string(course.GenerationStatus)).Msg("summarization already past, skipping")
		return nil
	}

	files, err := h.files.ListByCourse(ctx, job.Payload.CourseID)
	if err != nil {
		return fmt.Errorf("failed to list files for course %s: %w", job.Payload.CourseID, err)
	}

	eligible := 0
	summarized := 0
	for _, f := range files {
		if !f.Eligible() {
			continue
		}
		eligible++
		if f.ProcessedContent != "" {
			summarized++
			continue
		}

		content := f.MarkdownContent
		if len(content) > summarizeMaxContentChars {
			content = content[:summarizeMaxContentChars]
		}
		resp, err := h.llm.Complete(ctx, interfaces.CompletionRequest{
			SystemPrompt: "You condense source material into a compact, faithful summary for downstream course planning. Do not add facts not present in the source.",
			UserPrompt:   fmt.Sprintf("Summarize the following document in 3-6 short paragraphs, preserving key facts and terminology:\n\n%s", content),
			Temperature:  0.2,
			MaxTokens:    1200,
			CourseID:     job.Payload.CourseID,
		})
		if err != nil {
			h.logger.Warn().Str("file_id", f.ID).Err(err).Msg("summarization failed for file (non-fatal)")
			continue
		}

		f.ProcessedContent = resp.Text
		f.UpdatedAt = time.Now()
		if err := h.files.Upsert(ctx, f); err != nil {
			return fmt.Errorf("failed to persist summary for file %s: %w", f.ID, err)
		}
		summarized++
	}

	if eligible == 0 {
		msg := fmt.Sprintf("course %s has no eligible files to summarize", job.Payload.CourseID)
		h.failCourse(ctx, job.Payload.CourseID, msg)
		return pipeerr.New(pipeerr.UpstreamError, msg, nil)
	}
	if summarized == 0 {
		msg := fmt.Sprintf("course %s: summarization failed for every eligible file", job.Payload.CourseID)
		h.failCourse(ctx, job.Payload.CourseID, msg)
		return pipeerr.New(pipeerr.UpstreamError, msg, nil)
	}
	if summarized < eligible {
		return h.queue.EnqueueIfNeeded(ctx, models.JobTypeSummarization, job.Payload.CourseID, job.Payload, models.DefaultStagePriority)
	}

	return h.queue.EnqueueIfNeeded(ctx, models.JobTypeStructureAnalysis, job.Payload.CourseID, models.JobPayload{
		JobType:        models.JobTypeStructureAnalysis,
		OrganizationID: job.Payload.OrganizationID,
		CourseID:       job.Payload.CourseID,
		UserID:         job.Payload.UserID,
		CreatedAt:      time.Now(),
	}, models.DefaultStagePriority)
}

var _ interfaces.StageHandler = (*SummarizationHandler)(nil)
