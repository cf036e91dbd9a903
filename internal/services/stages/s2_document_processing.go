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
	"github.com/google/uuid"
)

// DocumentProcessingHandler implements S2. A file failing
// this stage does not fail the course — it is marked vector_status=failed
// and S3 skips it.
type DocumentProcessingHandler struct {
	files   interfaces.FileCatalogStore
	courses interfaces.CourseStore
	fsm     interfaces.CourseFSM
	parser  interfaces.DocParserClient
	vectors interfaces.VectorStoreClient
	queue   *jobqueue.Manager
	logger  *common.Logger
}

func NewDocumentProcessingHandler(files interfaces.FileCatalogStore, courses interfaces.CourseStore, fsm interfaces.CourseFSM, parser interfaces.DocParserClient, vectors interfaces.VectorStoreClient, queue *jobqueue.Manager, logger *common.Logger) *DocumentProcessingHandler {
	return &DocumentProcessingHandler{files: files, courses: courses, fsm: fsm, parser: parser, vectors: vectors, queue: queue, logger: logger}
}

func (h *DocumentProcessingHandler) JobType() models.JobType { return models.JobTypeDocumentProcessing }

func (h *DocumentProcessingHandler) Handle(ctx context.Context, job *models.Job) error {
	fields := job.Payload.Fields
	fileID, err := fieldString(fields, "fileId")
	if err != nil {
		return err
	}

	file, err := h.files.Get(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to load file %s: %w", fileID, err)
	}
	if file.VectorStatus == models.VectorStatusReady || file.VectorStatus == models.VectorStatusFailed {
		h.logger.Debug().Str("file_id", fileID).Str("vector_status", string(file.VectorStatus)).Msg("document processing already terminal, skipping")
		return h.maybeEnqueueSummarization(ctx, job.Payload)
	}

	filePath := fieldStringOptional(fields, "filePath")
	mimeType := fieldStringOptional(fields, "mimeType")
	if mimeType == "" {
		mimeType = file.MimeType
	}

	parsed, parseErr := h.parser.Parse(ctx, filePath, mimeType)
	if parseErr != nil {
		file.VectorStatus = models.VectorStatusFailed
		file.UpdatedAt = time.Now()
		if err := h.files.Upsert(ctx, file); err != nil {
			return fmt.Errorf("failed to record parse failure for file %s: %w", fileID, err)
		}
		h.logger.Warn().Str("file_id", fileID).Err(parseErr).Msg("document processing failed, marking file failed (non-fatal to course)")
		return h.maybeEnqueueSummarization(ctx, job.Payload)
	}

	chunkSize := fieldInt(fields, "chunkSize")
	chunkOverlap := fieldInt(fields, "chunkOverlap")
	chunks := chunkMarkdown(parsed.MarkdownContent, chunkSize, chunkOverlap)

	ragChunks := make([]models.RAGChunk, 0, len(chunks))
	for _, c := range chunks {
		ragChunks = append(ragChunks, models.RAGChunk{
			ID:      fmt.Sprintf("%s-%s", fileID, uuid.NewString()),
			Content: c,
			Score:   0,
		})
	}
	if err := h.vectors.UpsertChunks(ctx, fileID, ragChunks); err != nil {
		return pipeerr.New(pipeerr.NetTransient, fmt.Sprintf("failed to upsert vector chunks for file %s", fileID), err)
	}

	file.MarkdownContent = parsed.MarkdownContent
	file.VectorStatus = models.VectorStatusReady
	file.UpdatedAt = time.Now()
	if err := h.files.Upsert(ctx, file); err != nil {
		return fmt.Errorf("failed to persist processed file %s: %w", fileID, err)
	}

	course, err := h.courses.Get(ctx, job.Payload.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load course %s: %w", job.Payload.CourseID, err)
	}
	if course.GenerationStatus == models.StatusUploading {
		if err := h.fsm.Transition(ctx, job.Payload.CourseID, models.StatusParsing); err != nil && !pipeerr.Is(err, pipeerr.StateConflict) {
			return err
		}
	}

	return h.maybeEnqueueSummarization(ctx, job.Payload)
}

// maybeEnqueueSummarization enqueues S3 once every file belonging to the
// course has reached a terminal vector_status ( "terminates
// when every eligible file has processed_content" implies S3 only starts
// once S2 is done for all files).
func (h *DocumentProcessingHandler) maybeEnqueueSummarization(ctx context.Context, payload models.JobPayload) error {
	files, err := h.files.ListByCourse(ctx, payload.CourseID)
	if err != nil {
		return fmt.Errorf("failed to list files for course %s: %w", payload.CourseID, err)
	}
	for _, f := range files {
		if f.VectorStatus != models.VectorStatusReady && f.VectorStatus != models.VectorStatusFailed {
			return nil
		}
	}

	allFailed := true
	for _, f := range files {
		if f.VectorStatus == models.VectorStatusReady {
			allFailed = false
			break
		}
	}
	if allFailed && len(files) > 0 {
		h.logger.Warn().Str("course_id", payload.CourseID).Msg("every file failed document processing")
	}

	return h.queue.EnqueueIfNeeded(ctx, models.JobTypeSummarization, payload.CourseID, models.JobPayload{
		JobType:        models.JobTypeSummarization,
		OrganizationID: payload.OrganizationID,
		CourseID:       payload.CourseID,
		UserID:         payload.UserID,
		CreatedAt:      time.Now(),
	}, models.DefaultStagePriority)
}

var _ interfaces.StageHandler = (*DocumentProcessingHandler)(nil)
