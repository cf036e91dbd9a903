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

// tierSizeLimits caps upload size by course style/tier; styles not listed
// fall back to the default limit ( "validates mime/size
// against tier limits").
var tierSizeLimits = map[string]int64{
	"premium": 200 * 1024 * 1024,
}

const defaultMaxUploadBytes = 50 * 1024 * 1024

var allowedUploadMimeTypes = map[string]bool{
	"application/pdf": true,
	"text/markdown":   true,
	"text/plain":      true,
	"text/html":       true,
}

// DocumentUploadHandler implements S1.
type DocumentUploadHandler struct {
	files   interfaces.FileCatalogStore
	courses interfaces.CourseStore
	fsm     interfaces.CourseFSM
	queue   *jobqueue.Manager
	logger  *common.Logger
}

func NewDocumentUploadHandler(files interfaces.FileCatalogStore, courses interfaces.CourseStore, fsm interfaces.CourseFSM, queue *jobqueue.Manager, logger *common.Logger) *DocumentUploadHandler {
	return &DocumentUploadHandler{files: files, courses: courses, fsm: fsm, queue: queue, logger: logger}
}

func (h *DocumentUploadHandler) JobType() models.JobType { return models.JobTypeDocumentUpload }

// Handle validates and persists the uploaded file's catalog row, then
// advances the course to uploading (idempotently: a course already past
// pending is left alone) and enqueues S2 for this file.
func (h *DocumentUploadHandler) Handle(ctx context.Context, job *models.Job) error {
	fields := job.Payload.Fields
	fileID, err := fieldString(fields, "fileId")
	if err != nil {
		return err
	}
	filename, err := fieldString(fields, "filename")
	if err != nil {
		return err
	}
	mimeType, err := fieldString(fields, "mimeType")
	if err != nil {
		return err
	}
	storagePath := fieldStringOptional(fields, "storagePath")
	sizeBytes := int64(fieldInt(fields, "sizeBytes"))

	existing, err := h.files.Get(ctx, fileID)
	if err != nil && !pipeerr.Is(err, pipeerr.ValidationError) {
		return fmt.Errorf("failed to check existing file %s: %w", fileID, err)
	}
	if existing != nil && existing.VectorStatus != "" {
		h.logger.Debug().Str("file_id", fileID).Msg("document upload already processed, skipping")
		return nil
	}

	if !allowedUploadMimeTypes[mimeType] {
		return pipeerr.NewValidationError(fmt.Sprintf("mime type %q is not accepted for upload", mimeType))
	}
	limit := int64(defaultMaxUploadBytes)
	if tierLimit, ok := tierSizeLimits[fieldStringOptional(fields, "tier")]; ok {
		limit = tierLimit
	}
	if sizeBytes > limit {
		return pipeerr.NewValidationError(fmt.Sprintf("file %s exceeds size limit of %d bytes", filename, limit))
	}

	file := &models.File{
		ID:             fileID,
		CourseID:       job.Payload.CourseID,
		OrganizationID: job.Payload.OrganizationID,
		Filename:       filename,
		MimeType:       mimeType,
		FileSize:       sizeBytes,
		StoragePath:    storagePath,
		VectorStatus:   models.VectorStatusPending,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := h.files.Upsert(ctx, file); err != nil {
		return fmt.Errorf("failed to persist file catalog row for %s: %w", fileID, err)
	}

	course, err := h.courses.Get(ctx, job.Payload.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load course %s: %w", job.Payload.CourseID, err)
	}
	if course.GenerationStatus == models.StatusPending {
		if err := h.fsm.Transition(ctx, job.Payload.CourseID, models.StatusUploading); err != nil && !pipeerr.Is(err, pipeerr.StateConflict) {
			return err
		}
	}

	if err := h.queue.EnqueueIfNeeded(ctx, models.JobTypeDocumentProcessing, job.Payload.CourseID, models.JobPayload{
		JobType:        models.JobTypeDocumentProcessing,
		OrganizationID: job.Payload.OrganizationID,
		CourseID:       job.Payload.CourseID,
		UserID:         job.Payload.UserID,
		CreatedAt:      time.Now(),
		Fields: map[string]any{
			"fileId":       fileID,
			"filePath":     storagePath,
			"mimeType":     mimeType,
			"chunkSize":    fieldInt(fields, "chunkSize"),
			"chunkOverlap": fieldInt(fields, "chunkOverlap"),
		},
	}, models.DefaultStagePriority); err != nil {
		return fmt.Errorf("failed to enqueue document processing for file %s: %w", fileID, err)
	}

	return nil
}

var _ interfaces.StageHandler = (*DocumentUploadHandler)(nil)
