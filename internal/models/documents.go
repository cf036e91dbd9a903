package models

import (
	"time"

	"github.com/bobmcallan/coursegen/internal/pipeerr"
)

// VectorStatus is the lifecycle of a File through S1/S2.
type VectorStatus string

const (
	VectorStatusPending  VectorStatus = "pending"
	VectorStatusIndexed  VectorStatus = "indexed"
	VectorStatusReady    VectorStatus = "ready"
	VectorStatusFailed   VectorStatus = "failed"
)

// File is a single source document uploaded to a course (S1 creates it,
// S2/S3 mutate it). It is terminal once VectorStatus is ready or failed.
type File struct {
	ID               string       `json:"id"`
	CourseID         string       `json:"courseId"`
	OrganizationID   string       `json:"organizationId"`
	Filename         string       `json:"filename"`
	MimeType         string       `json:"mimeType"`
	FileSize         int64        `json:"fileSize"`
	StoragePath      string       `json:"storagePath"`
	Hash             string       `json:"hash"`
	VectorStatus     VectorStatus `json:"vectorStatus"`
	MarkdownContent  string       `json:"markdownContent,omitempty"`
	ProcessedContent string       `json:"processedContent,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Eligible reports whether this file can be handed to S3 summarization:
// it must have survived S2 and carry non-empty markdown (
// invariant 3).
func (f *File) Eligible() bool {
	return f.VectorStatus != VectorStatusFailed && f.MarkdownContent != ""
}

// Section is an ordered child of a course, created by S5 from CourseStructure.
type Section struct {
	ID          string         `json:"id"`
	CourseID    string         `json:"courseId"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	OrderIndex  int            `json:"orderIndex"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// LessonStatus mirrors lesson_contents.status.
type LessonStatus string

const (
	LessonStatusPending         LessonStatus = "pending"
	LessonStatusGenerating      LessonStatus = "generating"
	LessonStatusCompleted       LessonStatus = "completed"
	LessonStatusFailed          LessonStatus = "failed"
	LessonStatusReviewRequired  LessonStatus = "review_required"
)

// Lesson is an ordered child of a Section, created by S5.
type Lesson struct {
	ID              string         `json:"id"`
	SectionID       string         `json:"sectionId"`
	Title           string         `json:"title"`
	OrderIndex      int            `json:"orderIndex"`
	DurationMinutes int            `json:"durationMinutes,omitempty"`
	LessonType      string         `json:"lessonType"`
	Status          LessonStatus   `json:"status"`
	Objectives      []string       `json:"objectives,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Validate enforces the schema invariants in a lesson row.
func (l *Lesson) Validate() error {
	if l.OrderIndex <= 0 {
		return pipeerr.NewValidationError("lesson order_index must be positive")
	}
	if l.DurationMinutes < 0 {
		return pipeerr.NewValidationError("lesson duration_minutes must be non-negative")
	}
	return nil
}

// RenderedSection is one titled body within a finished lesson.
type RenderedSection struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Exercise is a single practice item attached to a finished lesson.
type Exercise struct {
	Prompt string   `json:"prompt"`
	Kind   string   `json:"kind"`
	Choices []string `json:"choices,omitempty"`
	Answer string   `json:"answer,omitempty"`
}

// LessonContent is the one-to-one finished-content row for a Lesson.
type LessonContent struct {
	LessonID  string            `json:"lessonId"`
	CourseID  string            `json:"courseId"`
	Status    LessonStatus      `json:"status"`
	Intro     string            `json:"intro"`
	Sections  []RenderedSection `json:"sections"`
	Exercises []Exercise        `json:"exercises,omitempty"`
	Metrics   Metrics           `json:"metrics"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// RAGChunk is a document chunk retrieved for a lesson section.
type RAGChunk struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	Page     int     `json:"page,omitempty"`
	SectionID string `json:"sectionId,omitempty"`
}

// SectionBreakdown is one entry in a LessonSpec's ordered section plan.
type SectionBreakdown struct {
	SectionID          string   `json:"sectionId"`
	Archetype          string   `json:"archetype"`
	Depth              string   `json:"depth"`
	RequiredKeywords   []string `json:"requiredKeywords,omitempty"`
	ProhibitedKeywords []string `json:"prohibitedKeywords,omitempty"`
	KeyPoints          []string `json:"keyPoints,omitempty"`
	RAGContextID       string   `json:"ragContextId,omitempty"`
	// SearchQueries, if non-empty, triggers C5's secondary vector-store query
	// for this section.
	SearchQueries  []string `json:"searchQueries,omitempty"`
	ExpectedChunks int      `json:"expectedChunks,omitempty"`
}

// LearningObjective pairs an objective statement with its Bloom level.
type LearningObjective struct {
	Statement  string `json:"statement"`
	BloomLevel string `json:"bloomLevel"`
}

// LessonMetadata carries audience/tone/compliance guidance for S6 generation.
type LessonMetadata struct {
	Audience        string `json:"audience"`
	Tone            string `json:"tone"`
	ComplianceLevel string `json:"complianceLevel"`
	Archetype       string `json:"archetype"`
}

// LessonSpec is the immutable input contract to S6.
type LessonSpec struct {
	LessonID           string              `json:"lessonId"`
	Title              string              `json:"title"`
	Language           string              `json:"language"`
	Metadata           LessonMetadata      `json:"metadata"`
	LearningObjectives []LearningObjective `json:"learningObjectives"`
	IntroBlueprint     string              `json:"introBlueprint"`
	Sections           []SectionBreakdown  `json:"sections"`
	Exercises          []Exercise          `json:"exercises,omitempty"`
	RAGContextID       string              `json:"ragContextId,omitempty"`
}
