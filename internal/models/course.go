// Package models defines the entities exchanged between pipeline stages.
package models

import "time"

// GenerationStatus is the course FSM state.
type GenerationStatus string

const (
	StatusPending            GenerationStatus = "pending"
	StatusUploading          GenerationStatus = "uploading"
	StatusParsing            GenerationStatus = "parsing"
	StatusSummarizing        GenerationStatus = "summarizing"
	StatusAnalyzing          GenerationStatus = "analyzing"
	StatusStructuring        GenerationStatus = "structuring"
	StatusGeneratingLessons  GenerationStatus = "generating_lessons"
	StatusCompleted          GenerationStatus = "completed"
	StatusFailed             GenerationStatus = "failed"
)

// progressByStatus gives the monotone 0-100 progress mapping for each status.
var progressByStatus = map[GenerationStatus]int{
	StatusPending:           0,
	StatusUploading:         10,
	StatusParsing:           25,
	StatusSummarizing:       40,
	StatusAnalyzing:         55,
	StatusStructuring:       70,
	StatusGeneratingLessons: 85,
	StatusCompleted:         100,
}

// ProgressFor returns the canonical progress percentage for a status.
// Unknown/failed statuses return -1 meaning "keep the last known progress".
func ProgressFor(s GenerationStatus) int {
	if p, ok := progressByStatus[s]; ok {
		return p
	}
	return -1
}

// successor gives the one legal non-failure transition out of each state.
var successor = map[GenerationStatus]GenerationStatus{
	StatusPending:           StatusUploading,
	StatusUploading:         StatusParsing,
	StatusParsing:           StatusSummarizing,
	StatusSummarizing:       StatusAnalyzing,
	StatusAnalyzing:         StatusStructuring,
	StatusStructuring:       StatusGeneratingLessons,
	StatusGeneratingLessons: StatusCompleted,
}

// Successor returns the single legal successor status, or "" if s is terminal.
func Successor(s GenerationStatus) GenerationStatus {
	return successor[s]
}

// CanTransition reports whether from->to is a legal FSM transition:
// the declared successor, or the absorbing `failed` sink from any non-terminal state.
func CanTransition(from, to GenerationStatus) bool {
	if from == StatusCompleted || from == StatusFailed {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return successor[from] == to
}

// AnalysisResult is the strongly typed shape of S4's output (
// for typed schemas in place of opaque JSON blobs at stage boundaries).
type AnalysisResult struct {
	Category           string              `json:"category"`
	TopicAnalysis      string              `json:"topicAnalysis"`
	Guidance           GenerationGuidance  `json:"guidance"`
	DocumentRelevance  []DocumentRelevance `json:"documentRelevance"`
	ResearchFlags      []string            `json:"researchFlags"`
}

// GenerationGuidance carries tone/audience/depth guidance for downstream stages.
type GenerationGuidance struct {
	Tone     string `json:"tone"`
	Audience string `json:"audience"`
	Depth    string `json:"depth"`
}

// DocumentRelevance maps a source file to a projected course section.
type DocumentRelevance struct {
	FileID          string  `json:"fileId"`
	SectionHint     string  `json:"sectionHint"`
	RelevanceScore  float64 `json:"relevanceScore"`
}

// CourseStructure is S5's typed output: ordered sections of ordered lessons.
type CourseStructure struct {
	Sections []SectionSpec `json:"sections"`
}

// SectionSpec describes one section to be materialized into a Section row.
type SectionSpec struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	OrderIndex  int          `json:"orderIndex"`
	Lessons     []LessonSpecSummary `json:"lessons"`
}

// LessonSpecSummary is the minimal per-lesson shape S5 writes before S6 expands
// it into a full LessonSpec.
type LessonSpecSummary struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	OrderIndex         int      `json:"orderIndex"`
	LearningOutcomes   []string `json:"learningOutcomes"`
	Topics             []string `json:"topics"`
	DurationMinutes    int      `json:"durationMinutes"`
}

// Course is the top-level artifact. Created externally; the pipeline only
// ever transitions generation_status/progress and fills the two result blobs.
type Course struct {
	ID                 string           `json:"id"`
	OrganizationID     string           `json:"organizationId"`
	UserID             string           `json:"userId"`
	Title              string           `json:"title"`
	Language           string           `json:"language"`
	Style              string           `json:"style"`
	GenerationStatus   GenerationStatus `json:"generationStatus"`
	GenerationProgress int              `json:"generationProgress"`
	ErrorMessage       string           `json:"errorMessage,omitempty"`
	AnalysisResult     *AnalysisResult  `json:"analysisResult,omitempty"`
	CourseStructure    *CourseStructure `json:"courseStructure,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}
