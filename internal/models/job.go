package models

import "time"

// JobType is one of the six wire-stable job type names.
type JobType string

const (
	JobTypeDocumentUpload    JobType = "DOCUMENT_UPLOAD"
	JobTypeDocumentProcessing JobType = "DOCUMENT_PROCESSING"
	JobTypeSummarization     JobType = "SUMMARIZATION"
	JobTypeStructureAnalysis JobType = "STRUCTURE_ANALYSIS"
	JobTypeStructureGeneration JobType = "STRUCTURE_GENERATION"
	JobTypeLessonContent     JobType = "LESSON_CONTENT"
)

// DefaultMaxAttempts per job type, used when a job is enqueued without an
// explicit override.
var DefaultMaxAttempts = map[JobType]int{
	JobTypeDocumentUpload:      3,
	JobTypeDocumentProcessing:  3,
	JobTypeSummarization:       3,
	JobTypeStructureAnalysis:   3,
	JobTypeStructureGeneration: 3,
	JobTypeLessonContent:       2,
}

// JobStatus is the queue-owned lifecycle of a Job.
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusDelayed   JobStatus = "delayed"
	JobStatusPaused    JobStatus = "paused"
)

// DefaultStagePriority is used when a caller doesn't specify one.
const DefaultStagePriority = 10

// Job is the queue's unit of work. Payload is a
// self-describing record: {jobType, organizationId, courseId, userId,
// createdAt, ...typeSpecificFields} encoded as JSON.
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Payload     JobPayload      `json:"payload"`
	Priority    int             `json:"priority"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"maxAttempts"`
	Status      JobStatus       `json:"status"`
	Error       string          `json:"error,omitempty"`
	RunAfter    time.Time       `json:"runAfter"`
	LeaseOwner  string          `json:"leaseOwner,omitempty"`
	LeaseExpiry time.Time       `json:"leaseExpiry,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CompletedAt time.Time       `json:"completedAt,omitempty"`
}

// JobPayload is the self-describing record carried by every job.
// Type-specific fields are additive JSON keys layered on top of the common
// envelope; stage handlers decode the fields their job type defines.
type JobPayload struct {
	JobType        JobType        `json:"jobType"`
	OrganizationID string         `json:"organizationId"`
	CourseID       string         `json:"courseId"`
	UserID         string         `json:"userId"`
	CreatedAt      time.Time      `json:"createdAt"`
	Fields         map[string]any `json:"fields,omitempty"`
}

// JobStatusRow is the auxiliary persistent projection, allowing callers to
// observe progress without consulting the queue directly.
type JobStatusRow struct {
	ID           string    `json:"id"`
	CourseID     string    `json:"courseId"`
	JobType      JobType   `json:"jobType"`
	State        JobStatus `json:"state"`
	Attempt      int       `json:"attempt"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Severity is shared by TargetedIssue and SectionRefinementTask priority.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// severityRank gives a total order for sorting (critical first).
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityMajor:    1,
	SeverityMinor:    2,
}

// Rank returns a sortable ordinal, lower is more urgent.
func (s Severity) Rank() int { return severityRank[s] }

// Criterion is a member of the closed judge-criteria set.
type Criterion string

const (
	CriterionPedagogicalStructure      Criterion = "pedagogical_structure"
	CriterionFactualAccuracy          Criterion = "factual_accuracy"
	CriterionClarityReadability       Criterion = "clarity_readability"
	CriterionCompleteness             Criterion = "completeness"
	CriterionLearningObjectiveAlign   Criterion = "learning_objective_alignment"
	CriterionEngagementExamples       Criterion = "engagement_examples"
)

// FixAction is the remediation action attached to a TargetedIssue.
type FixAction string

const (
	FixActionSurgicalEdit      FixAction = "SURGICAL_EDIT"
	FixActionRegenerateSection FixAction = "REGENERATE_SECTION"
	FixActionFullRegenerate    FixAction = "FULL_REGENERATE"
)

// ContextWindow anchors a TargetedIssue to a quoted span of content.
type ContextWindow struct {
	Scope      string `json:"scope"`
	StartQuote string `json:"startQuote"`
	EndQuote   string `json:"endQuote"`
}

// TargetedIssue is a single, located, classified deficiency produced by the
// Judge.
type TargetedIssue struct {
	ID              string        `json:"id"`
	Criterion       Criterion     `json:"criterion"`
	Severity        Severity      `json:"severity"`
	Location        string        `json:"location"`
	Description     string        `json:"description"`
	SuggestedFix    string        `json:"suggestedFix"`
	TargetSectionID string        `json:"targetSectionId"`
	FixAction       FixAction     `json:"fixAction"`
	Context         ContextWindow `json:"context"`
	FixInstructions string        `json:"fixInstructions"`
}

// SectionRefinementTask targets one section and groups its source issues
// for a single refinement pass.
type SectionRefinementTask struct {
	ID               string          `json:"id"`
	SectionID        string          `json:"sectionId"`
	SourceIssues     []TargetedIssue `json:"sourceIssues"`
	Priority         Severity        `json:"priority"`
	PrevSectionTail  string          `json:"prevSectionTail,omitempty"`
	NextSectionHead  string          `json:"nextSectionHead,omitempty"`
}

// Executor is one of the three behavioral contracts an issue can route to.
type Executor string

const (
	ExecutorPatcher         Executor = "patcher"
	ExecutorSectionExpander Executor = "section-expander"
	ExecutorPlanner         Executor = "planner"
)

// RouterDecision is the Router's deterministic output for one task.
type RouterDecision struct {
	Task            SectionRefinementTask `json:"task"`
	Action          FixAction             `json:"action"`
	Executor        Executor              `json:"executor"`
	EstimatedTokens int                   `json:"estimatedTokens"`
	Reason          string                `json:"reason"`
}

// Metrics are the monotonic per-job counters tracking cost and quality.
type Metrics struct {
	TokensUsed          int     `json:"tokensUsed"`
	CostUsd             float64 `json:"costUsd"`
	DurationMs          int64   `json:"durationMs"`
	ModelUsed           string  `json:"modelUsed"`
	RegenerationAttempts int    `json:"regenerationAttempts"`
	QualityScore        float64 `json:"qualityScore"`
}

// NodeCost records one LLM call or Stage 6 node's contribution to Metrics.
type NodeCost struct {
	NodeName     string `json:"nodeName"`
	Model        string `json:"model"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
	CostUsd      float64 `json:"costUsd"`
	DurationMs   int64  `json:"durationMs"`
	OK           bool   `json:"ok"`
	ErrorClass   string `json:"errorClass,omitempty"`
}
