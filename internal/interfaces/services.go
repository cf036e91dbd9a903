package interfaces

import (
	"context"

	"github.com/bobmcallan/coursegen/internal/models"
)

// StageHandler is the contract every S1…S6 worker satisfies:
// stateless, idempotent, consuming exactly one job type.
type StageHandler interface {
	JobType() models.JobType
	Handle(ctx context.Context, job *models.Job) error
}

// CourseFSM applies and validates course state transitions inside C9
// transactions.
type CourseFSM interface {
	// Transition moves course id from its current stored status to next,
	// validating legality first (models.CanTransition) and writing the
	// monotone progress mapping. Returns pipeerr STATE_CONFLICT if illegal.
	Transition(ctx context.Context, courseID string, next models.GenerationStatus) error
	// Fail drives a course straight to the failed absorbing state with a
	// human-readable, non-sensitive error message.
	Fail(ctx context.Context, courseID string, errMsg string) error
}

// RAGContextBuilder is C5: for a LessonSpec section, resolve chunks from the
// vector store.
type RAGContextBuilder interface {
	BuildForSection(ctx context.Context, courseID string, section models.SectionBreakdown, expectedChunks int) ([]models.RAGChunk, error)
}

// LessonGraphRunner drives the Stage 6 intra-lesson state machine (C6)
// to a terminal LessonContent status.
type LessonGraphRunner interface {
	Run(ctx context.Context, spec models.LessonSpec, courseID string, chunks map[string][]models.RAGChunk) (*models.LessonContent, error)
}

// Judge produces TargetedIssues or an accept verdict for rendered lesson
// content (C7). Judge never mutates content.
type Judge interface {
	Evaluate(ctx context.Context, lessonSpec models.LessonSpec, content string) (accept bool, score float64, issues []models.TargetedIssue, err error)
}

// Router is the deterministic function choosing an executor for a task
// (C7).
type Router interface {
	Route(task models.SectionRefinementTask, cfg RoutingConfig) models.RouterDecision
}

// RoutingConfig parameterizes Router.Route.
type RoutingConfig struct {
	TokenBudget     int
	MaxPatcherCalls int
	PreferSurgical  bool
	TokenCosts      TokenCosts
}

// CostBand is a [min, max] estimated token-cost range for one executor.
type CostBand struct {
	Min int
	Max int
}

// TokenCosts mirrors REFINEMENT.TOKEN_COSTS.{patcher,sectionExpander,fullRegenerate}.
// Defined here (rather than reused from common.RefinementConfig) because
// common already imports this package to resolve InternalKVStore.
type TokenCosts struct {
	Patcher         CostBand
	SectionExpander CostBand
	FullRegenerate  CostBand
}

// Batcher groups SectionRefinementTasks into adjacency-safe, concurrency
// capped batches (C8).
type Batcher interface {
	Batch(tasks []models.SectionRefinementTask, maxConcurrency, adjacentSectionGap int) [][]models.SectionRefinementTask
}

// Executor is the behavioral contract satisfied by patcher, section-expander,
// and planner. chunks carries the target section's RAG
// context so section-expander can ground its regeneration; patcher and
// planner are free to ignore it.
type Executor interface {
	Execute(ctx context.Context, task models.SectionRefinementTask, spec models.LessonSpec, currentMarkdown string, chunks []models.RAGChunk) (string, error)
}

// MetricsSink is C10: records one LLM call or Stage 6 node outcome.
type MetricsSink interface {
	RecordNode(ctx context.Context, courseID, lessonID string, cost models.NodeCost)
	Aggregate(ctx context.Context, lessonID string) (models.Metrics, error)
}
