package lessongraph

import (
	"github.com/bobmcallan/coursegen/internal/models"
)

// State is one node of the Stage 6 graph.
type State string

const (
	StateStart              State = "START"
	StateGenerate            State = "GENERATE"
	StateSelfReview          State = "SELF_REVIEW"
	StateRegenerateSections  State = "REGENERATE_SECTIONS"
	StateJudge               State = "JUDGE"
	StateRouteAndBatch       State = "ROUTE_AND_BATCH"
	StateExecuteTasks        State = "EXECUTE_TASKS"
	StateFinalize            State = "FINALIZE"
	StateReviewRequired      State = "REVIEW_REQUIRED"
	StateFailed              State = "FAILED"
)

// TargetedRefinementMode distinguishes unattended refinement from a mode
// where a human approves each batch.
type TargetedRefinementMode string

const (
	RefinementFullAuto     TargetedRefinementMode = "full-auto"
	RefinementHumanInLoop  TargetedRefinementMode = "human-in-loop"
)

// GraphState is the full per-lesson state carried across nodes.
type GraphState struct {
	LessonID string

	GeneratedContent string
	SectionProgress  map[string]string // sectionID -> "pending"|"regenerated"|"patched"

	SelfReviewResult          *SelfReviewResult
	SectionRegenerationResult *SectionRegenerationResult

	Errors []string

	RetryCount  int
	ModelUsed   string
	Temperature float64

	TokensUsed   int
	DurationMs   int64
	TotalCostUsd float64
	NodeCosts    []models.NodeCost

	QualityScore        float64
	JudgeVerdict         string // "accept" | "targeted_refine"
	JudgeRecommendation  string

	NeedsRegeneration bool
	NeedsHumanReview  bool
	PreviousScores    []float64

	RefinementIterationCount    int
	TargetedRefinementMode      TargetedRefinementMode
	LockedSections              []string
	SectionEditCount             map[string]int
	TargetedRefinementTokensUsed int

	fixedOnce bool // caps the FIXED→SELF_REVIEW loop to a single pass
}

func newGraphState(lessonID string) *GraphState {
	return &GraphState{
		LessonID:                lessonID,
		SectionProgress:         make(map[string]string),
		SectionEditCount:        make(map[string]int),
		Temperature:             0.7,
		TargetedRefinementMode:  RefinementFullAuto,
	}
}

func (s *GraphState) recordNode(cost models.NodeCost) {
	s.NodeCosts = append(s.NodeCosts, cost)
	s.TokensUsed += cost.InputTokens + cost.OutputTokens
	s.TotalCostUsd += cost.CostUsd
	s.DurationMs += cost.DurationMs
	if cost.Model != "" {
		s.ModelUsed = cost.Model
	}
}

func (s *GraphState) isLocked(sectionID string) bool {
	for _, id := range s.LockedSections {
		if id == sectionID {
			return true
		}
	}
	return false
}
