// Package lessongraph implements C6, the Stage 6 intra-lesson state
// machine: generate → self-review → (fix / partial regen /
// full regen / judge) → finalize. It is an in-house node-dispatch loop
// rather than a dependency on a graph framework — State is a plain enum
// and Graph.Run is an explicit driver loop over a (state → node) table.
package lessongraph

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
)

// maxDriverSteps bounds the state-dispatch loop itself, independent of any
// per-node retry counter, as a backstop against a wiring bug producing a
// cycle the per-node guards don't catch.
const maxDriverSteps = 200

// Graph drives one lesson through the Stage 6 state machine.
type Graph struct {
	llm             interfaces.LLMGatewayClient
	selfReviewer    *SelfReviewer
	judge           interfaces.Judge
	router          interfaces.Router
	batcher         interfaces.Batcher
	executors       map[models.Executor]interfaces.Executor
	sectionExpander interfaces.Executor
	metrics         interfaces.MetricsSink
	logger          *common.Logger

	routingConfig         interfaces.RoutingConfig
	maxIterations         int
	maxConcurrentPatchers int
	adjacentSectionGap    int
	acceptanceThreshold   float64
	generateModel         string
	deepReviewEnabled     bool
}

// Config carries the tunables the REFINEMENT block exposes.
type Config struct {
	MaxIterations         int
	MaxConcurrentPatchers int
	AdjacentSectionGap    int
	AcceptanceThreshold   float64
	TokenCosts            interfaces.TokenCosts
	GenerateModel         string
	DeepReviewEnabled     bool
}

// NewGraph wires C6's collaborators: the LLM gateway (generation and deep
// review), the markdown linter (structure checks), the judge/router/batcher
// triad (C7/C8), and the three executors (C7) keyed by their RouterDecision
// name.
func NewGraph(
	llm interfaces.LLMGatewayClient,
	linter interfaces.MarkdownLintClient,
	judge interfaces.Judge,
	router interfaces.Router,
	batcher interfaces.Batcher,
	patcher, sectionExpander, planner interfaces.Executor,
	metrics interfaces.MetricsSink,
	logger *common.Logger,
	cfg Config,
) *Graph {
	return &Graph{
		llm:          llm,
		selfReviewer: NewSelfReviewer(llm, linter, logger, cfg.GenerateModel),
		judge:        judge,
		router:       router,
		batcher:      batcher,
		executors: map[models.Executor]interfaces.Executor{
			models.ExecutorPatcher:         patcher,
			models.ExecutorSectionExpander: sectionExpander,
			models.ExecutorPlanner:         planner,
		},
		sectionExpander: sectionExpander,
		metrics:         metrics,
		logger:          logger,
		routingConfig: interfaces.RoutingConfig{
			TokenBudget:     cfg.TokenCosts.FullRegenerate.Max,
			MaxPatcherCalls: cfg.MaxConcurrentPatchers,
			PreferSurgical:  true,
			TokenCosts:      cfg.TokenCosts,
		},
		maxIterations:         cfg.MaxIterations,
		maxConcurrentPatchers: cfg.MaxConcurrentPatchers,
		adjacentSectionGap:    cfg.AdjacentSectionGap,
		acceptanceThreshold:   cfg.AcceptanceThreshold,
		generateModel:         cfg.GenerateModel,
		deepReviewEnabled:     cfg.DeepReviewEnabled,
	}
}

// Run drives spec through the Stage 6 graph to a terminal LessonContent
// status. chunks is keyed by section id, pre-fetched by C5.
func (g *Graph) Run(ctx context.Context, spec models.LessonSpec, courseID string, chunks map[string][]models.RAGChunk) (*models.LessonContent, error) {
	state := newGraphState(spec.LessonID)
	current := StateStart

	var pendingIssues []models.TargetedIssue
	var pendingBatches [][]models.RouterDecision

	for step := 0; ; step++ {
		if step > maxDriverSteps {
			return nil, pipeerr.New(pipeerr.StateConflict, fmt.Sprintf("lesson %s: stage 6 graph exceeded %d steps without reaching a terminal state", spec.LessonID, maxDriverSteps), nil)
		}

		switch current {
		case StateStart:
			current = StateGenerate

		case StateGenerate:
			if err := g.generate(ctx, state, spec, courseID); err != nil {
				return nil, err
			}
			current = StateSelfReview

		case StateSelfReview:
			next, err := g.runSelfReview(ctx, state, spec, courseID)
			if err != nil {
				return nil, err
			}
			current = next

		case StateRegenerateSections:
			result, err := g.regenerateSections(ctx, state, spec, chunks)
			if err != nil {
				return nil, err
			}
			state.GeneratedContent = result.MergedContent
			state.SectionRegenerationResult = result
			state.recordNode(models.NodeCost{
				NodeName: "REGENERATE_SECTIONS", Model: state.ModelUsed,
				OutputTokens: result.TokensUsed, DurationMs: result.DurationMs, OK: true,
			})
			current = StateSelfReview

		case StateJudge:
			accept, score, issues, err := g.judge.Evaluate(ctx, spec, state.GeneratedContent)
			if err != nil {
				return nil, err
			}
			state.PreviousScores = append(state.PreviousScores, score)
			state.QualityScore = score
			if accept {
				current = StateFinalize
				break
			}

			hasFullRegenerate := false
			for _, issue := range issues {
				if issue.FixAction == models.FixActionFullRegenerate {
					hasFullRegenerate = true
					break
				}
			}
			if hasFullRegenerate {
				if state.RetryCount >= g.maxIterations {
					current = StateReviewRequired
					break
				}
				state.RetryCount++
				current = StateGenerate
				break
			}

			pendingIssues = issues
			current = StateRouteAndBatch

		case StateRouteAndBatch:
			if state.RefinementIterationCount >= g.maxIterations {
				current = StateReviewRequired
				break
			}
			_, batches := g.routeAndBatch(state, pendingIssues)
			if len(batches) == 0 {
				// Everything routed to FULL_REGENERATE or every section is locked.
				if state.RetryCount >= g.maxIterations {
					current = StateReviewRequired
					break
				}
				state.RetryCount++
				current = StateGenerate
				break
			}
			pendingBatches = batches
			current = StateExecuteTasks

		case StateExecuteTasks:
			if err := g.executeTasks(ctx, state, spec, chunks, pendingBatches); err != nil {
				return nil, err
			}
			state.RefinementIterationCount++
			current = StateSelfReview

		case StateFinalize:
			return g.finalize(ctx, state, spec, courseID, models.LessonStatusCompleted), nil

		case StateReviewRequired:
			return g.finalize(ctx, state, spec, courseID, models.LessonStatusReviewRequired), nil
		}
	}
}

// generate produces the full lesson markdown in one LLM call.
func (g *Graph) generate(ctx context.Context, state *GraphState, spec models.LessonSpec, courseID string) error {
	start := time.Now()
	resp, err := g.llm.Complete(ctx, interfaces.CompletionRequest{
		Model:        g.generateModel,
		SystemPrompt: generateSystemPrompt(spec),
		UserPrompt:   buildGeneratePrompt(spec),
		Temperature:  state.Temperature,
		MaxTokens:    8000,
		CourseID:     courseID,
		LessonID:     spec.LessonID,
	})
	duration := time.Since(start).Milliseconds()
	if err != nil {
		state.Errors = append(state.Errors, err.Error())
		state.recordNode(models.NodeCost{NodeName: "GENERATE", Model: g.generateModel, DurationMs: duration, OK: false, ErrorClass: string(pipeerr.UpstreamError)})
		return err
	}

	state.GeneratedContent = resp.Text
	state.SectionProgress = make(map[string]string)
	for _, s := range spec.Sections {
		state.SectionProgress[s.SectionID] = "pending"
	}
	state.recordNode(models.NodeCost{
		NodeName: "GENERATE", Model: resp.ModelUsed,
		InputTokens: resp.TokensPrompt, OutputTokens: resp.TokensCompletion,
		CostUsd: resp.CostUsd, DurationMs: duration, OK: true,
	})
	return nil
}

// runSelfReview runs Self-Review and translates its verdict into the next
// state: FIXED loops back at most once, REGENERATE either
// localizes to sectionsToRegenerate or falls back to a full GENERATE retry,
// PASS/PASS_WITH_FLAGS optionally runs the deep LLM review before handing
// off to JUDGE.
func (g *Graph) runSelfReview(ctx context.Context, state *GraphState, spec models.LessonSpec, courseID string) (State, error) {
	result, err := g.selfReviewer.Review(ctx, state.GeneratedContent, spec.Language)
	if err != nil {
		return StateFailed, err
	}
	state.SelfReviewResult = result
	state.recordNode(models.NodeCost{NodeName: "SELF_REVIEW", DurationMs: result.DurationMs, OK: true})

	switch result.Status {
	case ReviewFixed:
		if state.fixedOnce {
			// A second consecutive hygiene hit means the autofix isn't
			// converging; fall through to JUDGE rather than loop forever.
			return StateJudge, nil
		}
		state.fixedOnce = true
		state.GeneratedContent = result.PatchedContent
		return StateSelfReview, nil

	case ReviewRegenerate:
		if len(result.SectionsToRegenerate) > 0 {
			return StateRegenerateSections, nil
		}
		if state.RetryCount >= g.maxIterations {
			return StateReviewRequired, nil
		}
		state.RetryCount++
		return StateGenerate, nil

	case ReviewPass, ReviewPassWithFlags:
		if g.deepReviewEnabled {
			deep, err := g.selfReviewer.DeepReview(ctx, state.GeneratedContent, spec)
			if err != nil {
				return StateFailed, err
			}
			state.TokensUsed += deep.TokensUsed
			if deep.Status == ReviewRegenerate {
				if state.RetryCount >= g.maxIterations {
					return StateReviewRequired, nil
				}
				state.RetryCount++
				return StateGenerate, nil
			}
		}
		return StateJudge, nil

	default:
		return StateFailed, fmt.Errorf("lesson %s: unrecognized self-review status %q", spec.LessonID, result.Status)
	}
}

func (g *Graph) finalize(ctx context.Context, state *GraphState, spec models.LessonSpec, courseID string, status models.LessonStatus) *models.LessonContent {
	intro, sections := splitIntroAndSections(state.GeneratedContent)

	rendered := make([]models.RenderedSection, 0, len(sections))
	for _, s := range sections {
		rendered = append(rendered, models.RenderedSection{ID: s.ID, Title: s.Title, Body: s.Body})
	}

	metrics := models.Metrics{
		TokensUsed:           state.TokensUsed,
		CostUsd:              state.TotalCostUsd,
		DurationMs:           state.DurationMs,
		ModelUsed:            state.ModelUsed,
		RegenerationAttempts: state.RetryCount,
		QualityScore:         state.QualityScore,
	}

	if g.metrics != nil {
		for _, cost := range state.NodeCosts {
			g.metrics.RecordNode(ctx, courseID, spec.LessonID, cost)
		}
	}

	return &models.LessonContent{
		LessonID:  spec.LessonID,
		CourseID:  courseID,
		Status:    status,
		Intro:     intro,
		Sections:  rendered,
		Exercises: spec.Exercises,
		Metrics:   metrics,
		UpdatedAt: time.Now(),
	}
}

var _ interfaces.LessonGraphRunner = (*Graph)(nil)
