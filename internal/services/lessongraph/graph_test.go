package lessongraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/coursegen/internal/clients/mdlint"
	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
)

type scriptedLLM struct {
	responses []string
	calls     int
}

func (f *scriptedLLM) Complete(_ context.Context, _ interfaces.CompletionRequest) (*interfaces.CompletionResult, error) {
	text := f.responses[len(f.responses)-1]
	if f.calls < len(f.responses) {
		text = f.responses[f.calls]
	}
	f.calls++
	return &interfaces.CompletionResult{Text: text, ModelUsed: "fake-model"}, nil
}

type scriptedJudge struct {
	accept bool
	score  float64
	issues []models.TargetedIssue
}

func (j *scriptedJudge) Evaluate(_ context.Context, _ models.LessonSpec, _ string) (bool, float64, []models.TargetedIssue, error) {
	return j.accept, j.score, j.issues, nil
}

type noopRouter struct{}

func (noopRouter) Route(task models.SectionRefinementTask, cfg interfaces.RoutingConfig) models.RouterDecision {
	return models.RouterDecision{Task: task, Action: models.FixActionSurgicalEdit, Executor: models.ExecutorPatcher}
}

type noopBatcher struct{}

func (noopBatcher) Batch(tasks []models.SectionRefinementTask, _, _ int) [][]models.SectionRefinementTask {
	if len(tasks) == 0 {
		return nil
	}
	return [][]models.SectionRefinementTask{tasks}
}

type passthroughExecutor struct{ out string }

func (e *passthroughExecutor) Execute(_ context.Context, _ models.SectionRefinementTask, _ models.LessonSpec, _ string, _ []models.RAGChunk) (string, error) {
	return e.out, nil
}

func testSpec() models.LessonSpec {
	return models.LessonSpec{
		LessonID: "l1",
		Title:    "Tides",
		Language: "en",
		Metadata: models.LessonMetadata{Audience: "adult learners", Tone: "neutral"},
		Sections: []models.SectionBreakdown{
			{SectionID: "background", Archetype: "narrative"},
			{SectionID: "summary", Archetype: "narrative"},
		},
	}
}

func newTestGraph(llm interfaces.LLMGatewayClient, judge interfaces.Judge, sectionExpander interfaces.Executor, cfg Config) *Graph {
	if sectionExpander == nil {
		sectionExpander = &passthroughExecutor{}
	}
	patcher := &passthroughExecutor{}
	planner := &passthroughExecutor{}
	cfg.GenerateModel = "fake-model"
	if cfg.MaxIterations == 0 && cfg.AcceptanceThreshold == 0 {
		cfg.MaxIterations = 3
	}
	return NewGraph(llm, mdlint.NewFallbackLinter(), judge, noopRouter{}, noopBatcher{}, patcher, sectionExpander, planner, nil, common.NewSilentLogger(), cfg)
}

const cleanLesson = "# Tides\n\nIntro text.\n\n## Background\n\nSome background content here.\n\n## Summary\n\nFinal wrap-up sentence.\n"

func TestGraphCleanLessonReachesFinalize(t *testing.T) {
	llm := &scriptedLLM{responses: []string{cleanLesson}}
	judge := &scriptedJudge{accept: true, score: 0.9}
	g := newTestGraph(llm, judge, nil, Config{MaxIterations: 3})

	content, err := g.Run(context.Background(), testSpec(), "course-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCompleted, content.Status)
	assert.Len(t, content.Sections, 2)
}

func TestGraphLocalizesLanguageCorruption(t *testing.T) {
	corrupted := "# Tides\n\nIntro text.\n\n## Background\n\n這是測試內容這是測試內容這是測試內容。\n\n## Summary\n\nFinal wrap-up sentence.\n"
	llm := &scriptedLLM{responses: []string{corrupted}}
	judge := &scriptedJudge{accept: true, score: 0.9}
	fixed := &passthroughExecutor{out: "## Background\n\nFixed background content in English.\n"}
	g := newTestGraph(llm, judge, fixed, Config{MaxIterations: 3})

	content, err := g.Run(context.Background(), testSpec(), "course-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCompleted, content.Status)
	for _, s := range content.Sections {
		if s.ID == "background" {
			assert.Contains(t, s.Body, "Fixed background content")
		}
	}
}

func TestGraphHygieneAutofixAppliesOnceThenPasses(t *testing.T) {
	withChatter := "# Tides\n\nIntro text.\n\n## Background\n\nI hope this helps! Some background content here.\n\n## Summary\n\nFinal wrap-up sentence.\n"
	llm := &scriptedLLM{responses: []string{withChatter}}
	judge := &scriptedJudge{accept: true, score: 0.9}
	g := newTestGraph(llm, judge, nil, Config{MaxIterations: 3})

	content, err := g.Run(context.Background(), testSpec(), "course-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCompleted, content.Status)
	for _, s := range content.Sections {
		assert.NotContains(t, s.Body, "I hope this helps")
	}
}

func TestGraphIterationCapEndsInReviewRequired(t *testing.T) {
	truncated := "# Tides\n\nIntro text.\n\n## Background\n\nThis cuts off mid..."
	llm := &scriptedLLM{responses: []string{truncated}}
	judge := &scriptedJudge{accept: true, score: 0.9}
	g := newTestGraph(llm, judge, nil, Config{MaxIterations: 0, AcceptanceThreshold: 0.75})

	content, err := g.Run(context.Background(), testSpec(), "course-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusReviewRequired, content.Status)
}
