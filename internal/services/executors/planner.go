package executors

import (
	"context"
	"fmt"
	"strings"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
)

// Planner regenerates the entire lesson from its LessonSpec plus a memo of
// what went wrong, used for critical
// structural / learning-objective-alignment failures the router judges
// unrecoverable by a localized edit.
type Planner struct {
	llm    interfaces.LLMGatewayClient
	logger *common.Logger
}

func NewPlanner(llm interfaces.LLMGatewayClient, logger *common.Logger) *Planner {
	return &Planner{llm: llm, logger: logger}
}

// Execute ignores currentMarkdown and chunks: a full replan starts fresh
// from the immutable LessonSpec rather than patching the failed draft.
func (p *Planner) Execute(ctx context.Context, task models.SectionRefinementTask, spec models.LessonSpec, _ string, _ []models.RAGChunk) (string, error) {
	prompt := buildPlannerPrompt(spec, task)

	result, err := p.llm.Complete(ctx, interfaces.CompletionRequest{
		SystemPrompt: plannerSystemPrompt,
		UserPrompt:   prompt,
		Temperature:  0.5,
		MaxTokens:    6000,
		LessonID:     spec.LessonID,
	})
	if err != nil {
		return "", err
	}

	markdown := strings.TrimSpace(result.Text)
	if markdown == "" {
		return "", pipeerr.New(pipeerr.DecodingError, "planner returned empty lesson markdown", nil)
	}
	return markdown, nil
}

const plannerSystemPrompt = `You are an instructional designer replanning an entire lesson that failed structural review. Produce a complete lesson as markdown: a single "#" title/intro block, followed by one "##" section per required section breakdown, in the given order. Address every issue in the memo. Return markdown only, no commentary.`

func buildPlannerPrompt(spec models.LessonSpec, task models.SectionRefinementTask) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Lesson: %s (language: %s)\n", spec.Title, spec.Language)
	fmt.Fprintf(&sb, "Audience: %s, tone: %s, compliance: %s\n", spec.Metadata.Audience, spec.Metadata.Tone, spec.Metadata.ComplianceLevel)

	sb.WriteString("\nLearning objectives:\n")
	for _, obj := range spec.LearningObjectives {
		fmt.Fprintf(&sb, "- %s (%s)\n", obj.Statement, obj.BloomLevel)
	}

	sb.WriteString("\nRequired sections, in order:\n")
	for _, s := range spec.Sections {
		fmt.Fprintf(&sb, "- %s (archetype: %s, depth: %s)\n", s.SectionID, s.Archetype, s.Depth)
	}

	sb.WriteString("\nMemo — what went wrong last time:\n")
	for _, issue := range task.SourceIssues {
		fmt.Fprintf(&sb, "- [%s/%s] %s\n", issue.Severity, issue.Criterion, issue.Description)
	}

	return sb.String()
}

var _ interfaces.Executor = (*Planner)(nil)
