package executors

import (
	"context"
	"fmt"
	"strings"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
	"github.com/bobmcallan/coursegen/internal/services/lessonmd"
)

// SectionExpander regenerates one section from its LessonSpec slice and RAG
// chunks. Used for factual errors, three
// or more stacked issues, and the non-surgical default.
type SectionExpander struct {
	llm    interfaces.LLMGatewayClient
	logger *common.Logger
}

func NewSectionExpander(llm interfaces.LLMGatewayClient, logger *common.Logger) *SectionExpander {
	return &SectionExpander{llm: llm, logger: logger}
}

func (e *SectionExpander) Execute(ctx context.Context, task models.SectionRefinementTask, spec models.LessonSpec, currentMarkdown string, chunks []models.RAGChunk) (string, error) {
	breakdown, ok := findBreakdown(spec, task.SectionID)
	if !ok {
		return "", pipeerr.New(pipeerr.ValidationError,
			fmt.Sprintf("section-expander: no LessonSpec section breakdown for %s", task.SectionID), nil)
	}

	_, sections := lessonmd.Parse(currentMarkdown)
	existing, _ := lessonmd.SectionByID(sections, task.SectionID)

	prompt := buildExpanderPrompt(spec, breakdown, existing, task, chunks)
	result, err := e.llm.Complete(ctx, interfaces.CompletionRequest{
		SystemPrompt: expanderSystemPrompt,
		UserPrompt:   prompt,
		Temperature:  0.4,
		MaxTokens:    3000,
		LessonID:     spec.LessonID,
	})
	if err != nil {
		return "", err
	}

	fresh := strings.TrimSpace(result.Text)
	if fresh == "" {
		return "", pipeerr.New(pipeerr.DecodingError, "section-expander returned empty content", nil)
	}

	return lessonmd.MergeSections(currentMarkdown, map[string]string{task.SectionID: fresh}), nil
}

func findBreakdown(spec models.LessonSpec, sectionID string) (models.SectionBreakdown, bool) {
	for _, b := range spec.Sections {
		if b.SectionID == sectionID {
			return b, true
		}
	}
	return models.SectionBreakdown{}, false
}

const expanderSystemPrompt = `You are an instructional content writer regenerating a single lesson section from scratch using the provided retrieval context. Ground every factual claim in the supplied context chunks; do not invent facts not supported by them. Match the lesson's language, tone, and depth. Return the full section body and nothing else — no heading, no commentary, no markdown code fence.`

func buildExpanderPrompt(spec models.LessonSpec, breakdown models.SectionBreakdown, existing lessonmd.Section, task models.SectionRefinementTask, chunks []models.RAGChunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Lesson: %s (language: %s)\n", spec.Title, spec.Language)
	fmt.Fprintf(&sb, "Section: %s (archetype: %s, depth: %s)\n", existing.Title, breakdown.Archetype, breakdown.Depth)
	if len(breakdown.KeyPoints) > 0 {
		fmt.Fprintf(&sb, "Key points to cover: %s\n", strings.Join(breakdown.KeyPoints, "; "))
	}
	if len(breakdown.RequiredKeywords) > 0 {
		fmt.Fprintf(&sb, "Required keywords: %s\n", strings.Join(breakdown.RequiredKeywords, ", "))
	}
	if len(breakdown.ProhibitedKeywords) > 0 {
		fmt.Fprintf(&sb, "Prohibited keywords: %s\n", strings.Join(breakdown.ProhibitedKeywords, ", "))
	}

	sb.WriteString("\nIssues that triggered this regeneration:\n")
	for _, issue := range task.SourceIssues {
		fmt.Fprintf(&sb, "- [%s/%s] %s\n", issue.Severity, issue.Criterion, issue.Description)
	}

	if len(chunks) > 0 {
		sb.WriteString("\nRetrieval context:\n")
		for _, c := range chunks {
			fmt.Fprintf(&sb, "---\n%s\n", c.Content)
		}
	}

	fmt.Fprintf(&sb, "\nPrevious section content (for reference only, do not copy verbatim):\n%s\n", existing.Body)
	return sb.String()
}

var _ interfaces.Executor = (*SectionExpander)(nil)
