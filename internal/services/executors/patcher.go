// Package executors implements the three behavioral contracts the Router
// (C7) dispatches to: patcher, section-expander, planner.
// Each is an interfaces.Executor; EXECUTE_TASKS (C6) invokes whichever one
// the RouterDecision named and folds its output back into the lesson's
// markdown.
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

// Patcher applies surgical, quote-anchored edits to a single section and
// leaves the rest of the lesson untouched.
type Patcher struct {
	llm    interfaces.LLMGatewayClient
	logger *common.Logger
}

func NewPatcher(llm interfaces.LLMGatewayClient, logger *common.Logger) *Patcher {
	return &Patcher{llm: llm, logger: logger}
}

func (p *Patcher) Execute(ctx context.Context, task models.SectionRefinementTask, spec models.LessonSpec, currentMarkdown string, _ []models.RAGChunk) (string, error) {
	_, sections := lessonmd.Parse(currentMarkdown)
	section, ok := lessonmd.SectionByID(sections, task.SectionID)
	if !ok {
		return "", pipeerr.New(pipeerr.ValidationError,
			fmt.Sprintf("patcher: section %s not found in current markdown", task.SectionID), nil)
	}

	prompt := buildPatchPrompt(section, task)
	result, err := p.llm.Complete(ctx, interfaces.CompletionRequest{
		SystemPrompt: patchSystemPrompt,
		UserPrompt:   prompt,
		Temperature:  0.2,
		MaxTokens:    2000,
		CourseID:     "",
		LessonID:     spec.LessonID,
	})
	if err != nil {
		return "", err
	}

	patched := strings.TrimSpace(result.Text)
	if patched == "" {
		return "", pipeerr.New(pipeerr.DecodingError, "patcher returned empty section content", nil)
	}

	return lessonmd.MergeSections(currentMarkdown, map[string]string{task.SectionID: patched}), nil
}

const patchSystemPrompt = `You are a precise copy editor. You will receive one section of a lesson, plus a list of located issues with suggested fixes. Apply ONLY the requested fixes as minimal, surgical edits. Do not rewrite sentences that were not flagged. Return the full corrected section body and nothing else — no heading, no commentary, no markdown code fence.`

func buildPatchPrompt(section lessonmd.Section, task models.SectionRefinementTask) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Section: %s\n\n%s\n\nIssues to fix:\n", section.Title, section.Body)
	for _, issue := range task.SourceIssues {
		fmt.Fprintf(&sb, "- [%s/%s] %s\n  Suggested fix: %s\n  Quoted span: %q .. %q\n",
			issue.Severity, issue.Criterion, issue.Description, issue.SuggestedFix,
			issue.Context.StartQuote, issue.Context.EndQuote)
	}
	if task.PrevSectionTail != "" {
		fmt.Fprintf(&sb, "\nPreceding section ends with: %q\n", task.PrevSectionTail)
	}
	if task.NextSectionHead != "" {
		fmt.Fprintf(&sb, "Following section begins with: %q\n", task.NextSectionHead)
	}
	return sb.String()
}

var _ interfaces.Executor = (*Patcher)(nil)
