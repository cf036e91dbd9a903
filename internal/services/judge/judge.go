package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
)

// acceptanceDefault is used when the caller's config doesn't override it.
const acceptanceDefault = 0.75

// Judge implements interfaces.Judge: it scores rendered lesson content
// against the six closed criteria and reports an accept verdict plus any
// TargetedIssues. The Judge never mutates content.
type Judge struct {
	llm        interfaces.LLMGatewayClient
	threshold  float64
	logger     *common.Logger
}

func NewJudge(llm interfaces.LLMGatewayClient, threshold float64, logger *common.Logger) *Judge {
	if threshold <= 0 {
		threshold = acceptanceDefault
	}
	return &Judge{llm: llm, threshold: threshold, logger: logger}
}

// judgeVerdict is the structured shape requested from the LLM.
type judgeVerdict struct {
	Score  float64 `json:"score"`
	Issues []struct {
		Criterion       string `json:"criterion"`
		Severity        string `json:"severity"`
		Location        string `json:"location"`
		Description     string `json:"description"`
		SuggestedFix    string `json:"suggestedFix"`
		TargetSectionID string `json:"targetSectionId"`
		StartQuote      string `json:"startQuote"`
		EndQuote        string `json:"endQuote"`
	} `json:"issues"`
}

func (j *Judge) Evaluate(ctx context.Context, lessonSpec models.LessonSpec, content string) (bool, float64, []models.TargetedIssue, error) {
	prompt := buildJudgePrompt(lessonSpec, content)

	result, err := j.llm.Complete(ctx, interfaces.CompletionRequest{
		UserPrompt:     prompt,
		SystemPrompt:   judgeSystemPrompt,
		Temperature:    0.0,
		MaxTokens:      4000,
		JSONSchemaHint: judgeSchemaHint,
	})
	if err != nil {
		return false, 0, nil, err
	}

	verdict, err := parseVerdict(result.Text)
	if err != nil {
		return false, 0, nil, pipeerr.New(pipeerr.DecodingError, "judge response did not parse as a verdict", err)
	}

	issues := make([]models.TargetedIssue, 0, len(verdict.Issues))
	for i, raw := range verdict.Issues {
		issues = append(issues, models.TargetedIssue{
			ID:              fmt.Sprintf("%s-issue-%d", lessonSpec.LessonID, i),
			Criterion:       models.Criterion(raw.Criterion),
			Severity:        models.Severity(raw.Severity),
			Location:        raw.Location,
			Description:     raw.Description,
			SuggestedFix:    raw.SuggestedFix,
			TargetSectionID: raw.TargetSectionID,
			FixAction:       fixActionFor(models.Severity(raw.Severity), models.Criterion(raw.Criterion)),
			Context: models.ContextWindow{
				Scope:      raw.TargetSectionID,
				StartQuote: raw.StartQuote,
				EndQuote:   raw.EndQuote,
			},
		})
	}

	accept := verdict.Score >= j.threshold && len(issues) == 0
	return accept, verdict.Score, issues, nil
}

// fixActionFor is the Judge's own quick-triage label; the Router (C7)
// re-derives the authoritative action from the full issue set, so this is
// advisory only.
func fixActionFor(sev models.Severity, crit models.Criterion) models.FixAction {
	if sev == models.SeverityCritical && (crit == models.CriterionPedagogicalStructure || crit == models.CriterionLearningObjectiveAlign) {
		return models.FixActionFullRegenerate
	}
	if crit == models.CriterionFactualAccuracy {
		return models.FixActionRegenerateSection
	}
	return models.FixActionSurgicalEdit
}

func parseVerdict(text string) (*judgeVerdict, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	var v judgeVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

const judgeSystemPrompt = `You are an instructional-design reviewer. Evaluate the lesson content strictly against these six criteria: pedagogical_structure, factual_accuracy, clarity_readability, completeness, learning_objective_alignment, engagement_examples. Respond with JSON only, matching the requested schema. Report every genuine issue; do not invent issues for content that is correct.`

const judgeSchemaHint = `{"score": number (0..1), "issues": [{"criterion": string, "severity": "critical"|"major"|"minor", "location": string, "description": string, "suggestedFix": string, "targetSectionId": string, "startQuote": string, "endQuote": string}]}`

func buildJudgePrompt(spec models.LessonSpec, content string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Lesson: %s\n", spec.Title)
	fmt.Fprintf(&sb, "Audience: %s, tone: %s\n", spec.Metadata.Audience, spec.Metadata.Tone)
	sb.WriteString("Learning objectives:\n")
	for _, obj := range spec.LearningObjectives {
		fmt.Fprintf(&sb, "- %s (%s)\n", obj.Statement, obj.BloomLevel)
	}
	sb.WriteString("\nContent to evaluate:\n\n")
	sb.WriteString(content)
	return sb.String()
}

var _ interfaces.Judge = (*Judge)(nil)
