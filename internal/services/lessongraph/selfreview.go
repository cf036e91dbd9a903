package lessongraph

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/services/lessonmd"
)

// hygienePhrases are canned chatbot openers/closers that slip into raw LLM
// output and strip cleanly without touching surrounding content.
var hygienePhrases = []string{
	"as an ai language model",
	"i hope this helps",
	"certainly! here is",
	"sure, here's",
	"let me know if you have any other questions",
	"i'd be happy to help",
}

// foreignScriptCJKThreshold is the absolute count of CJK characters in a
// non-CJK-target lesson at or above which Self-Review raises a critical
// language issue; below it the language check passes.
const foreignScriptCJKThreshold = 10

// SelfReviewer runs the deterministic heuristic chain, then an optional
// LLM-backed deeper pass, over one round of generated lesson markdown.
type SelfReviewer struct {
	llm    interfaces.LLMGatewayClient
	linter interfaces.MarkdownLintClient
	logger *common.Logger
	model  string
}

func NewSelfReviewer(llm interfaces.LLMGatewayClient, linter interfaces.MarkdownLintClient, logger *common.Logger, model string) *SelfReviewer {
	return &SelfReviewer{llm: llm, linter: linter, logger: logger, model: model}
}

// Review returns FIXED with the patched content as soon as the hygiene
// autofix strips a canned phrase, without running the other checks.
// Otherwise it runs the language, truncation, and structure checks in that
// order, stopping at the first check that forces a REGENERATE; non-critical
// structure issues yield ReviewPassWithFlags.
// targetLanguage is the lesson's configured language (models.LessonSpec.Language);
// an empty value is treated as a Latin-script default.
func (r *SelfReviewer) Review(ctx context.Context, content, targetLanguage string) (*SelfReviewResult, error) {
	start := time.Now()
	result := &SelfReviewResult{HeuristicsPassed: true}

	patched, hygieneHits := applyHygieneAutofix(content)
	result.HeuristicDetails.HygienePhrasesFound = hygieneHits
	if len(hygieneHits) > 0 {
		result.PatchedContent = patched
		result.Status = ReviewFixed
		for _, phrase := range hygieneHits {
			result.Issues = append(result.Issues, ReviewIssue{
				Type: IssueHygiene, Severity: "minor",
				Description: fmt.Sprintf("removed canned phrase %q", phrase),
			})
		}
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}

	if issue, sections := checkLanguage(content, targetLanguage); issue != nil {
		result.HeuristicsPassed = false
		result.Issues = append(result.Issues, *issue)
		result.HeuristicDetails.ForeignScriptChars = countForeignScript(content, targetLanguage)
		if len(sections) > 0 && len(sections) <= 2 {
			result.Status = ReviewRegenerate
			result.SectionsToRegenerate = sections
		} else {
			result.Status = ReviewRegenerate
		}
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}

	if truncIssues := checkTruncation(content); len(truncIssues) > 0 {
		result.HeuristicsPassed = false
		result.HeuristicDetails.TruncationIssues = truncIssues
		for _, msg := range truncIssues {
			result.Issues = append(result.Issues, ReviewIssue{Type: IssueTruncation, Severity: "critical", Description: msg})
		}
		result.Status = ReviewRegenerate
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}

	structureIssues, err := r.linter.Lint(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("self-review structure check: %w", err)
	}
	result.HeuristicDetails.StructureIssueCount = len(structureIssues)

	hasCritical := false
	for _, si := range structureIssues {
		result.Issues = append(result.Issues, ReviewIssue{
			Type: IssueStructure, Severity: si.Severity, Location: si.Location, Description: si.Message,
		})
		if si.Severity == "critical" {
			hasCritical = true
		}
	}
	if hasCritical {
		result.HeuristicsPassed = false
		result.Status = ReviewRegenerate
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}
	if len(structureIssues) > 0 {
		result.HeuristicsPassed = false
		result.Status = ReviewPassWithFlags
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}

	result.Status = ReviewPass
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

// applyHygieneAutofix strips any configured canned phrase from content,
// along with its trailing punctuation, leaving the rest of the sentence
// intact. It is idempotent: re-running it against its own output finds no
// further hits.
func applyHygieneAutofix(content string) (string, []string) {
	var hits []string
	lower := strings.ToLower(content)
	for _, phrase := range hygienePhrases {
		if strings.Contains(lower, phrase) {
			hits = append(hits, phrase)
		}
	}
	if len(hits) == 0 {
		return content, nil
	}

	out := content
	for _, phrase := range hygienePhrases {
		out = removeCaseInsensitive(out, phrase)
	}
	return out, hits
}

// removeCaseInsensitive deletes every occurrence of phrase from s (matched
// case-insensitively) along with one trailing punctuation-and-space run, so
// stripping a canned opener doesn't leave a dangling "! " behind.
func removeCaseInsensitive(s, phrase string) string {
	lower := strings.ToLower(s)
	phrase = strings.ToLower(phrase)
	var sb strings.Builder
	i := 0
	for {
		idx := strings.Index(lower[i:], phrase)
		if idx < 0 {
			sb.WriteString(s[i:])
			break
		}
		start := i + idx
		end := start + len(phrase)
		sb.WriteString(s[i:start])
		for end < len(s) && strings.ContainsRune(".! ", rune(s[end])) {
			end++
		}
		i = end
	}
	return sb.String()
}

// checkLanguage flags non-target-script content. When the offending text is
// confined to a small number of sections it returns their ids so the caller
// can localize the fix instead of regenerating the whole lesson.
func checkLanguage(content, targetLanguage string) (*ReviewIssue, []string) {
	if isCJKLanguage(targetLanguage) {
		return nil, nil
	}
	total := countForeignScript(content, targetLanguage)
	if total < foreignScriptCJKThreshold {
		return nil, nil
	}

	_, sections := lessonmd.Parse(content)
	var offending []string
	for _, s := range sections {
		if countForeignScript(s.Body, targetLanguage) > 0 {
			offending = append(offending, s.ID)
		}
	}

	return &ReviewIssue{
		Type: IssueLanguage, Severity: "critical",
		Description: fmt.Sprintf("found %d characters outside the target script", total),
	}, offending
}

func isCJKLanguage(lang string) bool {
	switch strings.ToLower(lang) {
	case "zh", "zh-cn", "zh-tw", "ja", "ko":
		return true
	default:
		return false
	}
}

func countForeignScript(s, targetLanguage string) int {
	if isCJKLanguage(targetLanguage) {
		return 0
	}
	count := 0
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			count++
		}
	}
	return count
}

// checkTruncation flags generated content that looks cut off mid-stream:
// no sentence terminator at the end, an unterminated ellipsis, unbalanced
// code fences, or a trailing empty section.
func checkTruncation(content string) []string {
	var issues []string
	trimmed := strings.TrimRight(content, "\n \t")
	if trimmed == "" {
		return []string{"content is empty"}
	}

	last := trimmed[len(trimmed)-1]
	if last != '.' && last != '!' && last != '?' && last != '`' && last != ')' {
		issues = append(issues, "content does not end with a sentence terminator")
	}
	if strings.HasSuffix(trimmed, "...") || strings.HasSuffix(trimmed, "…") {
		issues = append(issues, "content ends mid-thought with an ellipsis")
	}
	if strings.Count(content, "```")%2 != 0 {
		issues = append(issues, "unbalanced fenced code block")
	}

	_, sections := lessonmd.Parse(content)
	if len(sections) > 0 {
		last := sections[len(sections)-1]
		if strings.TrimSpace(last.Body) == "" {
			issues = append(issues, fmt.Sprintf("section %q has no body", last.ID))
		}
	}
	return issues
}

// DeepReview performs the optional LLM-backed pass
// once heuristics are clean, catching factual or pedagogical issues the
// deterministic checks cannot see.
func (r *SelfReviewer) DeepReview(ctx context.Context, content string, spec models.LessonSpec) (*SelfReviewResult, error) {
	prompt := fmt.Sprintf(
		"Review this lesson markdown for factual accuracy and pedagogical soundness against its learning objectives. "+
			"Respond with a short list of issues, one per line, formatted as \"<severity>: <description>\" (severity one of critical, major, minor). "+
			"If there are no issues, respond with exactly \"none\".\n\nObjectives:\n%s\n\nContent:\n%s",
		objectivesBlock(spec), content)

	resp, err := r.llm.Complete(ctx, interfaces.CompletionRequest{
		Model:        r.model,
		SystemPrompt: "You are a meticulous instructional-design reviewer.",
		UserPrompt:   prompt,
		Temperature:  0.0,
		MaxTokens:    800,
		LessonID:     spec.LessonID,
	})
	if err != nil {
		return nil, fmt.Errorf("self-review deep review: %w", err)
	}

	result := &SelfReviewResult{HeuristicsPassed: true, TokensUsed: resp.TokensPrompt + resp.TokensCompletion}
	text := strings.TrimSpace(resp.Text)
	if strings.EqualFold(text, "none") || text == "" {
		result.Status = ReviewPass
		return result, nil
	}

	hasCritical := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		severity, desc, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		severity = strings.ToLower(strings.TrimSpace(severity))
		result.Issues = append(result.Issues, ReviewIssue{Type: IssueFacts, Severity: severity, Description: strings.TrimSpace(desc)})
		if severity == "critical" {
			hasCritical = true
		}
	}
	if hasCritical {
		result.Status = ReviewRegenerate
	} else if len(result.Issues) > 0 {
		result.Status = ReviewPassWithFlags
	} else {
		result.Status = ReviewPass
	}
	return result, nil
}

func objectivesBlock(spec models.LessonSpec) string {
	var sb strings.Builder
	for _, o := range spec.LearningObjectives {
		sb.WriteString("- ")
		sb.WriteString(o.Statement)
		sb.WriteString("\n")
	}
	return sb.String()
}
