// Package mdlint provides the markdown structure linter collaborator
// contract (interfaces.MarkdownLintClient) plus a local heuristic fallback
// used when no external linting service is configured, mirroring the
// docparser package's external-collaborator-plus-fallback shape.
package mdlint

import (
	"bufio"
	"fmt"
	"context"
	"regexp"
	"strings"

	"github.com/bobmcallan/coursegen/internal/interfaces"
)

// FallbackLinter implements interfaces.MarkdownLintClient with deterministic,
// dependency-free checks: heading-level jumps, fenced code blocks missing a
// language tag, unclosed fenced code blocks, images without alt text, and
// headings not preceded by a blank line (the line after a heading is not
// checked). It does not claim to be a complete markdown linter — it covers
// the structural checks explicitly.
type FallbackLinter struct{}

func NewFallbackLinter() *FallbackLinter { return &FallbackLinter{} }

var (
	headingRe  = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	fenceRe    = regexp.MustCompile("^```\\s*([a-zA-Z0-9_+-]*)\\s*$")
	imageRe    = regexp.MustCompile(`!\[(.*?)\]\((.*?)\)`)
)

func (l *FallbackLinter) Lint(_ context.Context, markdown string) ([]interfaces.LintIssue, error) {
	var issues []interfaces.LintIssue

	lines := splitLines(markdown)
	lastHeadingLevel := 0
	inFence := false

	for i, line := range lines {
		if m := fenceRe.FindStringSubmatch(line); m != nil && strings.HasPrefix(strings.TrimSpace(line), "```") {
			if !inFence && m[1] == "" {
				issues = append(issues, interfaces.LintIssue{
					Severity: "minor", Rule: "fence-language",
					Location: fmt.Sprintf("line %d", i+1),
					Message:  "fenced code block is missing a language tag",
				})
			}
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			level := len(m[1])
			if lastHeadingLevel > 0 && level > lastHeadingLevel+1 {
				issues = append(issues, interfaces.LintIssue{
					Severity: "major", Rule: "heading-level-jump",
					Location: fmt.Sprintf("line %d", i+1),
					Message:  fmt.Sprintf("heading level jumps from h%d to h%d", lastHeadingLevel, level),
				})
			}
			if i > 0 && strings.TrimSpace(lines[i-1]) != "" {
				issues = append(issues, interfaces.LintIssue{
					Severity: "minor", Rule: "blank-line-before-heading",
					Location: fmt.Sprintf("line %d", i+1),
					Message:  "heading is not preceded by a blank line",
				})
			}
			lastHeadingLevel = level
		}

		for _, m := range imageRe.FindAllStringSubmatch(line, -1) {
			if strings.TrimSpace(m[1]) == "" {
				issues = append(issues, interfaces.LintIssue{
					Severity: "minor", Rule: "image-alt-text",
					Location: fmt.Sprintf("line %d", i+1),
					Message:  "image is missing alt text",
				})
			}
		}
	}

	if inFence {
		issues = append(issues, interfaces.LintIssue{
			Severity: "critical", Rule: "unclosed-fence",
			Location: "end of document",
			Message:  "a fenced code block was never closed",
		})
	}

	return issues, nil
}

func splitLines(s string) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(s))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

var _ interfaces.MarkdownLintClient = (*FallbackLinter)(nil)
