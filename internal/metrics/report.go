package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bobmcallan/coursegen/internal/models"
)

// FormatLessonReport renders a per-lesson cost breakdown as Github-flavored
// markdown: a strings.Builder assembling header lines and pipe tables, with
// rows sorted for deterministic output.
func FormatLessonReport(courseID, lessonID string, nodes []models.NodeCost, totals models.Metrics) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Cost Report: Lesson %s\n\n", lessonID))
	sb.WriteString(fmt.Sprintf("**Course:** %s\n", courseID))
	sb.WriteString(fmt.Sprintf("**Model Used:** %s\n", totals.ModelUsed))
	sb.WriteString(fmt.Sprintf("**Tokens Used:** %d\n", totals.TokensUsed))
	sb.WriteString(fmt.Sprintf("**Cost:** %s\n", formatUSD(totals.CostUsd)))
	sb.WriteString(fmt.Sprintf("**Duration:** %s\n", formatMillis(totals.DurationMs)))
	sb.WriteString(fmt.Sprintf("**Regeneration Attempts:** %d\n\n", totals.RegenerationAttempts))

	if len(nodes) == 0 {
		sb.WriteString("*No node cost records.*\n")
		return sb.String()
	}

	sorted := make([]models.NodeCost, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].NodeName < sorted[j].NodeName })

	sb.WriteString("## Nodes\n\n")
	sb.WriteString("| Node | Model | Input Tokens | Output Tokens | Cost | Duration | Result |\n")
	sb.WriteString("|------|-------|---------------|----------------|------|----------|--------|\n")

	var sumCost float64
	var sumIn, sumOut int
	for _, n := range sorted {
		result := "ok"
		if !n.OK {
			result = n.ErrorClass
			if result == "" {
				result = "failed"
			}
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %s | %s | %s |\n",
			n.NodeName, n.Model, n.InputTokens, n.OutputTokens,
			formatUSD(n.CostUsd), formatMillis(n.DurationMs), result))
		sumCost += n.CostUsd
		sumIn += n.InputTokens
		sumOut += n.OutputTokens
	}
	sb.WriteString(fmt.Sprintf("| **Total** | | **%d** | **%d** | **%s** | | |\n\n",
		sumIn, sumOut, formatUSD(sumCost)))

	return sb.String()
}

// FormatCourseReport renders a course-level rollup: one row per lesson,
// aggregated from its recorded nodes.
func FormatCourseReport(courseID string, perLesson map[string][]models.NodeCost) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Cost Report: Course %s\n\n", courseID))

	lessonIDs := make([]string, 0, len(perLesson))
	for id := range perLesson {
		lessonIDs = append(lessonIDs, id)
	}
	sort.Strings(lessonIDs)

	sb.WriteString("| Lesson | Nodes | Tokens | Cost | Duration |\n")
	sb.WriteString("|--------|-------|--------|------|----------|\n")

	var grandCost float64
	var grandTokens int
	for _, id := range lessonIDs {
		nodes := perLesson[id]
		var tokens int
		var cost float64
		var duration int64
		for _, n := range nodes {
			tokens += n.InputTokens + n.OutputTokens
			cost += n.CostUsd
			duration += n.DurationMs
		}
		grandCost += cost
		grandTokens += tokens
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s | %s |\n",
			id, len(nodes), tokens, formatUSD(cost), formatMillis(duration)))
	}
	sb.WriteString(fmt.Sprintf("| **Course Total** | | **%d** | **%s** | |\n\n", grandTokens, formatUSD(grandCost)))

	return sb.String()
}

func formatUSD(v float64) string {
	return fmt.Sprintf("$%.4f", v)
}

func formatMillis(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.2fs", float64(ms)/1000.0)
}
