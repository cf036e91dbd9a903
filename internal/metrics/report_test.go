package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bobmcallan/coursegen/internal/models"
)

func TestFormatLessonReportIncludesNodeRowsSortedByName(t *testing.T) {
	nodes := []models.NodeCost{
		{NodeName: "writer", Model: "gemini-2.5-flash", InputTokens: 200, OutputTokens: 300, CostUsd: 0.02, DurationMs: 1200, OK: true},
		{NodeName: "judge", Model: "gemini-2.5-flash", InputTokens: 50, OutputTokens: 20, CostUsd: 0.005, DurationMs: 300, OK: false, ErrorClass: "timeout"},
	}
	totals := models.Metrics{TokensUsed: 570, CostUsd: 0.025, DurationMs: 1500, ModelUsed: "gemini-2.5-flash", RegenerationAttempts: 1}

	report := FormatLessonReport("course-1", "lesson-1", nodes, totals)

	assert.Contains(t, report, "# Cost Report: Lesson lesson-1")
	assert.Contains(t, report, "course-1")
	judgeIdx := indexOf(report, "judge")
	writerIdx := indexOf(report, "writer")
	assert.True(t, judgeIdx < writerIdx, "judge row should sort before writer row")
	assert.Contains(t, report, "timeout")
}

func TestFormatLessonReportHandlesNoNodes(t *testing.T) {
	report := FormatLessonReport("course-1", "lesson-1", nil, models.Metrics{})
	assert.Contains(t, report, "No node cost records")
}

func TestFormatCourseReportSortsLessonsByID(t *testing.T) {
	perLesson := map[string][]models.NodeCost{
		"lesson-b": {{NodeName: "n1", CostUsd: 0.01, InputTokens: 10, OutputTokens: 10}},
		"lesson-a": {{NodeName: "n2", CostUsd: 0.02, InputTokens: 20, OutputTokens: 20}},
	}
	report := FormatCourseReport("course-1", perLesson)

	aIdx := indexOf(report, "lesson-a")
	bIdx := indexOf(report, "lesson-b")
	assert.True(t, aIdx < bIdx)
	assert.Contains(t, report, "Course Total")
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
