// Package metrics implements C10, the cost ledger: every LLM
// call and Stage 6 node outcome is recorded against a lesson, then
// aggregated into the Metrics block persisted on LessonContent.
package metrics

import (
	"context"
	"sync"

	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
)

// Ledger is an in-process MetricsSink: it keeps every recorded NodeCost per
// lesson so Aggregate, the markdown report, and the cost chart can all be
// derived from the same record set.
type Ledger struct {
	mu    sync.RWMutex
	nodes map[string][]entry // lessonID -> records, insertion order preserved
}

type entry struct {
	courseID string
	cost     models.NodeCost
}

func NewLedger() *Ledger {
	return &Ledger{nodes: make(map[string][]entry)}
}

// RecordNode implements interfaces.MetricsSink.
func (l *Ledger) RecordNode(_ context.Context, courseID, lessonID string, cost models.NodeCost) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nodes[lessonID] = append(l.nodes[lessonID], entry{courseID: courseID, cost: cost})
}

// Aggregate implements interfaces.MetricsSink: sums every recorded node for
// a lesson into the Metrics block on LessonContent.
func (l *Ledger) Aggregate(_ context.Context, lessonID string) (models.Metrics, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records, ok := l.nodes[lessonID]
	if !ok || len(records) == 0 {
		return models.Metrics{}, pipeerr.NewValidationError("no recorded cost for lesson " + lessonID)
	}

	var m models.Metrics
	for _, e := range records {
		c := e.cost
		m.TokensUsed += c.InputTokens + c.OutputTokens
		m.CostUsd += c.CostUsd
		m.DurationMs += c.DurationMs
		if c.Model != "" {
			m.ModelUsed = c.Model
		}
		if !c.OK {
			m.RegenerationAttempts++
		}
	}
	return m, nil
}

// NodesForLesson returns every recorded NodeCost for a lesson in insertion
// order, used by the report formatter and chart renderer below.
func (l *Ledger) NodesForLesson(lessonID string) []models.NodeCost {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.NodeCost, 0, len(l.nodes[lessonID]))
	for _, e := range l.nodes[lessonID] {
		out = append(out, e.cost)
	}
	return out
}

// NodesForCourse returns every recorded NodeCost across every lesson of a
// course, in insertion order, for a course-level report/chart.
func (l *Ledger) NodesForCourse(courseID string) []models.NodeCost {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.NodeCost
	for _, records := range l.nodes {
		for _, e := range records {
			if e.courseID == courseID {
				out = append(out, e.cost)
			}
		}
	}
	return out
}

// BudgetExceeded reports whether a lesson's targeted-refinement token spend
// has crossed budgetTokens, the hard-failure condition the batching/routing
// layer's token budget describes.
func BudgetExceeded(tokensUsed, budgetTokens int) bool {
	return budgetTokens > 0 && tokensUsed > budgetTokens
}

var _ interfaces.MetricsSink = (*Ledger)(nil)
