package judge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
)

func testRoutingConfig() interfaces.RoutingConfig {
	return interfaces.RoutingConfig{
		TokenBudget:     0,
		MaxPatcherCalls: 3,
		PreferSurgical:  true,
		TokenCosts: interfaces.TokenCosts{
			Patcher:         interfaces.CostBand{Min: 200, Max: 800},
			SectionExpander: interfaces.CostBand{Min: 800, Max: 2500},
			FullRegenerate:  interfaces.CostBand{Min: 2500, Max: 8000},
		},
	}
}

func TestRouteCriticalStructuralIssueFullRegenerates(t *testing.T) {
	r := NewRouter()
	task := models.SectionRefinementTask{
		SourceIssues: []models.TargetedIssue{
			{Severity: models.SeverityCritical, Criterion: models.CriterionPedagogicalStructure},
		},
	}
	d := r.Route(task, testRoutingConfig())
	assert.Equal(t, models.FixActionFullRegenerate, d.Action)
	assert.Equal(t, models.ExecutorPlanner, d.Executor)
	assert.Equal(t, 8000, d.EstimatedTokens)
}

func TestRouteFactualAccuracyOverridesPreferSurgical(t *testing.T) {
	r := NewRouter()
	cfg := testRoutingConfig()
	cfg.PreferSurgical = true
	task := models.SectionRefinementTask{
		SourceIssues: []models.TargetedIssue{
			{Severity: models.SeverityMinor, Criterion: models.CriterionFactualAccuracy},
		},
	}
	d := r.Route(task, cfg)
	assert.Equal(t, models.FixActionRegenerateSection, d.Action)
	assert.Equal(t, models.ExecutorSectionExpander, d.Executor)
}

func TestRouteThreeOrMoreIssuesEscalatesToSectionExpander(t *testing.T) {
	r := NewRouter()
	task := models.SectionRefinementTask{
		SourceIssues: []models.TargetedIssue{
			{Criterion: models.CriterionClarityReadability},
			{Criterion: models.CriterionClarityReadability},
			{Criterion: models.CriterionClarityReadability},
		},
	}
	d := r.Route(task, testRoutingConfig())
	assert.Equal(t, models.ExecutorSectionExpander, d.Executor)
}

func TestRouteMinorPriorityIsSurgical(t *testing.T) {
	r := NewRouter()
	task := models.SectionRefinementTask{
		Priority: models.SeverityMinor,
		SourceIssues: []models.TargetedIssue{
			{Criterion: models.CriterionCompleteness},
		},
	}
	d := r.Route(task, testRoutingConfig())
	assert.Equal(t, models.FixActionSurgicalEdit, d.Action)
	assert.Equal(t, models.ExecutorPatcher, d.Executor)
}

func TestRouteOnlyClarityOrEngagementIsSurgical(t *testing.T) {
	r := NewRouter()
	task := models.SectionRefinementTask{
		SourceIssues: []models.TargetedIssue{
			{Criterion: models.CriterionEngagementExamples},
		},
	}
	d := r.Route(task, testRoutingConfig())
	assert.Equal(t, models.ExecutorPatcher, d.Executor)
}

func TestRouteDefaultsToSectionExpanderWhenNotPreferSurgical(t *testing.T) {
	r := NewRouter()
	cfg := testRoutingConfig()
	cfg.PreferSurgical = false
	task := models.SectionRefinementTask{
		Priority: models.SeverityMajor,
		SourceIssues: []models.TargetedIssue{
			{Criterion: models.CriterionCompleteness},
			{Criterion: models.CriterionCompleteness},
		},
	}
	d := r.Route(task, cfg)
	assert.Equal(t, models.FixActionRegenerateSection, d.Action)
	assert.Equal(t, models.ExecutorSectionExpander, d.Executor)
}

func TestEstimatedTokensCapsAtTokenBudget(t *testing.T) {
	cfg := testRoutingConfig()
	cfg.TokenBudget = 500
	assert.Equal(t, 500, estimatedTokens(cfg, cfg.TokenCosts.FullRegenerate))
}

func TestEstimatedTokensUsesBandMaxWhenBudgetLarger(t *testing.T) {
	cfg := testRoutingConfig()
	cfg.TokenBudget = 100000
	assert.Equal(t, 800, estimatedTokens(cfg, cfg.TokenCosts.Patcher))
}
