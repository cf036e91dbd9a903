// Package judge implements C7: the Judge (content evaluation) and Router
// (deterministic executor selection).
package judge

import (
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
)

// Router implements interfaces.Router with five ordered decision rules.
// The rules are evaluated in order; the first match wins.
type Router struct{}

func NewRouter() *Router { return &Router{} }

func (r *Router) Route(task models.SectionRefinementTask, cfg interfaces.RoutingConfig) models.RouterDecision {
	switch {
	case hasCriticalStructural(task.SourceIssues):
		return decide(task, models.FixActionFullRegenerate, models.ExecutorPlanner,
			estimatedTokens(cfg, cfg.TokenCosts.FullRegenerate), "critical structural issue requires full lesson replan")

	case hasCriterion(task.SourceIssues, models.CriterionFactualAccuracy):
		return decide(task, models.FixActionRegenerateSection, models.ExecutorSectionExpander,
			estimatedTokens(cfg, cfg.TokenCosts.SectionExpander), "factual error requires grounded regeneration, overriding prefer_surgical")

	case len(task.SourceIssues) >= 3:
		return decide(task, models.FixActionRegenerateSection, models.ExecutorSectionExpander,
			estimatedTokens(cfg, cfg.TokenCosts.SectionExpander), "three or more issues exceed surgical-edit scope")

	case task.Priority == models.SeverityMinor || onlyClarityOrEngagement(task.SourceIssues):
		return decide(task, models.FixActionSurgicalEdit, models.ExecutorPatcher,
			estimatedTokens(cfg, cfg.TokenCosts.Patcher), "minor/clarity issues are cheapest as a surgical patch")

	case cfg.PreferSurgical:
		return decide(task, models.FixActionSurgicalEdit, models.ExecutorPatcher,
			estimatedTokens(cfg, cfg.TokenCosts.Patcher), "default: caller prefers surgical edits")

	default:
		return decide(task, models.FixActionRegenerateSection, models.ExecutorSectionExpander,
			estimatedTokens(cfg, cfg.TokenCosts.SectionExpander), "default: section regeneration")
	}
}

func hasCriticalStructural(issues []models.TargetedIssue) bool {
	for _, i := range issues {
		if i.Severity != models.SeverityCritical {
			continue
		}
		if i.Criterion == models.CriterionPedagogicalStructure || i.Criterion == models.CriterionLearningObjectiveAlign {
			return true
		}
	}
	return false
}

func hasCriterion(issues []models.TargetedIssue, c models.Criterion) bool {
	for _, i := range issues {
		if i.Criterion == c {
			return true
		}
	}
	return false
}

func onlyClarityOrEngagement(issues []models.TargetedIssue) bool {
	if len(issues) == 0 {
		return false
	}
	for _, i := range issues {
		if i.Criterion != models.CriterionClarityReadability && i.Criterion != models.CriterionEngagementExamples {
			return false
		}
	}
	return true
}

func decide(task models.SectionRefinementTask, action models.FixAction, executor models.Executor, tokens int, reason string) models.RouterDecision {
	return models.RouterDecision{
		Task:            task,
		Action:          action,
		Executor:        executor,
		EstimatedTokens: tokens,
		Reason:          reason,
	}
}

// estimatedTokens reports the chosen executor's worst-case cost, capped by
// the caller's TokenBudget when one is configured and smaller.
func estimatedTokens(cfg interfaces.RoutingConfig, band interfaces.CostBand) int {
	estimate := band.Max
	if estimate == 0 {
		estimate = cfg.TokenBudget
	}
	if cfg.TokenBudget > 0 && cfg.TokenBudget < estimate {
		return cfg.TokenBudget
	}
	return estimate
}

var _ interfaces.Router = (*Router)(nil)
