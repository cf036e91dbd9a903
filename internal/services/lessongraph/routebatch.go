package lessongraph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/services/lessonmd"
)

// groupIssuesIntoTasks collects the Judge's TargetedIssues by target section,
// one SectionRefinementTask per section, its priority the most severe of its
// issues.
func groupIssuesIntoTasks(lessonID string, issues []models.TargetedIssue) []models.SectionRefinementTask {
	bySection := make(map[string]*models.SectionRefinementTask)
	var order []string

	for _, issue := range issues {
		t, ok := bySection[issue.TargetSectionID]
		if !ok {
			t = &models.SectionRefinementTask{
				ID:        fmt.Sprintf("%s-task-%s", lessonID, issue.TargetSectionID),
				SectionID: issue.TargetSectionID,
				Priority:  issue.Severity,
			}
			bySection[issue.TargetSectionID] = t
			order = append(order, issue.TargetSectionID)
		}
		t.SourceIssues = append(t.SourceIssues, issue)
		if issue.Severity.Rank() < t.Priority.Rank() {
			t.Priority = issue.Severity
		}
	}

	tasks := make([]models.SectionRefinementTask, 0, len(order))
	for _, id := range order {
		tasks = append(tasks, *bySection[id])
	}
	return tasks
}

// routeAndBatch runs the Router over every task derived from the Judge's
// issues, then groups the resulting decisions into concurrency-safe batches
// (C7 + C8). A task routed to FULL_REGENERATE short-circuits the whole
// lesson back to GENERATE rather than joining a batch — the caller
// (Graph.Run) is responsible for noticing that decision.
func (g *Graph) routeAndBatch(state *GraphState, issues []models.TargetedIssue) ([]models.RouterDecision, [][]models.RouterDecision) {
	tasks := groupIssuesIntoTasks(state.LessonID, issues)

	var decisions []models.RouterDecision
	var batchable []models.SectionRefinementTask
	byTask := make(map[string]models.RouterDecision)

	for _, task := range tasks {
		if state.isLocked(task.SectionID) {
			continue
		}
		decision := g.router.Route(task, g.routingConfig)
		decisions = append(decisions, decision)
		byTask[task.ID] = decision
		if decision.Action != models.FixActionFullRegenerate {
			batchable = append(batchable, task)
		}
	}

	rawBatches := g.batcher.Batch(batchable, g.maxConcurrentPatchers, g.adjacentSectionGap)

	decisionBatches := make([][]models.RouterDecision, 0, len(rawBatches))
	for _, batch := range rawBatches {
		var db []models.RouterDecision
		for _, t := range batch {
			db = append(db, byTask[t.ID])
		}
		decisionBatches = append(decisionBatches, db)
	}
	return decisions, decisionBatches
}

// executeTasks runs every batch's tasks concurrently (batches themselves run
// sequentially, since each batch's membership was chosen precisely so its
// own tasks are safe to run together) and merges every executor's output
// into state.GeneratedContent.
func (g *Graph) executeTasks(ctx context.Context, state *GraphState, spec models.LessonSpec, chunks map[string][]models.RAGChunk, batches [][]models.RouterDecision) error {
	content := state.GeneratedContent

	for _, batch := range batches {
		updates := make(map[string]string)
		var mu sync.Mutex
		var wg sync.WaitGroup
		errs := make([]error, len(batch))

		for i, decision := range batch {
			wg.Add(1)
			go func(i int, decision models.RouterDecision) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						errs[i] = fmt.Errorf("executor %s panicked: %v", decision.Executor, r)
					}
				}()

				executor, ok := g.executors[decision.Executor]
				if !ok {
					errs[i] = fmt.Errorf("no executor registered for %q", decision.Executor)
					return
				}

				start := time.Now()
				out, err := executor.Execute(ctx, decision.Task, spec, content, chunks[decision.Task.SectionID])
				duration := time.Since(start).Milliseconds()
				if err != nil {
					errs[i] = fmt.Errorf("execute section %s via %s: %w", decision.Task.SectionID, decision.Executor, err)
					return
				}

				_, parsed := lessonmd.Parse(out)
				body := out
				if sec, ok := lessonmd.SectionByID(parsed, decision.Task.SectionID); ok {
					body = sec.Body
				}

				mu.Lock()
				updates[decision.Task.SectionID] = body
				state.SectionEditCount[decision.Task.SectionID]++
				state.TargetedRefinementTokensUsed += decision.EstimatedTokens
				state.recordNode(models.NodeCost{
					NodeName: "EXECUTE_TASKS", Model: state.ModelUsed,
					OutputTokens: decision.EstimatedTokens, DurationMs: duration, OK: true,
				})
				mu.Unlock()
			}(i, decision)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return err
			}
		}
		content = lessonmd.MergeSections(content, updates)
	}

	state.GeneratedContent = content
	return nil
}
