package lessongraph

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/services/lessonmd"
)

// regenerateSections runs the section-expander over each section id
// Self-Review flagged for localized language corruption, merging the
// results back into the document in place. Unlike
// the Router-driven ROUTE_AND_BATCH/EXECUTE_TASKS path, this node is reached
// directly from SELF_REVIEW and always uses the section-expander, since the
// defect here is "wrong script", not a targeted-quality issue with a
// severity-appropriate executor choice.
func (g *Graph) regenerateSections(ctx context.Context, state *GraphState, spec models.LessonSpec, chunks map[string][]models.RAGChunk) (*SectionRegenerationResult, error) {
	start := time.Now()
	_, sections := lessonmd.Parse(state.GeneratedContent)

	updates := make(map[string]string)
	var regenerated []string
	totalTokens := 0

	for _, id := range state.SelfReviewResult.SectionsToRegenerate {
		if state.isLocked(id) {
			continue
		}
		if _, ok := lessonmd.SectionByID(sections, id); !ok {
			continue
		}

		task := models.SectionRefinementTask{
			ID:        fmt.Sprintf("%s-langfix-%s", state.LessonID, id),
			SectionID: id,
			Priority:  models.SeverityCritical,
			SourceIssues: []models.TargetedIssue{{
				Criterion:       models.CriterionClarityReadability,
				Severity:        models.SeverityCritical,
				TargetSectionID: id,
				Description:     "section content is not in the lesson's target language",
				FixAction:       models.FixActionRegenerateSection,
			}},
		}

		newBody, err := g.sectionExpander.Execute(ctx, task, spec, state.GeneratedContent, chunks[id])
		if err != nil {
			return nil, fmt.Errorf("regenerate section %s: %w", id, err)
		}
		_, parsed := lessonmd.Parse(newBody)
		if sec, ok := lessonmd.SectionByID(parsed, id); ok {
			updates[id] = sec.Body
		} else if len(parsed) > 0 {
			updates[id] = parsed[0].Body
		} else {
			updates[id] = newBody
		}
		regenerated = append(regenerated, id)
		state.SectionEditCount[id]++
	}

	merged := lessonmd.MergeSections(state.GeneratedContent, updates)

	return &SectionRegenerationResult{
		MergedContent:  merged,
		RegeneratedIDs: regenerated,
		TokensUsed:     totalTokens,
		DurationMs:     time.Since(start).Milliseconds(),
	}, nil
}
