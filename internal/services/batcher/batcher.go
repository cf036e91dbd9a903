// Package batcher implements C8, the parallel-refinement batcher
//: groups SectionRefinementTasks into concurrency-capped
// batches where no two tasks in a batch touch adjacent sections.
package batcher

import (
	"sort"

	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
)

// Batcher implements interfaces.Batcher.
type Batcher struct{}

func NewBatcher() *Batcher { return &Batcher{} }

// Batch sorts tasks by priority (critical > major > minor) then greedily
// places each into the earliest batch that accepts it: a batch accepts a
// task only if every section index already in that batch is farther than
// adjacentSectionGap from the task's section index, and the batch has
// fewer than maxConcurrency tasks.
func (b *Batcher) Batch(tasks []models.SectionRefinementTask, maxConcurrency, adjacentSectionGap int) [][]models.SectionRefinementTask {
	if maxConcurrency <= 0 {
		maxConcurrency = 3
	}

	ordered := make([]models.SectionRefinementTask, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.Rank() < ordered[j].Priority.Rank()
	})

	var batches [][]models.SectionRefinementTask
	var batchIndices [][]int

	for _, task := range ordered {
		idx := sectionIndex(task.SectionID)

		placed := false
		for b := range batches {
			if len(batches[b]) >= maxConcurrency {
				continue
			}
			if fitsAdjacency(idx, batchIndices[b], adjacentSectionGap) {
				batches[b] = append(batches[b], task)
				batchIndices[b] = append(batchIndices[b], idx)
				placed = true
				break
			}
		}
		if !placed {
			batches = append(batches, []models.SectionRefinementTask{task})
			batchIndices = append(batchIndices, []int{idx})
		}
	}

	return batches
}

func fitsAdjacency(idx int, existing []int, gap int) bool {
	for _, e := range existing {
		diff := idx - e
		if diff < 0 {
			diff = -diff
		}
		if diff <= gap {
			return false
		}
	}
	return true
}

var _ interfaces.Batcher = (*Batcher)(nil)
