// Package rag implements C5, the RAG Context Builder.
package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
)

// Builder implements interfaces.RAGContextBuilder.
type Builder struct {
	vector interfaces.VectorStoreClient
	logger *common.Logger
}

func NewBuilder(vector interfaces.VectorStoreClient, logger *common.Logger) *Builder {
	return &Builder{vector: vector, logger: logger}
}

// BuildForSection resolves rag_context_id, optionally queries the vector
// store a second time for the section's search queries, merges and
// de-duplicates by chunk id, ranks by relevance, and trims to
// expectedChunks. Ties in score are broken by chunk id so the result is
// idempotent modulo vector-store nondeterminism.
func (b *Builder) BuildForSection(ctx context.Context, courseID string, section models.SectionBreakdown, expectedChunks int) ([]models.RAGChunk, error) {
	byID := make(map[string]models.RAGChunk)

	if section.RAGContextID != "" {
		primary, err := b.vector.Query(ctx, interfaces.VectorQuery{
			CourseID:  courseID,
			SectionID: section.RAGContextID,
			QueryText: "",
			TopK:      expectedChunks,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve rag_context_id %s: %w", section.RAGContextID, err)
		}
		for _, c := range primary {
			byID[c.ID] = c
		}
	}

	for _, q := range section.SearchQueries {
		extra, err := b.vector.Query(ctx, interfaces.VectorQuery{
			CourseID:  courseID,
			SectionID: section.SectionID,
			QueryText: q,
			TopK:      expectedChunks,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to run secondary query %q: %w", q, err)
		}
		for _, c := range extra {
			if existing, ok := byID[c.ID]; !ok || c.Score > existing.Score {
				byID[c.ID] = c
			}
		}
	}

	merged := make([]models.RAGChunk, 0, len(byID))
	for _, c := range byID {
		merged = append(merged, c)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})

	if expectedChunks > 0 && len(merged) > expectedChunks {
		merged = merged[:expectedChunks]
	}

	return merged, nil
}

var _ interfaces.RAGContextBuilder = (*Builder)(nil)
