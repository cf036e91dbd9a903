// Package vectorstore holds S2/C5's external vector-store collaborator
// contract plus an in-memory fake used by tests and local runs when no real
// vector store is configured ( the vector store itself out
// of scope as an external system).
package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
)

// InMemoryClient implements interfaces.VectorStoreClient without any text
// matching: Query ignores QueryText and CourseID, ranks every stored chunk by
// its stored Score plus a 0.1 boost when the chunk's SectionID equals the
// query's, and breaks ties by chunk id — enough to exercise C5's
// merge/dedup/rank/trim logic deterministically.
type InMemoryClient struct {
	mu     sync.RWMutex
	chunks map[string][]models.RAGChunk // fileID -> chunks
}

func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{chunks: make(map[string][]models.RAGChunk)}
}

func (c *InMemoryClient) UpsertChunks(_ context.Context, fileID string, chunks []models.RAGChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks[fileID] = chunks
	return nil
}

func (c *InMemoryClient) Query(_ context.Context, q interfaces.VectorQuery) ([]models.RAGChunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var all []models.RAGChunk
	for _, chunks := range c.chunks {
		all = append(all, chunks...)
	}

	scored := make([]models.RAGChunk, len(all))
	copy(scored, all)
	for i := range scored {
		if q.SectionID != "" && scored[i].SectionID == q.SectionID {
			scored[i].Score += 0.1
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	topK := q.TopK
	if topK <= 0 || topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

var _ interfaces.VectorStoreClient = (*InMemoryClient)(nil)
