package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
)

func TestUpsertThenQueryReturnsStoredChunks(t *testing.T) {
	c := NewInMemoryClient()
	require.NoError(t, c.UpsertChunks(context.Background(), "file-1", []models.RAGChunk{
		{ID: "a", Score: 0.5},
		{ID: "b", Score: 0.8},
	}))

	chunks, err := c.Query(context.Background(), interfaces.VectorQuery{TopK: 10})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "b", chunks[0].ID, "higher score ranks first")
}

func TestQueryBoostsMatchingSectionID(t *testing.T) {
	c := NewInMemoryClient()
	require.NoError(t, c.UpsertChunks(context.Background(), "file-1", []models.RAGChunk{
		{ID: "a", Score: 0.5, SectionID: "sec_1"},
		{ID: "b", Score: 0.5, SectionID: "sec_2"},
	}))

	chunks, err := c.Query(context.Background(), interfaces.VectorQuery{SectionID: "sec_2", TopK: 10})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "b", chunks[0].ID)
}

func TestQueryRespectsTopK(t *testing.T) {
	c := NewInMemoryClient()
	require.NoError(t, c.UpsertChunks(context.Background(), "file-1", []models.RAGChunk{
		{ID: "a", Score: 0.9}, {ID: "b", Score: 0.8}, {ID: "c", Score: 0.7},
	}))

	chunks, err := c.Query(context.Background(), interfaces.VectorQuery{TopK: 1})
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestQueryWithNoChunksIsEmpty(t *testing.T) {
	c := NewInMemoryClient()
	chunks, err := c.Query(context.Background(), interfaces.VectorQuery{TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
