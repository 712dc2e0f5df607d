package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/siherrmann/fusionrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertTestDocument(t *testing.T, documents *DocumentsDBHandler, source string) *model.Document {
	t.Helper()
	doc := model.NewDocument(source, "content used for chunking", nil)
	require.NoError(t, documents.UpsertDocument(doc))
	t.Cleanup(func() { documents.DeleteDocument(doc.RID) })
	return doc
}

func testChunks(doc *model.Document, embeddings ...[]float32) []*model.Chunk {
	chunks := make([]*model.Chunk, len(embeddings))
	pos := 0
	for i, embedding := range embeddings {
		content := fmt.Sprintf("chunk %d of %s", i, doc.Source)
		chunks[i] = &model.Chunk{
			ID:          model.ChunkID(doc.RID, i),
			DocumentRID: doc.RID,
			Index:       i,
			Content:     content,
			StartPos:    pos,
			EndPos:      pos + len(content),
			Embedding:   embedding,
		}
		pos += len(content)
	}
	return chunks
}

func TestVectorsNewVectorsDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewVectorsDBHandler", func(t *testing.T) {
		vectorsDbHandler, err := NewVectorsDBHandler(database, testEmbeddingDim, true)
		assert.NoError(t, err, "Expected NewVectorsDBHandler to not return an error")
		require.NotNil(t, vectorsDbHandler, "Expected NewVectorsDBHandler to return a non-nil instance")
	})

	t.Run("Invalid call NewVectorsDBHandler with nil database", func(t *testing.T) {
		_, err := NewVectorsDBHandler(nil, testEmbeddingDim, false)
		assert.Error(t, err, "Expected error when creating VectorsDBHandler with nil database")
	})
}

func TestVectorsUpsertChunks(t *testing.T) {
	documents, vectors := initHandlers(t)
	doc := insertTestDocument(t, documents, "docs/upsert_chunks.md")

	t.Run("Upsert and select chunks", func(t *testing.T) {
		chunks := testChunks(doc, []float32{1, 0, 0, 0}, []float32{0, 1, 0, 0})
		require.NoError(t, vectors.UpsertChunks(context.Background(), chunks))

		stored, err := vectors.SelectChunksByDocument(doc.RID)
		assert.NoError(t, err)
		assert.Len(t, stored, 2, "Expected both chunks to be stored")
	})

	t.Run("Dimension mismatch fails with vector store error", func(t *testing.T) {
		chunks := testChunks(doc, []float32{1, 0})
		err := vectors.UpsertChunks(context.Background(), chunks)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrVectorStore, "Expected dimension mismatch to be a vector store error")
	})

	t.Run("Re-upsert replaces instead of duplicating", func(t *testing.T) {
		chunks := testChunks(doc, []float32{1, 0, 0, 0})
		require.NoError(t, vectors.UpsertChunks(context.Background(), chunks))
		require.NoError(t, vectors.UpsertChunks(context.Background(), chunks))

		stored, err := vectors.SelectChunk(chunks[0].ID)
		assert.NoError(t, err)
		assert.Equal(t, chunks[0].Content, stored.Content)
	})
}

func TestVectorsSearch(t *testing.T) {
	documents, vectors := initHandlers(t)
	docA := insertTestDocument(t, documents, "docs/search_a.md")
	docB := insertTestDocument(t, documents, "docs/search_b.md")

	require.NoError(t, vectors.UpsertChunks(context.Background(), testChunks(docA, []float32{1, 0, 0, 0})))
	require.NoError(t, vectors.UpsertChunks(context.Background(), testChunks(docB, []float32{0, 1, 0, 0})))

	t.Run("Ranks by cosine similarity descending", func(t *testing.T) {
		hits, err := vectors.Search(context.Background(), []float32{1, 0, 0, 0}, 10, 0, nil)
		require.NoError(t, err)
		require.Len(t, hits, 2)

		assert.Equal(t, docA.RID, hits[0].Chunk.DocumentRID, "Expected the aligned vector first")
		assert.InDelta(t, 1.0, hits[0].Chunk.Similarity, 0.0001, "Expected similarity 1 for identical vectors")
		assert.Greater(t, hits[0].Chunk.Similarity, hits[1].Chunk.Similarity)
		assert.Equal(t, docA.Source, hits[0].DocumentSource, "Expected the parent document source on the hit")
		assert.False(t, hits[0].DocumentCreatedAt.IsZero(), "Expected the parent ingestion time on the hit")
	})

	t.Run("Similarity threshold filters hits", func(t *testing.T) {
		hits, err := vectors.Search(context.Background(), []float32{1, 0, 0, 0}, 10, 0.9, nil)
		require.NoError(t, err)
		assert.Len(t, hits, 1, "Expected only the aligned vector above the threshold")
	})

	t.Run("Document filter scopes the search", func(t *testing.T) {
		hits, err := vectors.Search(context.Background(), []float32{1, 0, 0, 0}, 10, 0, &docB.RID)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, docB.RID, hits[0].Chunk.DocumentRID)
	})

	t.Run("Limit caps the result", func(t *testing.T) {
		hits, err := vectors.Search(context.Background(), []float32{1, 0, 0, 0}, 1, 0, nil)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})
}

func TestVectorsDeleteByDocument(t *testing.T) {
	documents, vectors := initHandlers(t)
	doc := insertTestDocument(t, documents, "docs/delete_chunks.md")

	chunks := testChunks(doc, []float32{1, 0, 0, 0}, []float32{0, 1, 0, 0})
	require.NoError(t, vectors.UpsertChunks(context.Background(), chunks))

	deleted, err := vectors.DeleteByDocument(context.Background(), doc.RID)
	assert.NoError(t, err)
	assert.Equal(t, 2, deleted, "Expected both chunks to be deleted")

	stored, err := vectors.SelectChunksByDocument(doc.RID)
	assert.NoError(t, err)
	assert.Empty(t, stored, "Expected no chunks after delete")
}

func TestVectorsCountChunks(t *testing.T) {
	documents, vectors := initHandlers(t)
	doc := insertTestDocument(t, documents, "docs/count_chunks.md")

	before, err := vectors.CountChunks()
	require.NoError(t, err)

	require.NoError(t, vectors.UpsertChunks(context.Background(), testChunks(doc, []float32{1, 0, 0, 0})))

	after, err := vectors.CountChunks()
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
}

func TestVectorsClearChunks(t *testing.T) {
	documents, vectors := initHandlers(t)
	doc := insertTestDocument(t, documents, "docs/clear_chunks.md")

	require.NoError(t, vectors.UpsertChunks(context.Background(), testChunks(doc, []float32{1, 0, 0, 0}, []float32{0, 1, 0, 0})))

	before, err := vectors.CountChunks()
	require.NoError(t, err)
	require.GreaterOrEqual(t, before, int64(2))

	deleted, err := vectors.ClearChunks(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, before, deleted, "Expected every indexed chunk to be deleted")

	after, err := vectors.CountChunks()
	require.NoError(t, err)
	assert.Equal(t, int64(0), after)
}
