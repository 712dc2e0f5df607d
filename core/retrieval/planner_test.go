package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/siherrmann/fusionrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	t.Run("Graph plan carries the translated query", func(t *testing.T) {
		planner := NewPlanner(&fakeTranslator{cypher: "MATCH (n) RETURN n"}, &fakeQueryEmbedder{})

		request, err := planner.Plan(context.Background(), "question", model.ModeGraph)
		require.NoError(t, err)
		assert.Equal(t, "MATCH (n) RETURN n", request.Cypher)
		assert.Nil(t, request.Embedding)
	})

	t.Run("Vector plan carries the query embedding", func(t *testing.T) {
		planner := NewPlanner(&fakeTranslator{}, &fakeQueryEmbedder{embedding: []float32{0.1, 0.2}})

		request, err := planner.Plan(context.Background(), "question", model.ModeVector)
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2}, request.Embedding)
		assert.Empty(t, request.Cypher)
	})

	t.Run("Hybrid plan carries both halves", func(t *testing.T) {
		planner := NewPlanner(&fakeTranslator{cypher: "MATCH (n) RETURN n"}, &fakeQueryEmbedder{embedding: []float32{0.1}})

		request, err := planner.Plan(context.Background(), "question", model.ModeHybrid)
		require.NoError(t, err)
		assert.NotEmpty(t, request.Cypher)
		assert.NotEmpty(t, request.Embedding)
		assert.NoError(t, request.GraphPlanErr)
		assert.NoError(t, request.VectorPlanErr)
	})

	t.Run("Hybrid plan survives one failed half", func(t *testing.T) {
		planner := NewPlanner(&fakeTranslator{translateErr: fmt.Errorf("no model")}, &fakeQueryEmbedder{embedding: []float32{0.1}})

		request, err := planner.Plan(context.Background(), "question", model.ModeHybrid)
		require.NoError(t, err)
		assert.Error(t, request.GraphPlanErr)
		assert.NotEmpty(t, request.Embedding)
	})

	t.Run("Hybrid plan fails when both halves fail", func(t *testing.T) {
		planner := NewPlanner(&fakeTranslator{translateErr: fmt.Errorf("no model")}, &fakeQueryEmbedder{err: fmt.Errorf("no model either")})

		_, err := planner.Plan(context.Background(), "question", model.ModeHybrid)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrNoEvidence)
	})

	t.Run("Unknown mode fails", func(t *testing.T) {
		planner := NewPlanner(&fakeTranslator{}, &fakeQueryEmbedder{})

		_, err := planner.Plan(context.Background(), "question", model.Mode("telepathy"))
		assert.Error(t, err)
	})
}
