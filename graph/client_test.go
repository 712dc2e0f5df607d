package graph

import (
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/fusionrag/model"
	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords(t *testing.T) {
	t.Run("Strips stopwords and punctuation", func(t *testing.T) {
		keywords := ExtractKeywords("What is the purpose of the fusion engine?")
		assert.Equal(t, []string{"purpose", "fusion", "engine"}, keywords)
	})

	t.Run("Keeps case of remaining terms", func(t *testing.T) {
		keywords := ExtractKeywords("Who founded Neo4j?")
		assert.Equal(t, []string{"founded", "Neo4j"}, keywords)
	})

	t.Run("Drops single characters", func(t *testing.T) {
		keywords := ExtractKeywords("a b c chunking")
		assert.Equal(t, []string{"chunking"}, keywords)
	})

	t.Run("Empty question yields no keywords", func(t *testing.T) {
		keywords := ExtractKeywords("what is the??")
		assert.Empty(t, keywords)
	})
}

func TestQueryResultTriplets(t *testing.T) {
	t.Run("Maps canonical columns", func(t *testing.T) {
		result := &QueryResult{
			Cypher: "MATCH ...",
			Rows: []map[string]any{
				{"subject": "chunker", "predicate": "splits", "object": "documents", "source": "docs/arch.md"},
			},
		}

		triplets := result.Triplets()
		assert.Len(t, triplets, 1)
		assert.Equal(t, "chunker", triplets[0].Subject)
		assert.Equal(t, "splits", triplets[0].Predicate)
		assert.Equal(t, "documents", triplets[0].Object)
		assert.Equal(t, "docs/arch.md", triplets[0].Source)
		assert.Equal(t, model.DocumentRID("docs/arch.md"), triplets[0].DocumentRID)
	})

	t.Run("Flattens unexpected row shapes", func(t *testing.T) {
		result := &QueryResult{
			Rows: []map[string]any{
				{"count": int64(42)},
			},
		}

		triplets := result.Triplets()
		assert.Len(t, triplets, 1)
		assert.Equal(t, "count=42", triplets[0].Subject)
		assert.Equal(t, uuid.Nil, triplets[0].DocumentRID)
	})

	t.Run("Empty result yields no triplets", func(t *testing.T) {
		result := &QueryResult{Cypher: "MATCH ..."}
		assert.Empty(t, result.Triplets())
	})
}
