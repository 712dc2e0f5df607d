package retrieval

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/fusionrag/graph"
	"github.com/siherrmann/fusionrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranslator struct {
	cypher       string
	translateErr error
	delay        time.Duration
	repaired     string
	repairErr    error
	repairCalls  int
}

func (f *fakeTranslator) Translate(ctx context.Context, question string) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.translateErr != nil {
		return "", f.translateErr
	}
	return f.cypher, nil
}

func (f *fakeTranslator) RepairQuery(ctx context.Context, question string, failedCypher string, queryErr error) (string, error) {
	f.repairCalls++
	if f.repairErr != nil {
		return "", f.repairErr
	}
	return f.repaired, nil
}

type fakeQueryEmbedder struct {
	embedding []float32
	err       error
}

func (f *fakeQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.embedding, nil
}

type fakeGraphClient struct {
	resultsByCypher map[string]*graph.QueryResult
	queryErrs       map[string]error
	keywordResult   *graph.QueryResult
	keywordErr      error
	keywordCalls    int
}

func (f *fakeGraphClient) Query(ctx context.Context, cypher string, params map[string]any) (*graph.QueryResult, error) {
	if err, ok := f.queryErrs[cypher]; ok {
		return nil, err
	}
	if result, ok := f.resultsByCypher[cypher]; ok {
		return result, nil
	}
	return &graph.QueryResult{Cypher: cypher}, nil
}

func (f *fakeGraphClient) KeywordSearch(ctx context.Context, question string, limit int) (*graph.QueryResult, error) {
	f.keywordCalls++
	if f.keywordErr != nil {
		return nil, f.keywordErr
	}
	if f.keywordResult != nil {
		return f.keywordResult, nil
	}
	return &graph.QueryResult{Cypher: "keyword"}, nil
}

type fakeVectorSearcher struct {
	hits []*model.VectorHit
	err  error
}

func (f *fakeVectorSearcher) Search(ctx context.Context, embedding []float32, limit int, threshold float64, documentRID *uuid.UUID) ([]*model.VectorHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func graphRows(source string) *graph.QueryResult {
	return &graph.QueryResult{
		Cypher: "MATCH (s:Entity)-[r:RELATION]->(o:Entity) RETURN s.name AS subject, r.name AS predicate, o.name AS object, r.source AS source",
		Rows: []map[string]any{
			{"subject": "chunker", "predicate": "feeds", "object": "embedder", "source": source},
		},
	}
}

func newTestEngine(translator *fakeTranslator, embedder *fakeQueryEmbedder, graphClient *fakeGraphClient, vectors *fakeVectorSearcher) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	planner := NewPlanner(translator, embedder)
	return NewEngine(planner, graphClient, vectors, translator, logger)
}

func TestRetrieveGraphMode(t *testing.T) {
	config := model.DefaultQueryConfig()

	t.Run("Returns graph evidence with native scores", func(t *testing.T) {
		translator := &fakeTranslator{cypher: "MATCH good"}
		graphClient := &fakeGraphClient{resultsByCypher: map[string]*graph.QueryResult{
			"MATCH good": graphRows("a.md"),
		}}
		engine := newTestEngine(translator, &fakeQueryEmbedder{}, graphClient, &fakeVectorSearcher{})

		result, err := engine.Retrieve(context.Background(), "who feeds the embedder?", model.ModeGraph, config)
		require.NoError(t, err)
		assert.Equal(t, model.ModeGraph, result.Mode)
		require.Len(t, result.Items, 1)
		assert.Equal(t, 1.0, result.Items[0].Score)
		assert.NotEmpty(t, result.Cypher)
		assert.Equal(t, model.SourceSkipped, result.Outcomes[model.SourceVector].State)
	})

	t.Run("Translation failure is fatal", func(t *testing.T) {
		translator := &fakeTranslator{translateErr: model.ErrModelUnavailable}
		engine := newTestEngine(translator, &fakeQueryEmbedder{}, &fakeGraphClient{}, &fakeVectorSearcher{})

		_, err := engine.Retrieve(context.Background(), "question", model.ModeGraph, config)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrModelUnavailable)
	})

	t.Run("Failed query gets one repaired attempt", func(t *testing.T) {
		translator := &fakeTranslator{cypher: "MATCH broken", repaired: "MATCH fixed"}
		graphClient := &fakeGraphClient{
			queryErrs:       map[string]error{"MATCH broken": model.ErrGraphQuery},
			resultsByCypher: map[string]*graph.QueryResult{"MATCH fixed": graphRows("a.md")},
		}
		engine := newTestEngine(translator, &fakeQueryEmbedder{}, graphClient, &fakeVectorSearcher{})

		result, err := engine.Retrieve(context.Background(), "question", model.ModeGraph, config)
		require.NoError(t, err)
		assert.Equal(t, 1, translator.repairCalls)
		assert.Len(t, result.Items, 1)
		assert.Zero(t, graphClient.keywordCalls)
	})

	t.Run("Keyword fallback when repair fails too", func(t *testing.T) {
		translator := &fakeTranslator{cypher: "MATCH broken", repaired: "MATCH still broken"}
		graphClient := &fakeGraphClient{
			queryErrs: map[string]error{
				"MATCH broken":       model.ErrGraphQuery,
				"MATCH still broken": model.ErrGraphQuery,
			},
			keywordResult: graphRows("a.md"),
		}
		engine := newTestEngine(translator, &fakeQueryEmbedder{}, graphClient, &fakeVectorSearcher{})

		result, err := engine.Retrieve(context.Background(), "question", model.ModeGraph, config)
		require.NoError(t, err)
		assert.Equal(t, 1, graphClient.keywordCalls)
		assert.Len(t, result.Items, 1)
	})

	t.Run("Keyword fallback when the query matches nothing", func(t *testing.T) {
		translator := &fakeTranslator{cypher: "MATCH empty"}
		graphClient := &fakeGraphClient{keywordResult: graphRows("a.md")}
		engine := newTestEngine(translator, &fakeQueryEmbedder{}, graphClient, &fakeVectorSearcher{})

		result, err := engine.Retrieve(context.Background(), "question", model.ModeGraph, config)
		require.NoError(t, err)
		assert.Equal(t, 1, graphClient.keywordCalls)
		assert.Len(t, result.Items, 1)
	})

	t.Run("Fatal when every graph path fails", func(t *testing.T) {
		translator := &fakeTranslator{cypher: "MATCH broken", repairErr: model.ErrModelUnavailable}
		graphClient := &fakeGraphClient{
			queryErrs:  map[string]error{"MATCH broken": model.ErrGraphQuery},
			keywordErr: model.ErrGraphQuery,
		}
		engine := newTestEngine(translator, &fakeQueryEmbedder{}, graphClient, &fakeVectorSearcher{})

		_, err := engine.Retrieve(context.Background(), "question", model.ModeGraph, config)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrGraphQuery)
	})
}

func TestRetrieveVectorMode(t *testing.T) {
	config := model.DefaultQueryConfig()
	now := time.Now()

	t.Run("Returns ranked vector evidence", func(t *testing.T) {
		vectors := &fakeVectorSearcher{hits: []*model.VectorHit{
			vectorHit("a.md", 0.9, now),
			vectorHit("b.md", 0.7, now),
		}}
		engine := newTestEngine(&fakeTranslator{}, &fakeQueryEmbedder{embedding: []float32{0.1}}, &fakeGraphClient{}, vectors)

		result, err := engine.Retrieve(context.Background(), "question", model.ModeVector, config)
		require.NoError(t, err)
		require.Len(t, result.Items, 2)
		assert.InDelta(t, 0.9, result.Items[0].Score, 0.0001)
		assert.Equal(t, model.SourceSkipped, result.Outcomes[model.SourceGraph].State)
	})

	t.Run("Embedding failure is fatal", func(t *testing.T) {
		engine := newTestEngine(&fakeTranslator{}, &fakeQueryEmbedder{err: model.ErrModelUnavailable}, &fakeGraphClient{}, &fakeVectorSearcher{})

		_, err := engine.Retrieve(context.Background(), "question", model.ModeVector, config)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrModelUnavailable)
	})

	t.Run("Store failure is fatal", func(t *testing.T) {
		vectors := &fakeVectorSearcher{err: model.ErrVectorStore}
		engine := newTestEngine(&fakeTranslator{}, &fakeQueryEmbedder{embedding: []float32{0.1}}, &fakeGraphClient{}, vectors)

		_, err := engine.Retrieve(context.Background(), "question", model.ModeVector, config)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrVectorStore)
	})
}

func TestRetrieveHybridMode(t *testing.T) {
	config := model.DefaultQueryConfig()
	now := time.Now()

	t.Run("Fuses both sources", func(t *testing.T) {
		translator := &fakeTranslator{cypher: "MATCH good"}
		graphClient := &fakeGraphClient{resultsByCypher: map[string]*graph.QueryResult{
			"MATCH good": graphRows("b.md"),
		}}
		vectors := &fakeVectorSearcher{hits: []*model.VectorHit{
			vectorHit("a.md", 0.9, now),
			vectorHit("b.md", 0.7, now),
		}}
		engine := newTestEngine(translator, &fakeQueryEmbedder{embedding: []float32{0.1}}, graphClient, vectors)

		result, err := engine.Retrieve(context.Background(), "question", model.ModeHybrid, config)
		require.NoError(t, err)
		require.Len(t, result.Items, 2)

		// The document present in both sources outranks the higher
		// vector-only hit at alpha 0.5.
		assert.Equal(t, model.DocumentRID("b.md").String(), result.Items[0].Key)
		assert.InDelta(t, 0.85, result.Items[0].Score, 0.0001)
		assert.Equal(t, model.SourceOK, result.Outcomes[model.SourceGraph].State)
		assert.Equal(t, model.SourceOK, result.Outcomes[model.SourceVector].State)
	})

	t.Run("Degrades to vector evidence when the graph fails", func(t *testing.T) {
		translator := &fakeTranslator{translateErr: model.ErrModelUnavailable}
		vectors := &fakeVectorSearcher{hits: []*model.VectorHit{vectorHit("a.md", 0.9, now)}}
		engine := newTestEngine(translator, &fakeQueryEmbedder{embedding: []float32{0.1}}, &fakeGraphClient{}, vectors)

		result, err := engine.Retrieve(context.Background(), "question", model.ModeHybrid, config)
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, model.SourceFailed, result.Outcomes[model.SourceGraph].State)
		assert.ErrorIs(t, result.Outcomes[model.SourceGraph].Err, model.ErrModelUnavailable)
		assert.Equal(t, []model.EvidenceSource{model.SourceVector}, result.ContributingSources())
	})

	t.Run("Degrades to graph evidence when the vector store fails", func(t *testing.T) {
		translator := &fakeTranslator{cypher: "MATCH good"}
		graphClient := &fakeGraphClient{resultsByCypher: map[string]*graph.QueryResult{
			"MATCH good": graphRows("a.md"),
		}}
		vectors := &fakeVectorSearcher{err: model.ErrVectorStore}
		engine := newTestEngine(translator, &fakeQueryEmbedder{embedding: []float32{0.1}}, graphClient, vectors)

		result, err := engine.Retrieve(context.Background(), "question", model.ModeHybrid, config)
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, model.SourceFailed, result.Outcomes[model.SourceVector].State)
	})

	t.Run("Fails only when both sources fail", func(t *testing.T) {
		translator := &fakeTranslator{cypher: "MATCH broken", repairErr: model.ErrModelUnavailable}
		graphClient := &fakeGraphClient{
			queryErrs:  map[string]error{"MATCH broken": model.ErrGraphQuery},
			keywordErr: model.ErrGraphQuery,
		}
		vectors := &fakeVectorSearcher{err: model.ErrVectorStore}
		engine := newTestEngine(translator, &fakeQueryEmbedder{embedding: []float32{0.1}}, graphClient, vectors)

		_, err := engine.Retrieve(context.Background(), "question", model.ModeHybrid, config)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrNoEvidence)
		assert.ErrorIs(t, err, model.ErrGraphQuery)
		assert.ErrorIs(t, err, model.ErrVectorStore)
	})
}

func TestRetrieveUnknownMode(t *testing.T) {
	engine := newTestEngine(&fakeTranslator{}, &fakeQueryEmbedder{}, &fakeGraphClient{}, &fakeVectorSearcher{})

	_, err := engine.Retrieve(context.Background(), "question", model.Mode("telepathy"), model.DefaultQueryConfig())
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	config := model.DefaultQueryConfig()
	now := time.Now()

	t.Run("Reports every mode with results and latencies", func(t *testing.T) {
		translator := &fakeTranslator{cypher: "MATCH good"}
		graphClient := &fakeGraphClient{resultsByCypher: map[string]*graph.QueryResult{
			"MATCH good": graphRows("b.md"),
		}}
		vectors := &fakeVectorSearcher{hits: []*model.VectorHit{
			vectorHit("a.md", 0.9, now),
			vectorHit("b.md", 0.7, now),
		}}
		engine := newTestEngine(translator, &fakeQueryEmbedder{embedding: []float32{0.1}}, graphClient, vectors)

		outcomes := engine.Compare(context.Background(), "question", config)
		require.Len(t, outcomes, 3)

		for _, mode := range model.Modes() {
			outcome := outcomes[mode]
			require.NotNil(t, outcome, "missing outcome for mode %v", mode)
			require.NoError(t, outcome.Err)
			assert.Equal(t, mode, outcome.Result.Mode)
		}

		assert.Len(t, outcomes[model.ModeGraph].Result.Items, 1)
		assert.Len(t, outcomes[model.ModeVector].Result.Items, 2)
		assert.Len(t, outcomes[model.ModeHybrid].Result.Items, 2)
	})

	t.Run("One failing mode does not abort the others", func(t *testing.T) {
		translator := &fakeTranslator{translateErr: model.ErrModelUnavailable}
		vectors := &fakeVectorSearcher{hits: []*model.VectorHit{vectorHit("a.md", 0.9, now)}}
		engine := newTestEngine(translator, &fakeQueryEmbedder{embedding: []float32{0.1}}, &fakeGraphClient{}, vectors)

		outcomes := engine.Compare(context.Background(), "question", config)

		require.Error(t, outcomes[model.ModeGraph].Err)
		require.NoError(t, outcomes[model.ModeVector].Err)
		require.NoError(t, outcomes[model.ModeHybrid].Err)
		assert.Equal(t, model.SourceFailed, outcomes[model.ModeHybrid].Result.Outcomes[model.SourceGraph].State)
	})

	t.Run("Mode latency covers query translation", func(t *testing.T) {
		translator := &fakeTranslator{cypher: "MATCH good", delay: 20 * time.Millisecond}
		graphClient := &fakeGraphClient{resultsByCypher: map[string]*graph.QueryResult{
			"MATCH good": graphRows("a.md"),
		}}
		engine := newTestEngine(translator, &fakeQueryEmbedder{embedding: []float32{0.1}}, graphClient, &fakeVectorSearcher{})

		outcomes := engine.Compare(context.Background(), "question", config)

		require.NoError(t, outcomes[model.ModeGraph].Err)
		assert.GreaterOrEqual(t, outcomes[model.ModeGraph].Latency, translator.delay)
		assert.GreaterOrEqual(t, outcomes[model.ModeHybrid].Latency, translator.delay)
	})

	t.Run("All modes fail when both backends fail", func(t *testing.T) {
		translator := &fakeTranslator{translateErr: fmt.Errorf("no model")}
		embedder := &fakeQueryEmbedder{err: fmt.Errorf("no model either")}
		engine := newTestEngine(translator, embedder, &fakeGraphClient{}, &fakeVectorSearcher{})

		outcomes := engine.Compare(context.Background(), "question", config)
		for _, mode := range model.Modes() {
			assert.Error(t, outcomes[mode].Err, "mode %v should fail", mode)
		}
	})
}
