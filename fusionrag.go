package fusionrag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/siherrmann/fusionrag/core/pipeline"
	"github.com/siherrmann/fusionrag/core/retrieval"
	"github.com/siherrmann/fusionrag/database"
	"github.com/siherrmann/fusionrag/graph"
	"github.com/siherrmann/fusionrag/helper"
	"github.com/siherrmann/fusionrag/llm"
	"github.com/siherrmann/fusionrag/model"
	loadSql "github.com/siherrmann/fusionrag/sql"
)

// FusionRAG provides a unified interface to ingestion and hybrid
// retrieval over the two backends: the pgvector index and the Neo4j
// fact graph.
type FusionRAG struct {
	DB        *helper.Database
	Documents *database.DocumentsDBHandler
	Vectors   *database.VectorsDBHandler
	Graph     *graph.Client
	LLM       *llm.Client
	Pipeline  *pipeline.Pipeline
	Embedder  *pipeline.Embedder
	Engine    *retrieval.Engine
	Config    *model.Config
	// Logging
	log *slog.Logger
}

// New creates a FusionRAG instance with all backends connected. Both
// stores and the language model must be reachable at startup; retrieval
// time failures degrade per request instead.
func New(ctx context.Context, config *model.Config, dbConfig *helper.DatabaseConfiguration) (*FusionRAG, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("fusionrag", dbConfig, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create handlers in dependency order (documents first, then vectors)
	// force=false to not reload if functions already exist
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	embedder, err := pipeline.NewEmbedder(config.EmbeddingModel, config.ModelDir, config.EmbeddingBatchSize, logger)
	if err != nil {
		return nil, helper.NewError("create embedder", err)
	}

	vectors, err := database.NewVectorsDBHandler(db, embedder.Dimension(), false)
	if err != nil {
		return nil, helper.NewError("create vectors handler", err)
	}

	graphClient, err := graph.NewClient(ctx, config.Neo4jURI, config.Neo4jUser, config.Neo4jPassword, logger)
	if err != nil {
		return nil, helper.NewError("create graph client", err)
	}

	llmClient, err := llm.NewClient(ctx, config.OllamaURL, config.OllamaModel, config.LLMTimeout, logger)
	if err != nil {
		return nil, helper.NewError("create llm client", err)
	}

	chunker, err := pipeline.NewChunker(config.ChunkSize, config.ChunkOverlap, config.MinChunkSize)
	if err != nil {
		return nil, helper.NewError("create chunker", err)
	}

	ingestPipeline := pipeline.NewPipeline(chunker, embedder, llmClient.ExtractTriplets, logger)

	planner := retrieval.NewPlanner(llmClient, embedder)
	engine := retrieval.NewEngine(planner, graphClient, vectors, llmClient, logger)

	return &FusionRAG{
		DB:        db,
		Documents: documents,
		Vectors:   vectors,
		Graph:     graphClient,
		LLM:       llmClient,
		Pipeline:  ingestPipeline,
		Embedder:  embedder,
		Engine:    engine,
		Config:    config,
		log:       logger,
	}, nil
}

// Close releases the database pool, the graph driver and the embedding
// model session.
func (f *FusionRAG) Close(ctx context.Context) error {
	var errs []error
	if f.Embedder != nil {
		if err := f.Embedder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if f.Graph != nil {
		if err := f.Graph.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if f.DB != nil && f.DB.Instance != nil {
		if err := f.DB.Instance.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return helper.NewError("close fusionrag", fmt.Errorf("%v", errs))
	}
	return nil
}

// IngestStats summarizes one document's ingestion.
type IngestStats struct {
	Document *model.Document
	Chunks   int
	Triplets int
}

// IngestFile reads, chunks, embeds and loads one source file into both
// backends. Re-ingesting the same path replaces the previous chunks and
// graph edges instead of accumulating stale ones. The vector index is
// the mandatory half; a graph load failure leaves a document marked as
// not graph loaded rather than failing the ingest.
func (f *FusionRAG) IngestFile(ctx context.Context, path string) (*IngestStats, error) {
	content, _, err := pipeline.ReadDocument(path)
	if err != nil {
		return nil, helper.NewError("read document", err)
	}

	doc := model.NewDocument(path, content, nil)

	result, err := f.Pipeline.Process(ctx, doc)
	if err != nil {
		return nil, helper.NewError("process document", err)
	}

	if err := f.Documents.UpsertDocument(doc); err != nil {
		return nil, helper.NewError("upsert document", err)
	}

	deleted, err := f.Vectors.DeleteByDocument(ctx, doc.RID)
	if err != nil {
		return nil, helper.NewError("delete stale chunks", err)
	}
	if deleted > 0 {
		f.log.Info("Replaced stale chunks", slog.String("source", doc.Source), slog.Int("deleted", deleted))
	}

	if err := f.Vectors.UpsertChunks(ctx, result.Chunks); err != nil {
		return nil, helper.NewError("upsert chunks", err)
	}
	doc.Metadata[model.MetaVectorIndexed] = true

	if len(result.Triplets) > 0 {
		if err := f.Graph.DeleteBySource(ctx, doc.Source); err != nil {
			f.log.Warn("Failed to clear stale graph edges", slog.String("source", doc.Source), slog.Any("error", err))
		}
		loaded, err := f.Graph.LoadTriplets(ctx, result.Triplets)
		if err != nil {
			f.log.Warn("Graph load incomplete", slog.String("source", doc.Source), slog.Int("loaded", loaded), slog.Any("error", err))
			doc.Metadata[model.MetaGraphLoaded] = false
		} else {
			doc.Metadata[model.MetaGraphLoaded] = true
		}
	} else {
		doc.Metadata[model.MetaGraphLoaded] = false
	}

	if err := f.Documents.UpdateDocumentMetadata(doc.RID, doc.Metadata); err != nil {
		return nil, helper.NewError("update document metadata", err)
	}

	f.log.Info("Ingested document",
		slog.String("source", doc.Source),
		slog.Int("chunks", len(result.Chunks)),
		slog.Int("triplets", len(result.Triplets)))

	return &IngestStats{
		Document: doc,
		Chunks:   len(result.Chunks),
		Triplets: len(result.Triplets),
	}, nil
}

// Retrieve answers the question in the requested mode.
func (f *FusionRAG) Retrieve(ctx context.Context, question string, mode model.Mode) (*model.RetrievalResult, error) {
	return f.Engine.Retrieve(ctx, question, mode, model.QueryConfigFrom(f.Config))
}

// Compare runs every retrieval mode for one question and reports each
// mode's result or failure with its latency.
func (f *FusionRAG) Compare(ctx context.Context, question string) map[model.Mode]*model.ModeOutcome {
	return f.Engine.Compare(ctx, question, model.QueryConfigFrom(f.Config))
}

// Ask retrieves evidence in the requested mode and generates a grounded
// answer from it.
func (f *FusionRAG) Ask(ctx context.Context, question string, mode model.Mode) (string, *model.RetrievalResult, error) {
	result, err := f.Retrieve(ctx, question, mode)
	if err != nil {
		return "", nil, err
	}
	if len(result.Items) == 0 {
		return "No relevant evidence was found for this question.", result, nil
	}

	answer, err := f.LLM.Answer(ctx, question, EvidenceContext(result))
	if err != nil {
		return "", result, helper.NewError("generate answer", err)
	}

	return answer, result, nil
}

// Stats reports the corpus size.
type Stats struct {
	Documents int
	Chunks    int64
}

// ClearCorpus removes every document, indexed chunk and graph fact.
func (f *FusionRAG) ClearCorpus(ctx context.Context) error {
	chunks, err := f.Vectors.ClearChunks(ctx)
	if err != nil {
		return helper.NewError("clear chunks", err)
	}

	docs, err := f.Documents.SelectAllDocuments(0)
	if err != nil {
		return helper.NewError("list documents", err)
	}
	for _, doc := range docs {
		if err := f.Documents.DeleteDocument(doc.RID); err != nil {
			return helper.NewError(fmt.Sprintf("delete document %s", doc.Source), err)
		}
	}

	if err := f.Graph.Clear(ctx); err != nil {
		return helper.NewError("clear graph", err)
	}

	f.log.Info("Cleared corpus", slog.Int("documents", len(docs)), slog.Int64("chunks", chunks))
	return nil
}

// CorpusStats counts the ingested documents and indexed chunks.
func (f *FusionRAG) CorpusStats() (*Stats, error) {
	docs, err := f.Documents.SelectAllDocuments(0)
	if err != nil {
		return nil, helper.NewError("count documents", err)
	}
	chunks, err := f.Vectors.CountChunks()
	if err != nil {
		return nil, helper.NewError("count chunks", err)
	}
	return &Stats{Documents: len(docs), Chunks: chunks}, nil
}

// EvidenceContext renders a retrieval result as the context block handed
// to the answer generator: graph facts first, then chunk excerpts.
func EvidenceContext(result *model.RetrievalResult) string {
	var buf strings.Builder

	if result.Cypher != "" {
		buf.WriteString("Graph query: ")
		buf.WriteString(result.Cypher)
		buf.WriteString("\n\n")
	}

	for i, item := range result.Items {
		if item.Graph != nil {
			for _, triplet := range item.Graph.Triplets {
				buf.WriteString(fmt.Sprintf("Fact: %s\n", triplet.String()))
			}
		}
		if item.Vector != nil {
			buf.WriteString(fmt.Sprintf("Excerpt %d (similarity %.2f, %s):\n%s\n", i+1, item.Vector.Similarity, item.Vector.Source, item.Vector.Content))
		}
		buf.WriteString("\n")
	}

	return strings.TrimSpace(buf.String())
}
