package pipeline

import (
	"context"
	"log/slog"

	"github.com/siherrmann/fusionrag/helper"
	"github.com/siherrmann/fusionrag/model"
)

// ChunkerFunctions defines the interface for document chunking.
type ChunkerFunctions interface {
	Chunk(document *model.Document) ([]*model.Chunk, error)
}

// EmbedderFunctions defines the interface for text embedding.
type EmbedderFunctions interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelID() string
	Dimension() int
}

// TripletExtractFunc extracts knowledge triplets from a chunk of text.
// Attached to a pipeline it feeds the graph side of ingestion.
type TripletExtractFunc func(ctx context.Context, text string, source string) ([]model.Triplet, error)

// ProcessResult holds everything a processed document contributes to
// the two retrieval backends.
type ProcessResult struct {
	Document *model.Document
	Chunks   []*model.Chunk
	Triplets []model.Triplet
}

// Pipeline runs a document through chunking, embedding and optional
// triplet extraction.
type Pipeline struct {
	chunker  ChunkerFunctions
	embedder EmbedderFunctions
	extract  TripletExtractFunc
	log      *slog.Logger
}

// NewPipeline creates a processing pipeline. The extractor may be nil,
// in which case no triplets are produced.
func NewPipeline(chunker ChunkerFunctions, embedder EmbedderFunctions, extract TripletExtractFunc, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		chunker:  chunker,
		embedder: embedder,
		extract:  extract,
		log:      logger,
	}
}

// Process chunks and embeds the document. Triplet extraction failures
// on a single chunk are logged and skipped, the vector side of the
// result stays complete.
func (p *Pipeline) Process(ctx context.Context, document *model.Document) (*ProcessResult, error) {
	chunks, err := p.chunker.Chunk(document)
	if err != nil {
		return nil, helper.NewError("chunk document", err)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, helper.NewError("embed chunks", err)
	}
	for i, embedding := range embeddings {
		chunks[i].Embedding = embedding
	}

	result := &ProcessResult{
		Document: document,
		Chunks:   chunks,
	}

	if p.extract != nil {
		for _, chunk := range chunks {
			triplets, err := p.extract(ctx, chunk.Content, document.Source)
			if err != nil {
				p.log.Warn("Triplet extraction failed for chunk",
					slog.String("chunk", chunk.ID),
					slog.Any("error", err))
				continue
			}
			result.Triplets = append(result.Triplets, triplets...)
		}
	}

	p.log.Info("Processed document",
		slog.String("source", document.Source),
		slog.Int("chunks", len(result.Chunks)),
		slog.Int("triplets", len(result.Triplets)))

	return result, nil
}
