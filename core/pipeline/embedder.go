package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/fusionrag/helper"
	"github.com/siherrmann/fusionrag/model"
)

// Embedder turns text into dense vectors with a sentence transformer
// model run through hugot's Go backend. One feature extraction pipeline
// serves both document and query embedding, so both sides of a
// similarity comparison come from the same model instance.
type Embedder struct {
	session   *hugot.Session
	pipeline  *pipelines.FeatureExtractionPipeline
	modelName string
	dimension int
	batchSize int
	log       *slog.Logger
}

// NewEmbedder downloads the model if needed and loads it. The embedding
// dimension is probed once at startup so dimension mismatches surface
// before any data is written.
func NewEmbedder(modelName string, modelDir string, batchSize int, logger *slog.Logger) (*Embedder, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %v", batchSize)
	}

	modelPath, err := helper.PrepareModel(modelName, modelDir)
	if err != nil {
		return nil, errors.Join(model.ErrModelUnavailable, err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, errors.Join(model.ErrModelUnavailable, helper.NewError("create hugot session", err))
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, errors.Join(model.ErrModelUnavailable, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr))
		}
		return nil, errors.Join(model.ErrModelUnavailable, helper.NewError("create sentence pipeline", err))
	}

	embedder := &Embedder{
		session:   session,
		pipeline:  sentencePipeline,
		modelName: modelName,
		batchSize: batchSize,
		log:       logger,
	}

	probe, err := embedder.EmbedQuery(context.Background(), "dimension probe")
	if err != nil {
		embedder.Close()
		return nil, err
	}
	embedder.dimension = len(probe)

	logger.Info("Loaded embedding model", slog.String("model", modelName), slog.Int("dimension", embedder.dimension))

	return embedder, nil
}

// ModelID returns the name of the loaded model.
func (e *Embedder) ModelID() string {
	return e.modelName
}

// Dimension returns the embedding dimension of the loaded model.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Close destroys the model session.
func (e *Embedder) Close() error {
	return e.session.Destroy()
}

// EmbedBatch embeds all texts, batching internally at the configured
// batch size. The result preserves input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(model.ErrBackendTimeout, err)
		}

		end := min(start+e.batchSize, len(texts))
		result, err := e.pipeline.RunPipeline(texts[start:end])
		if err != nil {
			return nil, errors.Join(model.ErrModelUnavailable, helper.NewError("generate embeddings", err))
		}
		if len(result.Embeddings) != end-start {
			return nil, errors.Join(model.ErrModelUnavailable, fmt.Errorf("embedding count mismatch: got %d embeddings for %d texts", len(result.Embeddings), end-start))
		}

		embeddings = append(embeddings, result.Embeddings...)
	}

	return embeddings, nil
}

// EmbedQuery embeds a single query text.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, errors.Join(model.ErrModelUnavailable, fmt.Errorf("no embedding generated"))
	}
	return embeddings[0], nil
}
