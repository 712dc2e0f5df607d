package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/fusionrag/graph"
	"github.com/siherrmann/fusionrag/model"
)

// GraphClient is the subset of the graph store the engine needs.
type GraphClient interface {
	Query(ctx context.Context, cypher string, params map[string]any) (*graph.QueryResult, error)
	KeywordSearch(ctx context.Context, question string, limit int) (*graph.QueryResult, error)
}

// VectorSearcher is the subset of the vector index the engine needs.
type VectorSearcher interface {
	Search(ctx context.Context, embedding []float32, limit int, threshold float64, documentRID *uuid.UUID) ([]*model.VectorHit, error)
}

// Engine routes retrieval requests to the mode's strategy and executes
// the per-backend calls. Both backends are read-only at query time.
type Engine struct {
	planner    *Planner
	graph      GraphClient
	vectors    VectorSearcher
	translator Translator
	strategies map[model.Mode]Strategy
	log        *slog.Logger
}

// NewEngine creates a retrieval engine with one registered strategy per
// mode.
func NewEngine(planner *Planner, graphClient GraphClient, vectors VectorSearcher, translator Translator, logger *slog.Logger) *Engine {
	engine := &Engine{
		planner:    planner,
		graph:      graphClient,
		vectors:    vectors,
		translator: translator,
		log:        logger,
	}
	engine.strategies = map[model.Mode]Strategy{
		model.ModeGraph:  NewGraphOnlyStrategy(engine),
		model.ModeVector: NewVectorOnlyStrategy(engine),
		model.ModeHybrid: NewHybridStrategy(engine),
	}
	return engine
}

// Retrieve answers the question in the requested mode. Single-source
// modes fail on their backend's failure; hybrid mode degrades to the
// surviving source and fails only when both backends fail.
func (e *Engine) Retrieve(ctx context.Context, question string, mode model.Mode, config *model.QueryConfig) (*model.RetrievalResult, error) {
	strategy, ok := e.strategies[mode]
	if !ok {
		return nil, fmt.Errorf("unknown retrieval mode %v", mode)
	}

	start := time.Now()
	result, err := strategy.Retrieve(ctx, question, config)
	if err != nil {
		return nil, err
	}

	result.Question = question
	result.Mode = mode
	result.Latency = time.Since(start)

	e.log.Info("Retrieval finished",
		slog.String("mode", string(mode)),
		slog.Int("items", len(result.Items)),
		slog.Duration("latency", result.Latency))

	return result, nil
}

// Compare runs every mode for one question and reports each mode's
// result or typed failure with its latency. Each half is planned and
// executed once inside its own clock, so a mode's latency covers the
// translation or embedding work as well as the backend call, and the
// halves are shared across modes for one consistent snapshot. One
// mode's failure never aborts the others.
func (e *Engine) Compare(ctx context.Context, question string, config *model.QueryConfig) map[model.Mode]*model.ModeOutcome {
	outcomes := make(map[model.Mode]*model.ModeOutcome, 3)

	var wg sync.WaitGroup
	var graphEvidence *model.GraphEvidence
	var graphErr, vectorErr error
	var graphLatency, vectorLatency time.Duration
	var hits []*model.VectorHit

	wg.Add(2)
	go func() {
		defer wg.Done()
		start := time.Now()
		defer func() { graphLatency = time.Since(start) }()

		request, err := e.planner.Plan(ctx, question, model.ModeGraph)
		if err != nil {
			graphErr = err
			return
		}
		graphEvidence, graphErr = e.GraphRetrieve(ctx, request, config)
	}()
	go func() {
		defer wg.Done()
		start := time.Now()
		defer func() { vectorLatency = time.Since(start) }()

		request, err := e.planner.Plan(ctx, question, model.ModeVector)
		if err != nil {
			vectorErr = err
			return
		}
		hits, vectorErr = e.VectorRetrieve(ctx, request, config)
	}()
	wg.Wait()

	if graphErr != nil {
		outcomes[model.ModeGraph] = &model.ModeOutcome{Err: graphErr, Latency: graphLatency}
	} else {
		result := buildGraphResult(question, graphEvidence, config)
		outcomes[model.ModeGraph] = &model.ModeOutcome{Result: result, Latency: graphLatency}
	}

	if vectorErr != nil {
		outcomes[model.ModeVector] = &model.ModeOutcome{Err: vectorErr, Latency: vectorLatency}
	} else {
		result := buildVectorResult(question, hits, config)
		outcomes[model.ModeVector] = &model.ModeOutcome{Result: result, Latency: vectorLatency}
	}

	hybridLatency := max(graphLatency, vectorLatency)
	if graphErr != nil && vectorErr != nil {
		outcomes[model.ModeHybrid] = &model.ModeOutcome{
			Err:     errors.Join(model.ErrNoEvidence, graphErr, vectorErr),
			Latency: hybridLatency,
		}
	} else {
		result := buildHybridResult(question, graphEvidence, graphErr, hits, vectorErr, config)
		outcomes[model.ModeHybrid] = &model.ModeOutcome{Result: result, Latency: hybridLatency}
	}

	return outcomes
}

// GraphRetrieve executes the planned Cypher against the graph store. A
// rejected query gets one repaired attempt with the store's error fed
// back to the translator; if that fails too, or the query matched
// nothing, keyword search is the fallback.
func (e *Engine) GraphRetrieve(ctx context.Context, request *Request, config *model.QueryConfig) (*model.GraphEvidence, error) {
	ctx, cancel := context.WithTimeout(ctx, config.BackendTimeout)
	defer cancel()

	result, err := e.graph.Query(ctx, request.Cypher, nil)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		e.log.Warn("Cypher query failed, repairing", slog.Any("error", err))

		repaired, repairErr := e.translator.RepairQuery(ctx, request.Question, request.Cypher, err)
		if repairErr == nil {
			result, err = e.graph.Query(ctx, repaired, nil)
		}
	}

	if err != nil || len(result.Rows) == 0 {
		fallback, fallbackErr := e.graph.KeywordSearch(ctx, request.Question, config.GraphLimit)
		if fallbackErr != nil {
			if err != nil {
				return nil, timeoutOr(ctx, err)
			}
			return nil, timeoutOr(ctx, fallbackErr)
		}
		result = fallback
	}

	triplets := result.Triplets()
	if len(triplets) > config.GraphLimit {
		triplets = triplets[:config.GraphLimit]
	}

	return &model.GraphEvidence{Triplets: triplets, Cypher: result.Cypher}, nil
}

// VectorRetrieve runs the similarity search for the planned embedding.
func (e *Engine) VectorRetrieve(ctx context.Context, request *Request, config *model.QueryConfig) ([]*model.VectorHit, error) {
	ctx, cancel := context.WithTimeout(ctx, config.BackendTimeout)
	defer cancel()

	hits, err := e.vectors.Search(ctx, request.Embedding, config.TopK, config.SimilarityThreshold, nil)
	if err != nil {
		return nil, timeoutOr(ctx, err)
	}

	return hits, nil
}

// timeoutOr marks a backend error as a timeout when the deadline was
// the cause.
func timeoutOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Join(model.ErrBackendTimeout, err)
	}
	return err
}

func buildGraphResult(question string, evidence *model.GraphEvidence, config *model.QueryConfig) *model.RetrievalResult {
	return &model.RetrievalResult{
		Question: question,
		Mode:     model.ModeGraph,
		Items:    Fuse(evidence, nil, config.TopK, 1.0),
		Cypher:   evidence.Cypher,
		Outcomes: map[model.EvidenceSource]*model.SourceOutcome{
			model.SourceGraph:  {State: model.SourceOK},
			model.SourceVector: {State: model.SourceSkipped},
		},
	}
}

func buildVectorResult(question string, hits []*model.VectorHit, config *model.QueryConfig) *model.RetrievalResult {
	return &model.RetrievalResult{
		Question: question,
		Mode:     model.ModeVector,
		Items:    Fuse(nil, hits, config.TopK, 0.0),
		Outcomes: map[model.EvidenceSource]*model.SourceOutcome{
			model.SourceGraph:  {State: model.SourceSkipped},
			model.SourceVector: {State: model.SourceOK},
		},
	}
}

func buildHybridResult(question string, evidence *model.GraphEvidence, graphErr error, hits []*model.VectorHit, vectorErr error, config *model.QueryConfig) *model.RetrievalResult {
	result := &model.RetrievalResult{
		Question: question,
		Mode:     model.ModeHybrid,
		Items:    Fuse(evidence, hits, config.TopK, config.Alpha),
		Outcomes: map[model.EvidenceSource]*model.SourceOutcome{
			model.SourceGraph:  {State: model.SourceOK},
			model.SourceVector: {State: model.SourceOK},
		},
	}
	if evidence != nil {
		result.Cypher = evidence.Cypher
	}
	if graphErr != nil {
		result.Outcomes[model.SourceGraph] = &model.SourceOutcome{State: model.SourceFailed, Err: graphErr}
	}
	if vectorErr != nil {
		result.Outcomes[model.SourceVector] = &model.SourceOutcome{State: model.SourceFailed, Err: vectorErr}
	}
	return result
}
