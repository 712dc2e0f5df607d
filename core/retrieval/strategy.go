package retrieval

import (
	"context"
	"errors"
	"sync"

	"github.com/siherrmann/fusionrag/model"
)

// Strategy defines a retrieval strategy.
type Strategy interface {
	Retrieve(ctx context.Context, question string, config *model.QueryConfig) (*model.RetrievalResult, error)
}

// GraphOnlyStrategy answers from the fact graph alone. A failed Cypher
// translation or graph query is fatal, there is no source to fall back
// to.
type GraphOnlyStrategy struct {
	engine *Engine
}

// NewGraphOnlyStrategy creates a new graph-only strategy.
func NewGraphOnlyStrategy(engine *Engine) *GraphOnlyStrategy {
	return &GraphOnlyStrategy{engine: engine}
}

// Retrieve performs graph-only retrieval.
func (s *GraphOnlyStrategy) Retrieve(ctx context.Context, question string, config *model.QueryConfig) (*model.RetrievalResult, error) {
	request, err := s.engine.planner.Plan(ctx, question, model.ModeGraph)
	if err != nil {
		return nil, err
	}

	evidence, err := s.engine.GraphRetrieve(ctx, request, config)
	if err != nil {
		return nil, err
	}

	return buildGraphResult(question, evidence, config), nil
}

// VectorOnlyStrategy answers from similarity search alone. An
// unavailable embedding model or vector index is fatal.
type VectorOnlyStrategy struct {
	engine *Engine
}

// NewVectorOnlyStrategy creates a new vector-only strategy.
func NewVectorOnlyStrategy(engine *Engine) *VectorOnlyStrategy {
	return &VectorOnlyStrategy{engine: engine}
}

// Retrieve performs vector-only retrieval.
func (s *VectorOnlyStrategy) Retrieve(ctx context.Context, question string, config *model.QueryConfig) (*model.RetrievalResult, error) {
	request, err := s.engine.planner.Plan(ctx, question, model.ModeVector)
	if err != nil {
		return nil, err
	}

	hits, err := s.engine.VectorRetrieve(ctx, request, config)
	if err != nil {
		return nil, err
	}

	return buildVectorResult(question, hits, config), nil
}

// HybridStrategy queries both backends concurrently and fuses their
// evidence. One backend's failure degrades the result to the surviving
// source; the request fails only when both backends fail.
type HybridStrategy struct {
	engine *Engine
}

// NewHybridStrategy creates a new hybrid strategy.
func NewHybridStrategy(engine *Engine) *HybridStrategy {
	return &HybridStrategy{engine: engine}
}

// Retrieve performs fused two-backend retrieval.
func (s *HybridStrategy) Retrieve(ctx context.Context, question string, config *model.QueryConfig) (*model.RetrievalResult, error) {
	request, err := s.engine.planner.Plan(ctx, question, model.ModeHybrid)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	var evidence *model.GraphEvidence
	var hits []*model.VectorHit
	var graphErr, vectorErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		if request.GraphPlanErr != nil {
			graphErr = request.GraphPlanErr
			return
		}
		evidence, graphErr = s.engine.GraphRetrieve(ctx, request, config)
	}()
	go func() {
		defer wg.Done()
		if request.VectorPlanErr != nil {
			vectorErr = request.VectorPlanErr
			return
		}
		hits, vectorErr = s.engine.VectorRetrieve(ctx, request, config)
	}()
	wg.Wait()

	if graphErr != nil && vectorErr != nil {
		return nil, errors.Join(model.ErrNoEvidence, graphErr, vectorErr)
	}

	return buildHybridResult(question, evidence, graphErr, hits, vectorErr, config), nil
}
