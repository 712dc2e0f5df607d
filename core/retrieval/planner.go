package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/siherrmann/fusionrag/model"
)

// Translator turns natural language questions into Cypher queries and
// repairs queries the graph store rejected.
type Translator interface {
	Translate(ctx context.Context, question string) (string, error)
	RepairQuery(ctx context.Context, question string, failedCypher string, queryErr error) (string, error)
}

// QueryEmbedder embeds a query text with the same model that embedded
// the indexed chunks.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Request is a planned retrieval: the question plus the per-backend
// inputs the chosen mode needs. Cypher is set for graph modes, the
// embedding for vector modes.
type Request struct {
	Question  string
	Mode      model.Mode
	Cypher    string
	Embedding []float32
	// GraphPlanErr and VectorPlanErr record a failed half of a hybrid
	// plan, where the other half carries on alone.
	GraphPlanErr  error
	VectorPlanErr error
}

// Planner prepares retrieval requests. Graph planning translates the
// question to Cypher, vector planning embeds it, hybrid planning does
// both in parallel. A failed translation is fatal for graph mode and
// degrades hybrid; hybrid planning fails only when both halves fail.
type Planner struct {
	translator Translator
	embedder   QueryEmbedder
}

// NewPlanner creates a planner from the two collaborators.
func NewPlanner(translator Translator, embedder QueryEmbedder) *Planner {
	return &Planner{
		translator: translator,
		embedder:   embedder,
	}
}

// Plan prepares the retrieval request for the given mode.
func (p *Planner) Plan(ctx context.Context, question string, mode model.Mode) (*Request, error) {
	request := &Request{Question: question, Mode: mode}

	switch mode {
	case model.ModeGraph:
		cypher, err := p.translator.Translate(ctx, question)
		if err != nil {
			return nil, err
		}
		request.Cypher = cypher
	case model.ModeVector:
		embedding, err := p.embedder.EmbedQuery(ctx, question)
		if err != nil {
			return nil, err
		}
		request.Embedding = embedding
	case model.ModeHybrid:
		var wg sync.WaitGroup
		var cypher string
		var embedding []float32
		var cypherErr, embedErr error

		wg.Add(2)
		go func() {
			defer wg.Done()
			cypher, cypherErr = p.translator.Translate(ctx, question)
		}()
		go func() {
			defer wg.Done()
			embedding, embedErr = p.embedder.EmbedQuery(ctx, question)
		}()
		wg.Wait()

		if cypherErr != nil && embedErr != nil {
			return nil, errors.Join(model.ErrNoEvidence, cypherErr, embedErr)
		}
		request.Cypher = cypher
		request.GraphPlanErr = cypherErr
		request.Embedding = embedding
		request.VectorPlanErr = embedErr
	default:
		return nil, errors.Join(model.ErrNoEvidence, fmt.Errorf("unknown retrieval mode %v", mode))
	}

	return request, nil
}
