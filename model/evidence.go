package model

import (
	"time"

	"github.com/google/uuid"
)

// Mode selects a retrieval pipeline.
type Mode string

const (
	ModeGraph  Mode = "graph"
	ModeVector Mode = "vector"
	ModeHybrid Mode = "hybrid"
)

// Modes lists the retrieval modes in the order Compare runs them.
func Modes() []Mode {
	return []Mode{ModeGraph, ModeVector, ModeHybrid}
}

// EvidenceSource names the backend an evidence item came from.
type EvidenceSource string

const (
	SourceGraph  EvidenceSource = "graph"
	SourceVector EvidenceSource = "vector"
)

// GraphEvidence is the graph half of an evidence item: the bound rows and
// the Cypher query that produced them, kept for provenance.
type GraphEvidence struct {
	Triplets []Triplet `json:"triplets"`
	Cypher   string    `json:"cypher"`
}

// VectorEvidence is the vector half of an evidence item: the retrieved
// chunk text with its similarity score and source document.
type VectorEvidence struct {
	ChunkID     string    `json:"chunk_id"`
	Content     string    `json:"content"`
	Similarity  float64   `json:"similarity"`
	DocumentRID uuid.UUID `json:"document_rid"`
	Source      string    `json:"source,omitempty"`
}

// Evidence is the fusion engine's unifying type. Exactly one of Graph and
// Vector is set for single-source items; both are set when fusion merged
// items referring to the same source document. Evidence is ephemeral,
// created per query and discarded after the answer is generated.
type Evidence struct {
	// Key is the dedupe identity, the source document RID (or the
	// subject entity for graph rows without document provenance).
	Key         string          `json:"key"`
	GraphScore  float64         `json:"graph_score"`
	VectorScore float64         `json:"vector_score"`
	Score       float64         `json:"score"`
	Graph       *GraphEvidence  `json:"graph,omitempty"`
	Vector      *VectorEvidence `json:"vector,omitempty"`
	// IngestedAt is the parent document's ingestion time, the first
	// fusion tie-break.
	IngestedAt time.Time `json:"ingested_at,omitempty"`
}

// Sources reports which backends contributed to this item.
func (e *Evidence) Sources() []EvidenceSource {
	var sources []EvidenceSource
	if e.Graph != nil {
		sources = append(sources, SourceGraph)
	}
	if e.Vector != nil {
		sources = append(sources, SourceVector)
	}
	return sources
}

// SourceState classifies a backend's outcome within one request.
type SourceState string

const (
	SourceOK       SourceState = "ok"
	SourceDegraded SourceState = "degraded"
	SourceFailed   SourceState = "failed"
	SourceSkipped  SourceState = "skipped"
)

// SourceOutcome captures a backend's per-request result. Errors are
// recorded, not propagated, whenever at least one source succeeded.
type SourceOutcome struct {
	State SourceState `json:"state"`
	Err   error       `json:"-"`
}

// RetrievalResult is the engine's externally visible output: the ranked,
// deduplicated evidence for a single request.
type RetrievalResult struct {
	Question string                            `json:"question"`
	Mode     Mode                              `json:"mode"`
	Items    []*Evidence                       `json:"items"`
	Outcomes map[EvidenceSource]*SourceOutcome `json:"-"`
	Cypher   string                            `json:"cypher,omitempty"`
	Latency  time.Duration                     `json:"latency"`
}

// ContributingSources lists the backends that delivered evidence.
func (r *RetrievalResult) ContributingSources() []EvidenceSource {
	var sources []EvidenceSource
	for _, source := range []EvidenceSource{SourceGraph, SourceVector} {
		if o, ok := r.Outcomes[source]; ok && o.State == SourceOK {
			sources = append(sources, source)
		}
	}
	return sources
}

// ModeOutcome is one entry of a comparison run: the mode's result or its
// typed failure, with the observed latency.
type ModeOutcome struct {
	Result  *RetrievalResult `json:"result,omitempty"`
	Err     error            `json:"-"`
	Latency time.Duration    `json:"latency"`
}
