package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chunk represents a bounded contiguous slice of a document's normalized
// text, the unit of vector retrieval. The chunk ID is derived from the
// parent document RID and the sequence index, so re-ingesting identical
// content yields identical IDs.
type Chunk struct {
	ID          string    `json:"id"`
	DocumentRID uuid.UUID `json:"document_rid"`
	Index       int       `json:"chunk_index"`
	Content     string    `json:"content"`
	StartPos    int       `json:"start_pos"`
	EndPos      int       `json:"end_pos"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	// Result fields, set by similarity search only
	Similarity float64 `json:"similarity,omitempty"`
}

// VectorHit is one similarity-search result: the matched chunk plus the
// parent document's source and ingestion time.
type VectorHit struct {
	Chunk             *Chunk    `json:"chunk"`
	DocumentSource    string    `json:"document_source"`
	DocumentCreatedAt time.Time `json:"document_created_at"`
}

// ChunkID builds the stable chunk identifier for a document and sequence
// index. The zero-padded index keeps lexical order equal to sequence
// order, which the vector store relies on for deterministic tie-breaks.
func ChunkID(documentRID uuid.UUID, index int) string {
	return fmt.Sprintf("%s_%04d", documentRID.String(), index)
}
