package model

import "github.com/google/uuid"

// Triplet is a (subject, predicate, object) fact extracted from text and
// stored as a graph edge. The retrieval engine consumes triplets
// read-only; extraction and bulk load are the write path.
type Triplet struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	// Provenance
	DocumentRID    uuid.UUID `json:"document_rid,omitempty"`
	Source         string    `json:"source,omitempty"`
	SentenceOffset int       `json:"sentence_offset,omitempty"`
}

// String renders the triplet in the "subject predicate object" form used
// in evidence contexts handed to the answer generator.
func (t Triplet) String() string {
	return t.Subject + " " + t.Predicate + " " + t.Object
}
