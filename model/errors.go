package model

import "errors"

// Error taxonomy of the retrieval engine. Backend errors are converted
// into per-source outcomes at the planner/fusion boundary; only total
// failure of all requested sources reaches the caller.
var (
	// ErrChunking marks a malformed document. Not retried; the
	// document is skipped and reported.
	ErrChunking = errors.New("chunking failed")

	// ErrModelUnavailable marks an unreachable embedding or generation
	// backend. Fatal to the current request; retries happen at a
	// higher level, never silently against a different model.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrGraphQuery marks a malformed or unexecutable generated query.
	// Degrades hybrid requests to vector-only, fatal in graph mode.
	ErrGraphQuery = errors.New("graph query failed")

	// ErrVectorStore marks an unreachable index or a dimension
	// mismatch. Degrades hybrid requests to graph-only, fatal in
	// vector mode.
	ErrVectorStore = errors.New("vector store failed")

	// ErrBackendTimeout marks a per-backend timeout. Degrades the
	// source in hybrid and compare, fatal in single-source modes.
	ErrBackendTimeout = errors.New("backend timeout")

	// ErrNoEvidence is the unanswerable-question result: every
	// requested source was unusable.
	ErrNoEvidence = errors.New("no evidence from any source")
)
