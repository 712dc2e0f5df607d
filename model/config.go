package model

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config is the process-wide configuration surface, parsed from the
// environment. A .env file is loaded by the command layer before parsing.
type Config struct {
	// Chunking
	ChunkSize    int `env:"CHUNK_SIZE" envDefault:"512"`
	ChunkOverlap int `env:"CHUNK_OVERLAP" envDefault:"50"`
	MinChunkSize int `env:"MIN_CHUNK_SIZE" envDefault:"100"`

	// Embedding
	EmbeddingModel     string `env:"EMBEDDING_MODEL" envDefault:"sentence-transformers/all-MiniLM-L6-v2"`
	EmbeddingBatchSize int    `env:"EMBEDDING_BATCH_SIZE" envDefault:"16"`
	ModelDir           string `env:"MODEL_DIR" envDefault:"./models"`

	// Graph store
	Neo4jURI      string `env:"NEO4J_URI" envDefault:"bolt://localhost:7687"`
	Neo4jUser     string `env:"NEO4J_USER" envDefault:"neo4j"`
	Neo4jPassword string `env:"NEO4J_PASSWORD"`

	// LLM collaborator
	OllamaURL   string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel string `env:"OLLAMA_MODEL" envDefault:"gpt-oss:20b"`

	// Retrieval
	TopK           int           `env:"TOP_K" envDefault:"5"`
	FusionAlpha    float64       `env:"FUSION_ALPHA" envDefault:"0.5"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"30s"`
	LLMTimeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`
}

// NewConfig parses the configuration from the environment.
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// QueryConfig represents configuration for a single retrieval query.
type QueryConfig struct {
	// TopK bounds both the per-source candidate count and the fused
	// result length.
	TopK int `json:"top_k"`
	// GraphLimit bounds the number of graph rows fetched per query.
	GraphLimit int `json:"graph_limit"`
	// SimilarityThreshold drops vector hits below this score.
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
	// Alpha is the fusion blend weight: final = α·graph + (1-α)·vector
	// for items present in both sources.
	Alpha float64 `json:"alpha"`
	// BackendTimeout applies per backend call (graph query, vector
	// search, embedding).
	BackendTimeout time.Duration `json:"backend_timeout"`
}

// DefaultQueryConfig returns a sensible default configuration
func DefaultQueryConfig() *QueryConfig {
	return &QueryConfig{
		TopK:                5,
		GraphLimit:          10,
		SimilarityThreshold: 0.0,
		Alpha:               0.5,
		BackendTimeout:      30 * time.Second,
	}
}

// QueryConfigFrom derives a query configuration from the process config.
func QueryConfigFrom(cfg *Config) *QueryConfig {
	qc := DefaultQueryConfig()
	if cfg.TopK > 0 {
		qc.TopK = cfg.TopK
	}
	if cfg.FusionAlpha >= 0 && cfg.FusionAlpha <= 1 {
		qc.Alpha = cfg.FusionAlpha
	}
	if cfg.BackendTimeout > 0 {
		qc.BackendTimeout = cfg.BackendTimeout
	}
	return qc
}
