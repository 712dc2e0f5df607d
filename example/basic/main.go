package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	fusionrag "github.com/siherrmann/fusionrag"
	"github.com/siherrmann/fusionrag/helper"
	"github.com/siherrmann/fusionrag/model"
)

const sampleContent = `# Hybrid Retrieval

Hybrid retrieval combines two evidence sources for question answering.

The fact graph stores knowledge triplets extracted from documents.
Each triplet links a subject entity to an object entity through a named relation,
and every edge remembers the source document it was extracted from.

The vector index stores embedded document chunks.
A question is embedded with the same sentence transformer model that embedded the chunks,
and cosine similarity ranks the closest passages.

The fusion engine blends both result lists into one ranked answer set.
Evidence present in both sources outranks evidence found by only one of them.`

// Requires postgres (pgvector), neo4j and ollama reachable through the
// usual configuration envs.
func main() {
	// Postgres comes from a throwaway container, the other services
	// from the environment.
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	os.Setenv("DB_PORT", dbPort)
	os.Setenv("DB_DATABASE", "fusionrag_test")

	config, err := model.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}

	ctx := context.Background()

	rag, err := fusionrag.New(ctx, config, dbConfig)
	if err != nil {
		log.Fatalf("Failed to create fusionrag: %v", err)
	}
	defer rag.Close(ctx)

	// Write the sample corpus to disk, ingestion reads from files
	dir, err := os.MkdirTemp("", "fusionrag-example")
	if err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "hybrid_retrieval.md")
	if err := os.WriteFile(path, []byte(sampleContent), 0o644); err != nil {
		log.Fatalf("Failed to write sample document: %v", err)
	}

	stats, err := rag.IngestFile(ctx, path)
	if err != nil {
		log.Fatalf("Failed to ingest: %v", err)
	}
	fmt.Printf("Ingested %s: %d chunks, %d triplets\n", stats.Document.Title, stats.Chunks, stats.Triplets)

	question := "How does the fusion engine rank evidence?"
	answer, result, err := rag.Ask(ctx, question, model.ModeHybrid)
	if err != nil {
		log.Fatalf("Failed to answer: %v", err)
	}

	fmt.Printf("\nQuestion: %s\n", question)
	fmt.Printf("Evidence items: %d (latency %v)\n", len(result.Items), result.Latency)
	if result.Cypher != "" {
		fmt.Printf("Cypher: %s\n", result.Cypher)
	}
	fmt.Printf("\n%s\n", answer)
}
