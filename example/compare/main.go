package main

import (
	"context"
	"fmt"
	"log"
	"os"

	fusionrag "github.com/siherrmann/fusionrag"
	"github.com/siherrmann/fusionrag/helper"
	"github.com/siherrmann/fusionrag/model"
)

// Runs the same question through every retrieval mode and prints the
// ranked evidence side by side. Expects an already ingested corpus;
// pass documents to ingest as arguments.
func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <question> [files to ingest...]", os.Args[0])
	}
	question := os.Args[1]

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

	for _, path := range os.Args[2:] {
		stats, err := rag.IngestFile(ctx, path)
		if err != nil {
			log.Fatalf("Failed to ingest %s: %v", path, err)
		}
		fmt.Printf("Ingested %s: %d chunks, %d triplets\n", path, stats.Chunks, stats.Triplets)
	}

	outcomes := rag.Compare(ctx, question)

	for _, mode := range model.Modes() {
		outcome := outcomes[mode]
		fmt.Printf("\n=== %s (%v) ===\n", mode, outcome.Latency)
		if outcome.Err != nil {
			fmt.Printf("failed: %v\n", outcome.Err)
			continue
		}
		for i, item := range outcome.Result.Items {
			fmt.Printf("%d. score %.3f graph %.2f vector %.2f", i+1, item.Score, item.GraphScore, item.VectorScore)
			if item.Vector != nil {
				fmt.Printf(" | %s", item.Vector.Source)
			}
			if item.Graph != nil && len(item.Graph.Triplets) > 0 {
				fmt.Printf(" | %s", item.Graph.Triplets[0].String())
			}
			fmt.Println()
		}
	}
}
