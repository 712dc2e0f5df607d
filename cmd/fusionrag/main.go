package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	fusionrag "github.com/siherrmann/fusionrag"
	"github.com/siherrmann/fusionrag/helper"
	"github.com/siherrmann/fusionrag/model"
)

func main() {
	ingestDir := flag.String("ingest", "", "Directory or file to ingest before starting the query loop")
	flag.Parse()

	// .env is optional, the environment wins
	_ = godotenv.Load()

	config, err := model.NewConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rag, err := fusionrag.New(ctx, config, dbConfig)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer rag.Close(context.Background())

	if *ingestDir != "" {
		if err := ingestPath(ctx, rag, *ingestDir); err != nil {
			log.Fatalf("ingestion failed: %v", err)
		}
	}

	if err := run(ctx, rag); err != nil {
		log.Fatalf("query loop failed: %v", err)
	}
}

func ingestPath(ctx context.Context, rag *fusionrag.FusionRAG, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if ext == ".pdf" || ext == ".md" || ext == ".markdown" || ext == ".txt" {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
	} else {
		files = []string{path}
	}

	for _, file := range files {
		stats, err := rag.IngestFile(ctx, file)
		if err != nil {
			fmt.Printf("failed: %s: %v\n", file, err)
			continue
		}
		fmt.Printf("ingested: %s (%d chunks, %d triplets)\n", file, stats.Chunks, stats.Triplets)
	}

	return nil
}

const usage = `Commands:
  kg <question>          graph-only retrieval
  vector <question>      vector-only retrieval
  hybrid-all <question>  fused retrieval over both backends
  compare <question>     run all three modes side by side
  ingest <path>          ingest a file or directory
  stats                  corpus size
  clear                  remove all documents, chunks and graph facts
  quit | exit            leave

A bare question runs in hybrid mode.`

func run(ctx context.Context, rag *fusionrag.FusionRAG) error {
	fmt.Println(usage)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		lower := strings.ToLower(line)
		switch {
		case lower == "quit" || lower == "exit":
			return nil
		case lower == "help":
			fmt.Println(usage)
		case lower == "stats":
			stats, err := rag.CorpusStats()
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("documents: %d, chunks: %d\n", stats.Documents, stats.Chunks)
		case lower == "clear":
			if err := rag.ClearCorpus(ctx); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("corpus cleared")
		case strings.HasPrefix(lower, "ingest "):
			if err := ingestPath(ctx, rag, strings.TrimSpace(line[len("ingest "):])); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case strings.HasPrefix(lower, "kg "):
			ask(ctx, rag, strings.TrimSpace(line[3:]), model.ModeGraph)
		case strings.HasPrefix(lower, "vector "):
			ask(ctx, rag, strings.TrimSpace(line[len("vector "):]), model.ModeVector)
		case strings.HasPrefix(lower, "hybrid-all "):
			ask(ctx, rag, strings.TrimSpace(line[len("hybrid-all "):]), model.ModeHybrid)
		case strings.HasPrefix(lower, "compare "):
			compare(ctx, rag, strings.TrimSpace(line[len("compare "):]))
		default:
			ask(ctx, rag, line, model.ModeHybrid)
		}
	}
}

func ask(ctx context.Context, rag *fusionrag.FusionRAG, question string, mode model.Mode) {
	if question == "" {
		fmt.Println("empty question")
		return
	}

	answer, result, err := rag.Ask(ctx, question, mode)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	fmt.Printf("\n[%s, %d items, %v]\n", result.Mode, len(result.Items), result.Latency.Round(1e6))
	if result.Cypher != "" {
		fmt.Printf("cypher: %s\n", result.Cypher)
	}
	for source, outcome := range result.Outcomes {
		if outcome.State != model.SourceOK && outcome.State != model.SourceSkipped {
			fmt.Printf("%s source %s: %v\n", source, outcome.State, outcome.Err)
		}
	}
	fmt.Println(answer)
	fmt.Println()
}

func compare(ctx context.Context, rag *fusionrag.FusionRAG, question string) {
	if question == "" {
		fmt.Println("empty question")
		return
	}

	outcomes := rag.Compare(ctx, question)

	for _, mode := range model.Modes() {
		outcome := outcomes[mode]
		fmt.Printf("\n=== %s (%v) ===\n", mode, outcome.Latency.Round(1e6))
		if outcome.Err != nil {
			fmt.Printf("failed: %v\n", outcome.Err)
			continue
		}
		for i, item := range outcome.Result.Items {
			fmt.Printf("%d. score %.3f", i+1, item.Score)
			if item.Vector != nil {
				excerpt := item.Vector.Content
				if len(excerpt) > 120 {
					excerpt = excerpt[:120] + "..."
				}
				fmt.Printf(" | %s | %s", item.Vector.Source, excerpt)
			}
			if item.Graph != nil && len(item.Graph.Triplets) > 0 {
				fmt.Printf(" | %s", item.Graph.Triplets[0].String())
			}
			fmt.Println()
		}
	}
	fmt.Println()
}
