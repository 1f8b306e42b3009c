package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"pathembed/config"
	"pathembed/internal/adapter/archive"
	"pathembed/internal/adapter/embedding"
	"pathembed/internal/adapter/tabular"
	"pathembed/internal/domain"
	"pathembed/internal/logging"
	"pathembed/internal/usecase"
)

func main() {
	dir := flag.String("dir", ".", "Directory holding pathembed.yaml and .env")
	source := flag.String("source", "", "Report archive (default from config)")
	limit := flag.Int("n", 200, "Number of records to embed per run")
	sizes := flag.String("chunk-sizes", "10,25,50", "Comma-separated chunk sizes to compare")
	concurrency := flag.Int("concurrency", 1, "Chunk requests in flight")
	flag.Parse()

	if err := config.LoadEnv(*dir); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *source != "" {
		cfg.Source.URL = *source
	}

	logger := logging.New(logging.Config{Level: "warn", Format: cfg.Logging.Format})
	ctx := context.Background()

	records, err := loadRecords(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading reports: %v\n", err)
		os.Exit(1)
	}
	if len(records) > *limit {
		records = records[:*limit]
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder init failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("BATCH EMBEDDING BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Records:     %d\n", len(records))
	fmt.Printf("Model:       %s (%s)\n", embedder.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Spacing:     %s\n", cfg.Embedding.Spacing)
	fmt.Println(strings.Repeat("-", 70))
	fmt.Printf("%-12s %-8s %-12s %-14s %s\n", "CHUNK SIZE", "CHUNKS", "TOTAL", "PER CHUNK", "RECORDS/S")

	for _, field := range strings.Split(*sizes, ",") {
		var size int
		if _, err := fmt.Sscanf(strings.TrimSpace(field), "%d", &size); err != nil || size <= 0 {
			fmt.Fprintf(os.Stderr, "Skipping invalid chunk size %q\n", field)
			continue
		}

		opts := usecase.DefaultBatchOptions()
		opts.ChunkSize = size
		opts.Concurrency = *concurrency
		opts.Spacing = cfg.Embedding.Spacing
		opts.RequestTimeout = cfg.Embedding.RequestTimeout

		var chunkTime time.Duration
		chunks := 0
		opts.OnChunk = func(e usecase.ChunkEvent) {
			chunkTime += e.Duration
			chunks++
		}

		start := time.Now()
		_, err := usecase.NewBatchEmbedder(embedder, opts, logger).Embed(ctx, records)
		elapsed := time.Since(start)
		if err != nil {
			fmt.Printf("%-12d failed: %v\n", size, err)
			continue
		}

		perChunk := time.Duration(0)
		if chunks > 0 {
			perChunk = chunkTime / time.Duration(chunks)
		}
		fmt.Printf("%-12d %-8d %-12s %-14s %.1f\n",
			size, chunks, elapsed.Round(time.Millisecond), perChunk.Round(time.Millisecond),
			float64(len(records))/elapsed.Seconds())
	}
	fmt.Println(strings.Repeat("=", 70))
}

func loadRecords(ctx context.Context, cfg *config.Config) ([]domain.Record, error) {
	fetcher := archive.NewFetcher(cfg.Source.Timeout, cfg.Source.MaxBytes, nil)
	raw, err := fetcher.FetchMember(ctx, cfg.Source.URL, archive.Glob(cfg.Source.Member))
	if err != nil {
		return nil, err
	}
	parsed, err := tabular.NewReportParser(cfg.Source.Sentinel, cfg.Source.Reindex).Parse(raw)
	if err != nil {
		return nil, err
	}
	return parsed.Records, nil
}
