package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"pathembed/config"
	"pathembed/internal/adapter/archive"
	"pathembed/internal/adapter/cache"
	"pathembed/internal/adapter/embedding"
	"pathembed/internal/adapter/export"
	"pathembed/internal/adapter/store"
	"pathembed/internal/adapter/tabular"
	"pathembed/internal/port"
	"pathembed/internal/usecase"
)

var (
	embedSource      string
	embedMember      string
	embedOut         string
	embedFormat      string
	embedChunkSize   int
	embedConcurrency int
	embedNoCache     bool
	embedNoProgress  bool
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed every report and export identifier-aligned vectors",
	Long: `Fetch the report archive, parse one record per row, embed the texts in
chunks and write one row per record: the identifier followed by the vector.

Cached embeddings are reused by record index. A failed chunk aborts the whole
run and nothing new is cached.

Examples:
  pathembed embed
  pathembed embed --source ./TCGA_Reports.csv.zip --out vectors.tsv
  pathembed embed --format json --out - --no-cache`,
	Args: cobra.NoArgs,
	RunE: runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)
	embedCmd.Flags().StringVar(&embedSource, "source", "", "archive URL or local path (default from config)")
	embedCmd.Flags().StringVar(&embedMember, "member", "", "glob selecting the reports member (default from config)")
	embedCmd.Flags().StringVarP(&embedOut, "out", "o", "", "output file, - for stdout (default from config)")
	embedCmd.Flags().StringVar(&embedFormat, "format", "", "output format: tsv or json (default from config)")
	embedCmd.Flags().IntVar(&embedChunkSize, "chunk-size", 0, "texts per embedding request (default from config)")
	embedCmd.Flags().IntVar(&embedConcurrency, "concurrency", 0, "chunk requests in flight (default from config)")
	embedCmd.Flags().BoolVar(&embedNoCache, "no-cache", false, "neither read nor write the local cache")
	embedCmd.Flags().BoolVar(&embedNoProgress, "no-progress", false, "hide the progress bar")
}

func runEmbed(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	log := GetLogger()

	if embedSource != "" {
		cfg.Source.URL = embedSource
	}
	if embedMember != "" {
		cfg.Source.Member = embedMember
	}
	if embedOut != "" {
		cfg.Export.Path = embedOut
	}
	if embedFormat != "" {
		cfg.Export.Format = embedFormat
	}
	if embedChunkSize > 0 {
		cfg.Embedding.ChunkSize = embedChunkSize
	}
	if embedConcurrency > 0 {
		cfg.Embedding.Concurrency = embedConcurrency
	}
	if embedNoCache {
		cfg.Cache.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	// Progress bar is created on the first event, once the chunk count is known.
	var (
		bar        *progressbar.ProgressBar
		barMu      sync.Mutex
		chunksDone int
		startTime  = time.Now()
	)
	opts := batchOptions(cfg.Embedding)
	if !embedNoProgress {
		opts.OnChunk = func(e usecase.ChunkEvent) {
			barMu.Lock()
			defer barMu.Unlock()

			if bar == nil {
				bar = progressbar.NewOptions(e.Total,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionEnableColorCodes(true),
					progressbar.OptionShowBytes(false),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
					progressbar.OptionSetTheme(progressbar.Theme{
						Saucer:        "[green]=[reset]",
						SaucerHead:    "[green]>[reset]",
						SaucerPadding: " ",
						BarStart:      "[",
						BarEnd:        "]",
					}),
					progressbar.OptionOnCompletion(func() {
						fmt.Fprintln(cmd.ErrOrStderr())
					}),
				)
			}
			chunksDone++
			bar.Set(chunksDone)

			elapsed := time.Since(startTime)
			rate := float64(chunksDone) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(e.Total-chunksDone)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Embedding[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	var openCache func() (port.Cache, error)
	if cfg.Cache.Enabled {
		dir := GetRootDir()
		openCache = func() (port.Cache, error) {
			return store.Open(cfg.Cache, dir)
		}
	}

	uc := usecase.NewEmbedUseCase(
		archive.NewFetcher(cfg.Source.Timeout, cfg.Source.MaxBytes, log),
		tabular.NewReportParser(cfg.Source.Sentinel, cfg.Source.Reindex),
		usecase.NewBatchEmbedder(embedder, opts, log),
		openCache,
		config.Fingerprint(cfg),
		log,
	)

	log.Info("embedding reports",
		"source", cfg.Source.URL,
		"provider", cfg.Embedding.Provider,
		"model", embedder.ModelName(),
		"chunk_size", cfg.Embedding.ChunkSize)

	result, err := uc.Run(cmd.Context(), usecase.Source{URL: cfg.Source.URL, Member: cfg.Source.Member})
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	// Render first so a failed export never leaves a truncated file behind.
	var buf bytes.Buffer
	rows, err := usecase.Export(&buf, result, export.Format(cfg.Export.Format))
	if err != nil {
		return err
	}
	if err := writeOutput(cmd.OutOrStdout(), cfg.Export.Path, buf.Bytes()); err != nil {
		return err
	}

	if cfg.Export.Path == "-" {
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nEmbedding complete:\n")
	fmt.Fprintf(out, "  Records:     %d (of %d rows)\n", len(result.Records), result.Rows)
	fmt.Fprintf(out, "  Skipped:     %d (malformed)\n", len(result.Skipped))
	fmt.Fprintf(out, "  Cache hits:  %d\n", result.CacheHits)
	fmt.Fprintf(out, "  Embedded:    %d in %d chunks\n", result.Embedded, result.Chunks)
	if result.Missing > 0 {
		fmt.Fprintf(out, "  Missing:     %d (short responses, not exported)\n", result.Missing)
	}
	fmt.Fprintf(out, "  Duration:    %s\n", formatDuration(time.Since(startTime)))
	fmt.Fprintf(out, "\n%d rows written to %s\n", rows, cfg.Export.Path)
	return nil
}

func newEmbedder(ecfg config.EmbeddingConfig) (port.Embedder, error) {
	embedder, err := embedding.New(ecfg)
	if err != nil {
		return nil, err
	}
	if ecfg.MemoSize > 0 {
		embedder = cache.NewCachedEmbedder(embedder, cache.NewTextCache(ecfg.MemoSize, 0))
	}
	return embedder, nil
}

func batchOptions(ecfg config.EmbeddingConfig) usecase.BatchOptions {
	return usecase.BatchOptions{
		ChunkSize:      ecfg.ChunkSize,
		Concurrency:    ecfg.Concurrency,
		Spacing:        ecfg.Spacing,
		RequestTimeout: ecfg.RequestTimeout,
		Retry: usecase.RetryConfig{
			MaxAttempts: ecfg.MaxAttempts,
			BaseDelay:   ecfg.BaseDelay,
			MaxDelay:    ecfg.MaxDelay,
			Multiplier:  2,
		},
		ShortResult: usecase.ShortResultPolicy(ecfg.ShortResult),
	}
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
