package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pathembed/internal/domain"
	"pathembed/internal/port"
)

// ShortResultPolicy decides what happens when a chunk response carries
// fewer embeddings than the chunk has records.
type ShortResultPolicy string

const (
	// ShortResultFail fails the chunk with domain.ErrShortResult.
	ShortResultFail ShortResultPolicy = "fail"
	// ShortResultPad keeps the chunk and leaves the unanswered positions nil.
	ShortResultPad ShortResultPolicy = "pad"
)

// ChunkEvent is reported after each chunk succeeds.
type ChunkEvent struct {
	Ordinal  int
	Total    int
	Size     int
	Done     int
	Attempts int
	Duration time.Duration
}

type BatchOptions struct {
	ChunkSize      int
	Concurrency    int
	Spacing        time.Duration
	RequestTimeout time.Duration
	Retry          RetryConfig
	ShortResult    ShortResultPolicy
	OnChunk        func(ChunkEvent)
}

func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		ChunkSize:      50,
		Concurrency:    1,
		RequestTimeout: 60 * time.Second,
		Retry:          DefaultRetryConfig(),
		ShortResult:    ShortResultFail,
	}
}

// BatchEmbedder embeds records chunk by chunk. Either every record gets a
// slot in the result or the whole batch fails.
type BatchEmbedder struct {
	embedder port.Embedder
	opts     BatchOptions
	logger   *slog.Logger
}

func NewBatchEmbedder(embedder port.Embedder, opts BatchOptions, logger *slog.Logger) *BatchEmbedder {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 50
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.ShortResult == "" {
		opts.ShortResult = ShortResultFail
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchEmbedder{
		embedder: embedder,
		opts:     opts,
		logger:   logger,
	}
}

func (b *BatchEmbedder) ChunkSize() int {
	return b.opts.ChunkSize
}

// Embed returns one embedding per record, aligned by position. Under
// ShortResultPad some positions may be nil.
func (b *BatchEmbedder) Embed(ctx context.Context, records []domain.Record) ([]domain.Embedding, error) {
	chunks, err := Partition(records, b.opts.ChunkSize)
	if err != nil {
		return nil, err
	}

	run := &batchRun{
		BatchEmbedder: b,
		out:           make([]domain.Embedding, len(records)),
		total:         len(chunks),
		pacer:         NewPacer(b.opts.Spacing),
		dim:           b.embedder.Dimension(),
	}

	b.logger.Debug("embedding batch",
		"records", len(records),
		"chunks", len(chunks),
		"chunk_size", b.opts.ChunkSize,
		"concurrency", b.opts.Concurrency,
		"model", b.embedder.ModelName())

	if b.opts.Concurrency == 1 {
		err = run.sequential(ctx, chunks)
	} else {
		err = run.windowed(ctx, chunks)
	}
	if err != nil {
		return nil, err
	}
	return run.out, nil
}

type batchRun struct {
	*BatchEmbedder
	pacer *Pacer
	total int

	mu   sync.Mutex
	out  []domain.Embedding
	done int
	dim  int
}

func (r *batchRun) sequential(ctx context.Context, chunks []domain.Chunk) error {
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return &domain.EmbeddingServiceError{Chunk: c.Ordinal, Err: err}
		}
		if err := r.process(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// windowed keeps up to Concurrency chunk requests in flight. The first
// failure cancels the rest.
func (r *batchRun) windowed(ctx context.Context, chunks []domain.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	unstarted := -1
	for _, c := range chunks {
		if gctx.Err() != nil {
			unstarted = c.Ordinal
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return &domain.EmbeddingServiceError{Chunk: c.Ordinal, Err: err}
			}
			return r.process(gctx, c)
		})
	}

	err := g.Wait()
	var serviceErr *domain.EmbeddingServiceError
	if err != nil && errors.As(err, &serviceErr) && !errors.Is(err, context.Canceled) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		chunk := unstarted
		if chunk < 0 && serviceErr != nil {
			chunk = serviceErr.Chunk
		}
		return &domain.EmbeddingServiceError{Chunk: max(chunk, 0), Err: ctxErr}
	}
	return err
}

func (r *batchRun) process(ctx context.Context, c domain.Chunk) error {
	started := time.Now()

	vecs, attempts, err := retryWithBackoff(ctx, r.opts.Retry, func() ([]domain.Embedding, error) {
		return r.request(ctx, c)
	})
	if err != nil {
		r.logger.Error("chunk failed",
			"chunk", c.Ordinal,
			"records", len(c.Records),
			"attempts", attempts,
			"error", err)
		return &domain.EmbeddingServiceError{Chunk: c.Ordinal, Attempts: attempts, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	copy(r.out[c.Start:], vecs)
	r.done += len(c.Records)

	event := ChunkEvent{
		Ordinal:  c.Ordinal,
		Total:    r.total,
		Size:     len(c.Records),
		Done:     r.done,
		Attempts: attempts,
		Duration: time.Since(started),
	}
	r.logger.Debug("chunk embedded",
		"chunk", c.Ordinal,
		"records", event.Size,
		"attempts", attempts,
		"duration", event.Duration)
	if r.opts.OnChunk != nil {
		r.opts.OnChunk(event)
	}
	return nil
}

// request sends one chunk and checks the answer against the chunk.
func (r *batchRun) request(ctx context.Context, c domain.Chunk) ([]domain.Embedding, error) {
	if err := r.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx := ctx
	if r.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, r.opts.RequestTimeout)
		defer cancel()
	}

	raw, err := r.embedder.EmbedBatch(reqCtx, c.Texts())
	if err != nil {
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, &domain.TransportError{
				URL: r.embedder.ModelName(),
				Err: fmt.Errorf("request timed out after %s: %w", r.opts.RequestTimeout, context.DeadlineExceeded),
			}
		}
		return nil, err
	}

	return r.align(c, raw)
}

func (r *batchRun) align(c domain.Chunk, raw [][]float64) ([]domain.Embedding, error) {
	n := len(c.Records)
	if len(raw) > n {
		return nil, fmt.Errorf("response has %d embeddings for %d texts", len(raw), n)
	}

	vecs := make([]domain.Embedding, n)
	missing := 0
	for i := range vecs {
		if i >= len(raw) || raw[i] == nil {
			missing++
			continue
		}
		vecs[i] = raw[i]
	}

	if missing > 0 {
		if r.opts.ShortResult != ShortResultPad {
			return nil, fmt.Errorf("%w: %d of %d missing", domain.ErrShortResult, missing, n)
		}
		r.logger.Warn("short embedding response, padding",
			"chunk", c.Ordinal,
			"missing", missing,
			"records", n)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, v := range vecs {
		if v == nil {
			continue
		}
		if r.dim == 0 {
			r.dim = len(v)
		}
		if len(v) != r.dim {
			return nil, fmt.Errorf("%w: record %d has %d components, want %d",
				domain.ErrDimensionMismatch, c.Records[i].Index, len(v), r.dim)
		}
	}
	return vecs, nil
}
