package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"pathembed/internal/adapter/archive"
	"pathembed/internal/adapter/export"
	"pathembed/internal/adapter/store"
	"pathembed/internal/adapter/tabular"
	"pathembed/internal/domain"
	"pathembed/internal/port"
)

// Source names the archive to read and the member holding the reports.
type Source struct {
	URL    string
	Member string
}

// EmbedUseCase runs the fetch, parse, embed and cache steps for one source.
type EmbedUseCase struct {
	fetcher     *archive.Fetcher
	parser      *tabular.ReportParser
	batch       *BatchEmbedder
	openCache   func() (port.Cache, error)
	fingerprint string
	logger      *slog.Logger
}

// NewEmbedUseCase creates a new embed use case. openCache may be nil to run
// without a cache; it is called at most once per Run, after parsing.
func NewEmbedUseCase(
	fetcher *archive.Fetcher,
	parser *tabular.ReportParser,
	batch *BatchEmbedder,
	openCache func() (port.Cache, error),
	fingerprint string,
	logger *slog.Logger,
) *EmbedUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbedUseCase{
		fetcher:     fetcher,
		parser:      parser,
		batch:       batch,
		openCache:   openCache,
		fingerprint: fingerprint,
		logger:      logger,
	}
}

// EmbedResult contains the records and their aligned embeddings.
type EmbedResult struct {
	Records    []domain.Record
	Embeddings []domain.Embedding
	Skipped    []domain.SkippedRow
	Rows       int
	CacheHits  int
	Embedded   int
	Chunks     int
	Missing    int
}

func (r *EmbedResult) Identifiers() []string {
	ids := make([]string, len(r.Records))
	for i, rec := range r.Records {
		ids[i] = rec.Identifier
	}
	return ids
}

// Run embeds every report in src. Cached embeddings are reused by record
// index when the record's content hash still matches; new ones are written
// only after the whole batch succeeds.
func (u *EmbedUseCase) Run(ctx context.Context, src Source) (*EmbedResult, error) {
	if src.Member == "" {
		src.Member = "*.csv"
	}
	if !archive.ValidGlob(src.Member) {
		return nil, domain.WrapPhase(domain.PhaseFetch, fmt.Errorf("invalid member pattern %q", src.Member))
	}

	raw, err := u.fetcher.FetchMember(ctx, src.URL, archive.Glob(src.Member))
	if err != nil {
		return nil, domain.WrapPhase(domain.PhaseFetch, err)
	}

	parsed, err := u.parser.Parse(raw)
	if err != nil {
		return nil, domain.WrapPhase(domain.PhaseParse, err)
	}
	for _, s := range parsed.Skipped {
		u.logger.Debug("skipped row", "line", s.Line, "reason", s.Reason)
	}
	if len(parsed.Skipped) > 0 {
		u.logger.Warn("skipped malformed rows", "count", len(parsed.Skipped), "rows", parsed.Rows)
	}

	result := &EmbedResult{
		Records:    parsed.Records,
		Embeddings: make([]domain.Embedding, len(parsed.Records)),
		Skipped:    parsed.Skipped,
		Rows:       parsed.Rows,
	}
	if len(result.Records) == 0 {
		u.logger.Warn("no records parsed", "source", src.URL)
		return result, nil
	}

	var cache port.Cache
	if u.openCache != nil {
		cache, err = u.prepareCache()
		if err != nil {
			return nil, domain.WrapPhase(domain.PhaseCache, err)
		}
		defer cache.Close()

		if err := u.reuse(cache, result); err != nil {
			return nil, domain.WrapPhase(domain.PhaseCache, err)
		}
	}

	misses := make([]domain.Record, 0, len(result.Records)-result.CacheHits)
	positions := make([]int, 0, cap(misses))
	for i, rec := range result.Records {
		if result.Embeddings[i] == nil {
			misses = append(misses, rec)
			positions = append(positions, i)
		}
	}
	if len(misses) == 0 {
		u.logger.Info("all embeddings served from cache", "records", len(result.Records))
		return result, nil
	}

	result.Chunks = (len(misses) + u.batch.ChunkSize() - 1) / u.batch.ChunkSize()
	vecs, err := u.batch.Embed(ctx, misses)
	if err != nil {
		return nil, domain.WrapPhase(domain.PhaseEmbed, err)
	}

	entries := make([]domain.CacheEntry, 0, len(vecs))
	for j, v := range vecs {
		if v.Missing() {
			result.Missing++
			continue
		}
		result.Embeddings[positions[j]] = v
		result.Embedded++
		entries = append(entries, domain.CacheEntry{ID: misses[j].Index, Data: v, Hash: misses[j].ContentHash()})
	}

	if cache != nil {
		if err := cache.BulkPut(entries); err != nil {
			return nil, domain.WrapPhase(domain.PhaseCache, err)
		}
	}

	u.logger.Info("embedding complete",
		"records", len(result.Records),
		"embedded", result.Embedded,
		"cache_hits", result.CacheHits,
		"missing", result.Missing,
		"chunks", result.Chunks)
	return result, nil
}

// prepareCache opens the cache and drops its entries when they were made
// with different settings.
func (u *EmbedUseCase) prepareCache() (port.Cache, error) {
	cache, err := u.openCache()
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	stale, err := store.CheckFingerprint(cache, u.fingerprint)
	if err != nil {
		cache.Close()
		return nil, err
	}
	switch {
	case stale.Stale:
		u.logger.Warn("cache is stale, rebuilding", "reason", stale.Reason)
		err = store.Reset(cache, u.fingerprint)
	case stale.Stored == "":
		err = cache.SetFingerprint(u.fingerprint)
	}
	if err != nil {
		cache.Close()
		return nil, err
	}
	return cache, nil
}

func (u *EmbedUseCase) reuse(cache port.Cache, result *EmbedResult) error {
	cached, err := store.Lookup(cache, result.Records)
	if err != nil {
		return err
	}
	if cached.Changed > 0 {
		u.logger.Warn("source content changed, re-embedding affected records", "changed", cached.Changed)
	}

	dim := u.batch.embedder.Dimension()
	for i, emb := range cached.Embeddings {
		if emb == nil || (dim > 0 && len(emb) != dim) {
			continue
		}
		result.Embeddings[i] = emb
		result.CacheHits++
	}
	if result.CacheHits > 0 {
		u.logger.Info("reusing cached embeddings", "hits", result.CacheHits, "records", len(result.Records))
	}
	return nil
}

// Export writes the identifiers and embeddings of result in format.
func Export(w io.Writer, result *EmbedResult, format export.Format) (int, error) {
	n, err := export.Write(w, format, result.Identifiers(), result.Embeddings)
	if err != nil {
		return 0, domain.WrapPhase(domain.PhaseExport, err)
	}
	return n, nil
}
