package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"pathembed/internal/domain"
)

// fakeEmbedder answers each text "report N" with the vector {N, 1}.
// Behavior per chunk is keyed by the chunk's first text.
type fakeEmbedder struct {
	dim   int
	delay func(first string) time.Duration
	errs  map[string][]error
	drop  map[string]int
	dims  map[string]int

	mu       sync.Mutex
	calls    [][]string
	inflight int
	peak     int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		dim:  2,
		errs: make(map[string][]error),
		drop: make(map[string]int),
		dims: make(map[string]int),
	}
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	first := texts[0]

	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.inflight++
	f.peak = max(f.peak, f.inflight)
	var err error
	if queue := f.errs[first]; len(queue) > 0 {
		err = queue[0]
		f.errs[first] = queue[1:]
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if f.delay != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay(first)):
		}
	}
	if err != nil {
		return nil, err
	}

	dim := f.dim
	if d, ok := f.dims[first]; ok {
		dim = d
	}
	out := make([][]float64, 0, len(texts))
	for _, t := range texts {
		vec := make([]float64, dim)
		n, convErr := strconv.Atoi(strings.TrimPrefix(t, "report "))
		if convErr != nil {
			n = -1
		}
		vec[0] = float64(n)
		if dim > 1 {
			vec[1] = 1
		}
		out = append(out, vec)
	}
	return out[:len(out)-f.drop[first]], nil
}

func (f *fakeEmbedder) Dimension() int    { return 0 }
func (f *fakeEmbedder) ModelName() string { return "fake" }

func (f *fakeEmbedder) callSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.calls))
	for i, c := range f.calls {
		sizes[i] = len(c)
	}
	return sizes
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func makeRecords(n int) []domain.Record {
	records := make([]domain.Record, n)
	for i := range records {
		records[i] = domain.Record{
			Index:      i,
			Identifier: fmt.Sprintf("TCGA-%03d", i),
			Text:       fmt.Sprintf("report %d", i),
		}
	}
	return records
}
