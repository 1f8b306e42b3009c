package usecase

import (
	"fmt"

	"pathembed/internal/domain"
)

// Partition splits records into contiguous chunks of size records; the last
// chunk may be shorter. Chunks share the backing array with records.
func Partition(records []domain.Record, size int) ([]domain.Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", size)
	}

	chunks := make([]domain.Chunk, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		chunks = append(chunks, domain.Chunk{
			Ordinal: len(chunks),
			Start:   start,
			Records: records[start:end],
		})
	}
	return chunks, nil
}
