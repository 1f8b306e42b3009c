package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"pathembed/internal/domain"
)

// DefaultFileName is the name the TSV export is saved under.
const DefaultFileName = "embeddings_with_identifiers.tsv"

// Format selects the serialization written by Write.
type Format string

const (
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
)

func checkShape(ids []string, embeddings []domain.Embedding) error {
	if len(ids) != len(embeddings) {
		return &domain.ShapeMismatchError{Identifiers: len(ids), Embeddings: len(embeddings)}
	}
	return nil
}

// WriteTSV writes one row per embedding: the identifier followed by the
// components, tab separated. Rows are joined by "\n" with no trailing
// newline and no header. Missing embeddings are skipped; the returned count
// covers only rows written.
func WriteTSV(w io.Writer, ids []string, embeddings []domain.Embedding) (int, error) {
	if err := checkShape(ids, embeddings); err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	rows := 0
	buf := make([]byte, 0, 64)
	for i, emb := range embeddings {
		if emb.Missing() {
			continue
		}
		if rows > 0 {
			bw.WriteByte('\n')
		}
		bw.WriteString(ids[i])
		for _, v := range emb {
			bw.WriteByte('\t')
			buf = strconv.AppendFloat(buf[:0], v, 'g', -1, 64)
			bw.Write(buf)
		}
		rows++
	}

	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("failed to write tsv: %w", err)
	}
	return rows, nil
}

type labeledEmbedding struct {
	Identifier string    `json:"identifier"`
	Embedding  []float64 `json:"embedding"`
}

// WriteJSON writes an array of {"identifier", "embedding"} objects,
// skipping missing embeddings the same way WriteTSV does.
func WriteJSON(w io.Writer, ids []string, embeddings []domain.Embedding) (int, error) {
	if err := checkShape(ids, embeddings); err != nil {
		return 0, err
	}

	out := make([]labeledEmbedding, 0, len(embeddings))
	for i, emb := range embeddings {
		if emb.Missing() {
			continue
		}
		out = append(out, labeledEmbedding{Identifier: ids[i], Embedding: emb})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return 0, fmt.Errorf("failed to write json: %w", err)
	}
	return len(out), nil
}

func Write(w io.Writer, format Format, ids []string, embeddings []domain.Embedding) (int, error) {
	switch format {
	case FormatTSV, "":
		return WriteTSV(w, ids, embeddings)
	case FormatJSON:
		return WriteJSON(w, ids, embeddings)
	default:
		return 0, fmt.Errorf("unsupported export format: %s", format)
	}
}
