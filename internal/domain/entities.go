package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Record is one parsed report row. Index is the row position after the
// header line and stays stable for the lifetime of a batch.
type Record struct {
	Index      int    `json:"index"`
	Identifier string `json:"identifier"`
	Text       string `json:"text"`
}

// ContentHash identifies what was embedded for this record. A cached vector
// is only valid for a record with the same hash.
func (r Record) ContentHash() string {
	sum := sha256.Sum256([]byte(r.Identifier + "\x00" + r.Text))
	return hex.EncodeToString(sum[:16])
}

// Embedding is a fixed-length vector for one record. A nil Embedding marks a
// position the embedding service did not answer for.
type Embedding []float64

func (e Embedding) Missing() bool {
	return e == nil
}

type Chunk struct {
	Ordinal int
	Start   int
	Records []Record
}

func (c Chunk) Texts() []string {
	texts := make([]string, len(c.Records))
	for i, r := range c.Records {
		texts[i] = r.Text
	}
	return texts
}

// CacheEntry is one persisted embedding. Hash is the ContentHash of the
// record it was computed for; entries written without one never match.
type CacheEntry struct {
	ID   int       `json:"id"`
	Data Embedding `json:"data"`
	Hash string    `json:"hash,omitempty"`
}

type Phase string

const (
	PhaseFetch  Phase = "fetch"
	PhaseParse  Phase = "parse"
	PhaseEmbed  Phase = "embed"
	PhaseCache  Phase = "cache"
	PhaseExport Phase = "export"
)

type SkippedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}
