// Package analysis compares report embeddings grouped by label.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

type Metric string

const (
	MetricPearson  Metric = "pearson"
	MetricSpearman Metric = "spearman"
)

var ErrLengthMismatch = errors.New("vectors differ in length")

// ParseMetric accepts "pearson" or "spearman".
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricPearson, MetricSpearman:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unsupported metric %q", s)
	}
}

// Pearson returns the linear correlation of x and y. A constant vector has no
// defined correlation and yields NaN.
func Pearson(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(x), len(y))
	}
	n := float64(len(x))
	if n == 0 {
		return math.NaN(), nil
	}

	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range x {
		dx, dy := x[i]-meanX, y[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return math.NaN(), nil
	}
	return cov / math.Sqrt(varX*varY), nil
}

// Spearman is Pearson over ranks. Ties share the average of their ranks.
func Spearman(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(x), len(y))
	}
	return Pearson(ranks(x), ranks(y))
}

func ranks(v []float64) []float64 {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })

	r := make([]float64, len(v))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && v[idx[j+1]] == v[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			r[idx[k]] = avg
		}
		i = j + 1
	}
	return r
}

func (m Metric) Correlate(x, y []float64) (float64, error) {
	switch m {
	case MetricSpearman:
		return Spearman(x, y)
	case MetricPearson, "":
		return Pearson(x, y)
	default:
		return 0, fmt.Errorf("unsupported metric %q", m)
	}
}

// Matrix returns the symmetric correlation matrix of vectors. The diagonal
// is 1.
func Matrix(vectors [][]float64, metric Metric) ([][]float64, error) {
	n := len(vectors)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		out[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c, err := metric.Correlate(vectors[i], vectors[j])
			if err != nil {
				return nil, fmt.Errorf("rows %d and %d: %w", i, j, err)
			}
			out[i][j] = c
			out[j][i] = c
		}
	}
	return out, nil
}
