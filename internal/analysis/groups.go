package analysis

import (
	"fmt"
)

// Group is the centroid of all vectors sharing a label.
type Group struct {
	Label    string
	Size     int
	Centroid []float64
}

// GroupMeans averages vectors per label. Groups come back in the order
// their label first appears.
func GroupMeans(vectors [][]float64, labels []string) ([]Group, error) {
	if len(vectors) != len(labels) {
		return nil, fmt.Errorf("%w: %d vectors, %d labels", ErrLengthMismatch, len(vectors), len(labels))
	}

	var (
		groups []Group
		pos    = make(map[string]int)
		dim    = -1
	)
	for i, vec := range vectors {
		if dim == -1 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, fmt.Errorf("%w: row %d has %d components, want %d", ErrLengthMismatch, i, len(vec), dim)
		}

		p, ok := pos[labels[i]]
		if !ok {
			p = len(groups)
			pos[labels[i]] = p
			groups = append(groups, Group{Label: labels[i], Centroid: make([]float64, dim)})
		}
		g := &groups[p]
		g.Size++
		for j, v := range vec {
			g.Centroid[j] += v
		}
	}

	for i := range groups {
		for j := range groups[i].Centroid {
			groups[i].Centroid[j] /= float64(groups[i].Size)
		}
	}
	return groups, nil
}

// GroupMatrix correlates the centroids of groups.
func GroupMatrix(groups []Group, metric Metric) ([]string, [][]float64, error) {
	labels := make([]string, len(groups))
	centroids := make([][]float64, len(groups))
	for i, g := range groups {
		labels[i] = g.Label
		centroids[i] = g.Centroid
	}
	m, err := Matrix(centroids, metric)
	if err != nil {
		return nil, nil, err
	}
	return labels, m, nil
}
