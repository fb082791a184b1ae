// Package similarity scores and ranks candidate vectors against a query.
package similarity

import (
	"sort"

	"github.com/hyperjump/susume/internal/vector"
)

// Scored is one ranked candidate.
type Scored struct {
	ID    string
	Score float64
	Rank  int
}

// Options filters and bounds a ranking.
type Options struct {
	// MinSimilarity excludes candidates scoring below it, applied before
	// selection. Nil means no floor.
	MinSimilarity *float64
	// Exclude drops these ids from consideration (e.g. the query track
	// itself in by-item mode).
	Exclude map[string]struct{}
}

// Similarity returns the cosine similarity of two unit-norm vectors (their
// dot product). Symmetric; Similarity(a, a) is 1 for unit vectors.
func Similarity(a, b []float32) float64 {
	return vector.InnerProduct(a, b)
}

// Rank scores each candidate against query and returns the top k, descending
// by score with ties broken by ascending id. Candidates below the similarity
// floor are excluded before selection. An empty result is a valid outcome,
// never an error.
func Rank(query []float32, candidates []vector.Entry, k int, opts Options) []Scored {
	if k <= 0 || len(candidates) == 0 {
		return []Scored{}
	}
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		if opts.Exclude != nil {
			if _, skip := opts.Exclude[c.ID]; skip {
				continue
			}
		}
		score := vector.InnerProduct(query, c.Vector)
		if opts.MinSimilarity != nil && score < *opts.MinSimilarity {
			continue
		}
		scored = append(scored, Scored{ID: c.ID, Score: score})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if k < len(scored) {
		scored = scored[:k]
	}
	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored
}
