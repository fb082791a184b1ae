package similarity

import (
	"math"
	"testing"

	"github.com/hyperjump/susume/internal/vector"
)

func unit(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	n := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * n
	}
	return out
}

func TestSimilarity_Symmetry(t *testing.T) {
	a := unit([]float32{0.3, 0.4, 0.5})
	b := unit([]float32{0.9, 0.1, 0.2})
	if Similarity(a, b) != Similarity(b, a) {
		t.Errorf("similarity must be symmetric: %v != %v", Similarity(a, b), Similarity(b, a))
	}
}

func TestSimilarity_Self(t *testing.T) {
	a := unit([]float32{0.2, 0.7, 0.1})
	if math.Abs(Similarity(a, a)-1) > 1e-6 {
		t.Errorf("self-similarity = %v, want 1", Similarity(a, a))
	}
}

func TestRank_OrderAndBound(t *testing.T) {
	candidates := []vector.Entry{
		{ID: "far", Vector: []float32{0, 1}},
		{ID: "near", Vector: unit([]float32{0.9, 0.1})},
		{ID: "exact", Vector: []float32{1, 0}},
	}
	results := Rank([]float32{1, 0}, candidates, 2, Options{})
	if len(results) != 2 {
		t.Fatalf("len=%d, want 2 (bounded by k)", len(results))
	}
	if results[0].ID != "exact" || results[1].ID != "near" {
		t.Errorf("order = [%s %s], want [exact near]", results[0].ID, results[1].ID)
	}
	if results[0].Rank != 1 || results[1].Rank != 2 {
		t.Errorf("ranks = [%d %d], want [1 2]", results[0].Rank, results[1].Rank)
	}
}

func TestRank_TiesAscendingID(t *testing.T) {
	candidates := []vector.Entry{
		{ID: "b", Vector: []float32{1, 0}},
		{ID: "a", Vector: []float32{1, 0}},
	}
	results := Rank([]float32{1, 0}, candidates, 2, Options{})
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("equal scores must order by ascending id, got [%s %s]", results[0].ID, results[1].ID)
	}
}

func TestRank_ThresholdFiltersBeforeSelection(t *testing.T) {
	floor := 0.5
	candidates := []vector.Entry{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
	}
	results := Rank([]float32{1, 0}, candidates, 2, Options{MinSimilarity: &floor})
	if len(results) != 1 || results[0].ID != "a" {
		t.Errorf("expected only a above the floor, got %v", results)
	}
}

func TestRank_ImpossibleThresholdEmpty(t *testing.T) {
	floor := 1.1 // no cosine score can exceed 1.0
	candidates := []vector.Entry{{ID: "a", Vector: []float32{1, 0}}}
	results := Rank([]float32{1, 0}, candidates, 5, Options{MinSimilarity: &floor})
	if results == nil || len(results) != 0 {
		t.Errorf("expected empty (non-nil) result, got %v", results)
	}
}

func TestRank_Exclude(t *testing.T) {
	candidates := []vector.Entry{
		{ID: "self", Vector: []float32{1, 0}},
		{ID: "other", Vector: unit([]float32{0.9, 0.1})},
	}
	results := Rank([]float32{1, 0}, candidates, 5, Options{
		Exclude: map[string]struct{}{"self": {}},
	})
	for _, r := range results {
		if r.ID == "self" {
			t.Fatal("excluded id must not appear in results")
		}
	}
	if len(results) != 1 {
		t.Errorf("len=%d, want 1", len(results))
	}
}

func TestRank_EmptyCandidates(t *testing.T) {
	results := Rank([]float32{1, 0}, nil, 5, Options{})
	if len(results) != 0 {
		t.Errorf("empty candidates must yield empty results, got %v", results)
	}
}
