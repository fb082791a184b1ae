package vector

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/susume/internal/models"
)

func TestIndex_UpsertQuery(t *testing.T) {
	idx, err := NewIndex(2, "v1")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// The reference ranking scenario: v3 is [0.9, 0.1] normalized.
	v3 := []float32{0.9, 0.1}
	n := float32(1 / math.Sqrt(0.9*0.9+0.1*0.1))
	v3[0] *= n
	v3[1] *= n

	if err := idx.UpsertBatch(
		[]string{"v1", "v2", "v3"},
		[][]float32{{1, 0}, {0, 1}, v3},
	); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Fatalf("Size=%d, want 3", idx.Size())
	}

	results, err := idx.Query(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ID != "v1" || results[1].ID != "v3" || results[2].ID != "v2" {
		t.Errorf("order = [%s %s %s], want [v1 v3 v2]", results[0].ID, results[1].ID, results[2].ID)
	}
	if math.Abs(results[1].Score-0.9945) > 0.001 {
		t.Errorf("similarity(v1,v3) = %v, want ~0.9945", results[1].Score)
	}
	if results[2].Score != 0 {
		t.Errorf("similarity(v1,v2) = %v, want 0", results[2].Score)
	}
}

func TestIndex_TieBreakAscendingID(t *testing.T) {
	idx, _ := NewIndex(2, "v1")
	_ = idx.UpsertBatch([]string{"zeta", "alpha", "mid"}, [][]float32{{1, 0}, {1, 0}, {1, 0}})
	results, err := idx.Query(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ID != "alpha" || results[1].ID != "mid" || results[2].ID != "zeta" {
		t.Errorf("ties must order by ascending id, got [%s %s %s]",
			results[0].ID, results[1].ID, results[2].ID)
	}
}

func TestIndex_KBounds(t *testing.T) {
	idx, _ := NewIndex(2, "v1")
	_ = idx.Upsert("a", []float32{1, 0})
	ctx := context.Background()

	results, err := idx.Query(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("k beyond size: got %d results, want 1", len(results))
	}

	results, err = idx.Query(ctx, []float32{1, 0}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("k=0: got %d results, want 0", len(results))
	}
}

func TestIndex_QueryDimensionMismatch(t *testing.T) {
	idx, _ := NewIndex(3, "v1")
	_, err := idx.Query(context.Background(), []float32{1, 0}, 1)
	if !errors.Is(err, models.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestIndex_UpsertReplaces(t *testing.T) {
	idx, _ := NewIndex(2, "v1")
	_ = idx.Upsert("a", []float32{1, 0})
	_ = idx.Upsert("a", []float32{0, 1})
	if idx.Size() != 1 {
		t.Fatalf("Size=%d, want 1", idx.Size())
	}
	e, ok := idx.Snapshot().Get("a")
	if !ok || e.Vector[1] != 1 {
		t.Error("upsert should replace the existing vector")
	}
}

func TestIndex_Remove(t *testing.T) {
	idx, _ := NewIndex(2, "v1")
	_ = idx.UpsertBatch([]string{"x", "y"}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Remove("x"); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
	if err := idx.Remove("missing"); err != nil {
		t.Errorf("removing absent id should be a no-op, got %v", err)
	}
}

func TestIndex_RebuildIdempotent(t *testing.T) {
	idx, _ := NewIndex(2, "v1")
	_ = idx.UpsertBatch([]string{"a", "b", "c"}, [][]float32{{1, 0}, {0, 1}, {0.6, 0.8}})
	ctx := context.Background()

	before, err := idx.Query(ctx, []float32{0.6, 0.8}, 3)
	if err != nil {
		t.Fatal(err)
	}

	// Rebuild from the saved snapshot and re-run the identical query.
	saved := idx.Snapshot()
	rebuilt, err := NewSnapshot(saved.Dimensions(), saved.ProfileVersion(), saved.Entries())
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Rebuild(rebuilt); err != nil {
		t.Fatal(err)
	}
	after, err := idx.Query(ctx, []float32{0.6, 0.8}, 3)
	if err != nil {
		t.Fatal(err)
	}

	if len(before) != len(after) {
		t.Fatalf("result count changed: %d != %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Score != after[i].Score {
			t.Errorf("rank %d changed: %v != %v", i, before[i], after[i])
		}
	}
}

func TestSnapshot_IntegrityChecks(t *testing.T) {
	if _, err := NewSnapshot(2, "v1", []Entry{{ID: "", Vector: []float32{1, 0}}}); !errors.Is(err, models.ErrIndexCorrupt) {
		t.Errorf("empty id: expected ErrIndexCorrupt, got %v", err)
	}
	if _, err := NewSnapshot(2, "v1", []Entry{{ID: "a", Vector: []float32{1}}}); !errors.Is(err, models.ErrIndexCorrupt) {
		t.Errorf("wrong dim: expected ErrIndexCorrupt, got %v", err)
	}
	nan := float32(math.NaN())
	if _, err := NewSnapshot(2, "v1", []Entry{{ID: "a", Vector: []float32{nan, 0}}}); !errors.Is(err, models.ErrIndexCorrupt) {
		t.Errorf("NaN: expected ErrIndexCorrupt, got %v", err)
	}
	if _, err := NewSnapshot(2, "v1", []Entry{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "a", Vector: []float32{0, 1}},
	}); !errors.Is(err, models.ErrIndexCorrupt) {
		t.Errorf("duplicate id: expected ErrIndexCorrupt, got %v", err)
	}
}

func TestIndex_SnapshotIsolation(t *testing.T) {
	idx, _ := NewIndex(2, "v1")
	_ = idx.Upsert("a", []float32{1, 0})
	snap := idx.Snapshot()
	_ = idx.Upsert("b", []float32{0, 1})
	if snap.Size() != 1 {
		t.Error("a pinned snapshot must not observe later writes")
	}
	if idx.Size() != 2 {
		t.Error("the live index must observe the write")
	}
}
