// Package vector provides the exact in-memory vector index over atomically
// swapped immutable snapshots.
package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hyperjump/susume/internal/models"
)

// Result is a single nearest-neighbor hit.
type Result struct {
	ID    string
	Score float64
}

// Index stores combined vectors keyed by track id and answers exact top-k
// queries with a brute-force scan; corpus sizes are modest (hundreds to low
// thousands), so exactness is the contract and no recall bound is needed.
//
// Reads are lock-free: a query loads the current snapshot pointer once and
// works against it. Writes serialize on mu, build a replacement snapshot,
// and publish it with one atomic swap.
type Index struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // serializes writers
}

// NewIndex creates an empty index for the given dimension and profile version.
func NewIndex(dimensions int, profileVersion string) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	snap, err := NewSnapshot(dimensions, profileVersion, nil)
	if err != nil {
		return nil, err
	}
	idx := &Index{}
	idx.current.Store(snap)
	return idx, nil
}

// Snapshot returns the current immutable snapshot.
func (idx *Index) Snapshot() *Snapshot {
	return idx.current.Load()
}

// Dimensions returns the index vector dimension.
func (idx *Index) Dimensions() int {
	return idx.current.Load().Dimensions()
}

// ProfileVersion returns the active weight-profile version.
func (idx *Index) ProfileVersion() string {
	return idx.current.Load().ProfileVersion()
}

// Size returns the number of indexed vectors.
func (idx *Index) Size() int {
	return idx.current.Load().Size()
}

// Upsert inserts or replaces the vector for id.
func (idx *Index) Upsert(id string, vec []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	snap := idx.current.Load()
	next, err := snap.with(Entry{ID: id, Vector: vec})
	if err != nil {
		return err
	}
	idx.current.Store(next)
	return nil
}

// UpsertBatch inserts or replaces many vectors in one snapshot swap.
func (idx *Index) UpsertBatch(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	snap := idx.current.Load()

	replaced := make(map[string]int, len(ids))
	for i, id := range ids {
		replaced[id] = i
	}
	entries := make([]Entry, 0, snap.Size()+len(ids))
	for _, e := range snap.Entries() {
		if _, ok := replaced[e.ID]; !ok {
			entries = append(entries, e)
		}
	}
	for i, id := range ids {
		entries = append(entries, Entry{ID: id, Vector: vectors[i]})
	}
	next, err := NewSnapshot(snap.Dimensions(), snap.ProfileVersion(), entries)
	if err != nil {
		return err
	}
	idx.current.Store(next)
	return nil
}

// Remove deletes the vector for id. Removing an absent id is a no-op.
func (idx *Index) Remove(id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	snap := idx.current.Load()
	if _, ok := snap.Get(id); !ok {
		return nil
	}
	next, err := snap.without(id)
	if err != nil {
		return err
	}
	idx.current.Store(next)
	return nil
}

// Rebuild replaces the entire index content atomically from snap. In-flight
// queries keep the snapshot they started with.
func (idx *Index) Rebuild(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", models.ErrIndexCorrupt)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.current.Store(snap)
	return nil
}

// Query returns the top-k entries by inner product against query, descending
// score with ties broken by ascending id. An empty index yields an empty
// result, not an error.
func (idx *Index) Query(ctx context.Context, query []float32, k int) ([]*Result, error) {
	snap := idx.current.Load()
	if len(query) != snap.Dimensions() {
		return nil, fmt.Errorf("%w: query has %d dims, index expects %d",
			models.ErrDimensionMismatch, len(query), snap.Dimensions())
	}
	if k <= 0 || snap.Size() == 0 {
		return []*Result{}, nil
	}

	results := make([]*Result, 0, snap.Size())
	for _, e := range snap.Entries() {
		results = append(results, &Result{ID: e.ID, Score: InnerProduct(query, e.Vector)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Centroid returns the mean of all indexed vectors, or nil when empty. Used
// as the optional query-mode numeric placeholder source.
func (idx *Index) Centroid() []float32 {
	snap := idx.current.Load()
	if snap.Size() == 0 {
		return nil
	}
	centroid := make([]float32, snap.Dimensions())
	for _, e := range snap.Entries() {
		for i, v := range e.Vector {
			centroid[i] += v
		}
	}
	n := float32(snap.Size())
	for i := range centroid {
		centroid[i] /= n
	}
	return centroid
}
