package recommender

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/hyperjump/susume/internal/combiner"
	"github.com/hyperjump/susume/internal/embedding"
	"github.com/hyperjump/susume/internal/models"
	"github.com/hyperjump/susume/internal/vector"
)

// memStore is an in-memory Store for recommender tests.
type memStore struct {
	tracks map[string]*models.Track
}

func newMemStore() *memStore {
	return &memStore{tracks: make(map[string]*models.Track)}
}

func (s *memStore) UpsertTrack(ctx context.Context, track *models.Track) error {
	s.tracks[track.ID] = track
	return nil
}

func (s *memStore) GetTrack(ctx context.Context, id string) (*models.Track, error) {
	track, ok := s.tracks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrTrackNotFound, id)
	}
	return track, nil
}

func (s *memStore) DeleteTrack(ctx context.Context, id string) error {
	delete(s.tracks, id)
	return nil
}

func (s *memStore) ListTracks(ctx context.Context, offset, limit int) ([]*models.Track, error) {
	return nil, nil
}

func (s *memStore) CountTracks(ctx context.Context) (int64, error) {
	return int64(len(s.tracks)), nil
}

func (s *memStore) SaveEmbedding(ctx context.Context, emb *models.Embedding) error { return nil }
func (s *memStore) DeleteEmbedding(ctx context.Context, trackID string) error      { return nil }
func (s *memStore) LoadSnapshot(ctx context.Context) ([]*models.Embedding, error)  { return nil, nil }
func (s *memStore) CountEmbeddings(ctx context.Context) (int64, error)             { return 0, nil }
func (s *memStore) Close() error                                                   { return nil }

const (
	testTextDim    = 4
	testNumericDim = 2
)

// testFixture wires a small index whose vectors live in the 6-dim combined
// space (4 text + 2 numeric, weighted 0.7/0.3).
func testFixture(t *testing.T) (*Recommender, *combiner.Combiner, *embedding.MockEmbedder) {
	t.Helper()
	comb := combiner.New(combiner.DefaultProfile(testTextDim, testNumericDim))
	embedder := embedding.NewMockEmbedder(testTextDim)

	idx, err := vector.NewIndex(comb.Profile().CombinedDim(), comb.Profile().Version)
	if err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}
	store := newMemStore()

	tracks := []struct {
		id, name, artist string
		numeric          []float32
	}{
		{"t1", "First Song", "Alpha", []float32{0.2, 0.9}},
		{"t2", "Second Song", "Beta", []float32{0.21, 0.89}},
		{"t3", "Third Song", "Gamma", []float32{0.9, 0.1}},
	}
	ctx := context.Background()
	for _, tr := range tracks {
		text, embErr := embedder.Embed(ctx, tr.name+" | "+tr.artist)
		if embErr != nil {
			t.Fatalf("Embed failed: %v", embErr)
		}
		combined, combErr := comb.Combine(tr.numeric, text)
		if combErr != nil {
			t.Fatalf("Combine failed: %v", combErr)
		}
		if upErr := idx.Upsert(tr.id, combined); upErr != nil {
			t.Fatalf("Upsert failed: %v", upErr)
		}
		store.tracks[tr.id] = &models.Track{ID: tr.id, Name: tr.name, Artist: tr.artist}
	}

	return New(idx, store, embedder, comb, nil), comb, embedder
}

func TestByItemExcludesSeed(t *testing.T) {
	rec, _, _ := testFixture(t)

	results, err := rec.ByItem(context.Background(), "t1", Options{Limit: 10})
	if err != nil {
		t.Fatalf("ByItem failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.TrackID == "t1" {
			t.Errorf("seed track t1 appeared in its own recommendations")
		}
	}
}

func TestByItemRanksAndEnriches(t *testing.T) {
	rec, _, _ := testFixture(t)

	results, err := rec.ByItem(context.Background(), "t1", Options{Limit: 10})
	if err != nil {
		t.Fatalf("ByItem failed: %v", err)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted by descending score at %d", i)
		}
	}
	for i, r := range results {
		if r.Rank != i+1 {
			t.Errorf("expected rank %d, got %d", i+1, r.Rank)
		}
		if r.Name == "" || r.Artist == "" {
			t.Errorf("result %s missing metadata", r.TrackID)
		}
	}
}

func TestByItemUnknownTrack(t *testing.T) {
	rec, _, _ := testFixture(t)

	_, err := rec.ByItem(context.Background(), "nope", Options{})
	if !errors.Is(err, models.ErrTrackNotFound) {
		t.Errorf("expected ErrTrackNotFound, got %v", err)
	}
}

func TestByItemRespectsLimit(t *testing.T) {
	rec, _, _ := testFixture(t)

	results, err := rec.ByItem(context.Background(), "t1", Options{Limit: 1})
	if err != nil {
		t.Fatalf("ByItem failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result with limit 1, got %d", len(results))
	}
}

func TestByItemSimilarityFloor(t *testing.T) {
	rec, _, _ := testFixture(t)

	floor := 1.1
	results, err := rec.ByItem(context.Background(), "t1", Options{MinSimilarity: &floor})
	if err != nil {
		t.Fatalf("ByItem failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results above impossible floor, got %d", len(results))
	}
}

func TestByTextReturnsRankedResults(t *testing.T) {
	rec, _, _ := testFixture(t)

	results, err := rec.ByText(context.Background(), "First Song | Alpha", Options{Limit: 10})
	if err != nil {
		t.Fatalf("ByText failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// The query text matches t1's embedding text exactly, so t1's text
	// component aligns perfectly and it must rank first.
	if results[0].TrackID != "t1" {
		t.Errorf("expected t1 first for its own text, got %s", results[0].TrackID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted by descending score at %d", i)
		}
	}
}

func TestByTextDeterministic(t *testing.T) {
	rec, _, _ := testFixture(t)

	ctx := context.Background()
	a, err := rec.ByText(ctx, "mellow evening jazz", Options{Limit: 10})
	if err != nil {
		t.Fatalf("ByText failed: %v", err)
	}
	b, err := rec.ByText(ctx, "mellow evening jazz", Options{Limit: 10})
	if err != nil {
		t.Fatalf("ByText failed: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("result counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].TrackID != b[i].TrackID || a[i].Score != b[i].Score {
			t.Errorf("result %d differs between identical queries", i)
		}
	}
}

func TestByTextScoresBounded(t *testing.T) {
	rec, _, _ := testFixture(t)

	results, err := rec.ByText(context.Background(), "anything at all", Options{Limit: 10})
	if err != nil {
		t.Fatalf("ByText failed: %v", err)
	}
	for _, r := range results {
		if r.Score < -1.0001 || r.Score > 1.0001 || math.IsNaN(r.Score) {
			t.Errorf("score %f for %s out of cosine range", r.Score, r.TrackID)
		}
	}
}

func TestSizeAndProfileVersion(t *testing.T) {
	rec, comb, _ := testFixture(t)

	if rec.Size() != 3 {
		t.Errorf("expected size 3, got %d", rec.Size())
	}
	if rec.ProfileVersion() != comb.Profile().Version {
		t.Errorf("profile version mismatch: %s vs %s", rec.ProfileVersion(), comb.Profile().Version)
	}
}
