package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/susume/internal/models"
)

func newTestCatalog(t *testing.T) *BleveCatalog {
	t.Helper()
	c, err := NewBleveCatalog(filepath.Join(t.TempDir(), "catalog.bleve"))
	if err != nil {
		t.Fatalf("NewBleveCatalog failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func seedTracks(t *testing.T, c *BleveCatalog) {
	t.Helper()
	tracks := []*models.Track{
		{ID: "t1", Name: "Bohemian Rhapsody", Artist: "Queen", Album: "A Night at the Opera"},
		{ID: "t2", Name: "Opera House", Artist: "Cinema", Album: "Dreams"},
		{ID: "t3", Name: "Somebody to Love", Artist: "Queen", Album: "A Day at the Races"},
	}
	for _, tr := range tracks {
		if err := c.Index(context.Background(), tr); err != nil {
			t.Fatalf("Index(%s) failed: %v", tr.ID, err)
		}
	}
}

func TestSearchFindsByName(t *testing.T) {
	c := newTestCatalog(t)
	seedTracks(t, c)

	hits, err := c.Search(context.Background(), "bohemian", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].ID != "t1" {
		t.Errorf("expected t1, got %s", hits[0].ID)
	}
}

func TestSearchNameOutranksAlbum(t *testing.T) {
	c := newTestCatalog(t)
	seedTracks(t, c)

	// "opera" appears in t2's name and t1's album; the name match wins.
	hits, err := c.Search(context.Background(), "opera", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) < 2 {
		t.Fatalf("expected at least 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "t2" {
		t.Errorf("expected name match t2 first, got %s", hits[0].ID)
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	c := newTestCatalog(t)
	seedTracks(t, c)

	hits, err := c.Search(context.Background(), "queen", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected 1 hit with limit 1, got %d", len(hits))
	}
}

func TestResolveExact(t *testing.T) {
	c := newTestCatalog(t)
	seedTracks(t, c)

	id, err := c.Resolve(context.Background(), "Somebody to Love", "Queen")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id != "t3" {
		t.Errorf("expected t3, got %s", id)
	}
}

func TestResolveFuzzyTypo(t *testing.T) {
	c := newTestCatalog(t)
	seedTracks(t, c)

	id, err := c.Resolve(context.Background(), "bohemain rapsody", "")
	if err != nil {
		t.Fatalf("fuzzy Resolve failed: %v", err)
	}
	if id != "t1" {
		t.Errorf("expected t1, got %s", id)
	}
}

func TestResolveUnknownTrack(t *testing.T) {
	c := newTestCatalog(t)
	seedTracks(t, c)

	_, err := c.Resolve(context.Background(), "zzzzzzzz qqqqqqqq", "xxxxxxxx")
	if !errors.Is(err, models.ErrTrackNotFound) {
		t.Errorf("expected ErrTrackNotFound, got %v", err)
	}
}

func TestDeleteRemovesFromIndex(t *testing.T) {
	c := newTestCatalog(t)
	seedTracks(t, c)

	if err := c.Delete(context.Background(), "t1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	hits, err := c.Search(context.Background(), "bohemian", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected 0 hits after delete, got %d", len(hits))
	}
	count, err := c.DocCount()
	if err != nil {
		t.Fatalf("DocCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 docs after delete, got %d", count)
	}
}
