package embedding

import "testing"

func TestCache_GetSet(t *testing.T) {
	c := NewCache(2)
	key := ContentHash("hello")
	c.Set(key, []float32{1, 2})
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 || got[0] != 1 {
		t.Errorf("unexpected value: %v", got)
	}
}

func TestCache_Eviction(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Set("c", []float32{3}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("newest entry should be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len=%d, want 2", c.Len())
	}
}

func TestContentHash_Deterministic(t *testing.T) {
	if ContentHash("same text") != ContentHash("same text") {
		t.Error("identical text must produce identical cache keys")
	}
	if ContentHash("a") == ContentHash("b") {
		t.Error("different text should produce different keys")
	}
}
