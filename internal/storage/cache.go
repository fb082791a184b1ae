package storage

import (
	"container/list"
	"context"
	"sync"

	"github.com/hyperjump/susume/internal/models"
)

// CachedStore wraps a Store with a read-through LRU cache for track lookups,
// keyed by track id. Writes invalidate deterministically: an upsert or
// delete evicts the entry before hitting the backing store, so a re-embedded
// track is never served from stale metadata.
type CachedStore struct {
	Store
	capacity int
	mu       sync.Mutex
	cache    map[string]*list.Element
	lru      *list.List
}

type trackEntry struct {
	id    string
	track *models.Track
}

// NewCachedStore wraps store with a track cache of the given capacity.
func NewCachedStore(store Store, capacity int) *CachedStore {
	if capacity <= 0 {
		capacity = 1024
	}
	return &CachedStore{
		Store:    store,
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// GetTrack returns the cached track when present, reading through otherwise.
func (c *CachedStore) GetTrack(ctx context.Context, id string) (*models.Track, error) {
	c.mu.Lock()
	if elem, ok := c.cache[id]; ok {
		c.lru.MoveToFront(elem)
		track := elem.Value.(*trackEntry).track
		c.mu.Unlock()
		return track, nil
	}
	c.mu.Unlock()

	track, err := c.Store.GetTrack(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[id]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*trackEntry).track = track
		return track, nil
	}
	elem := c.lru.PushFront(&trackEntry{id: id, track: track})
	c.cache[id] = elem
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*trackEntry).id)
		}
	}
	return track, nil
}

// UpsertTrack invalidates the cached entry, then writes through.
func (c *CachedStore) UpsertTrack(ctx context.Context, track *models.Track) error {
	c.invalidate(track.ID)
	return c.Store.UpsertTrack(ctx, track)
}

// DeleteTrack invalidates the cached entry, then deletes.
func (c *CachedStore) DeleteTrack(ctx context.Context, id string) error {
	c.invalidate(id)
	return c.Store.DeleteTrack(ctx, id)
}

// Invalidate evicts id from the cache. The ingest pipeline calls this when a
// re-embedding supersedes a track's embedding.
func (c *CachedStore) Invalidate(id string) {
	c.invalidate(id)
}

func (c *CachedStore) invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[id]; ok {
		c.lru.Remove(elem)
		delete(c.cache, id)
	}
}
