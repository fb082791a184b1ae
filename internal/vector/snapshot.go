package vector

import (
	"fmt"
	"math"
	"sort"

	"github.com/hyperjump/susume/internal/models"
)

// Entry is one indexed vector: track id, unit combined vector, cached norm.
type Entry struct {
	ID     string
	Vector []float32
	Norm   float64
}

// Snapshot is an immutable view of the index contents. Queries pin one
// snapshot for their whole duration; writers build a replacement and swap it
// in atomically, so a reader never observes partial state.
type Snapshot struct {
	dimensions     int
	profileVersion string
	entries        []Entry
	byID           map[string]int
}

// NewSnapshot builds a snapshot from entries. Entries are defensively copied
// and ordered by ascending id so iteration order is deterministic.
func NewSnapshot(dimensions int, profileVersion string, entries []Entry) (*Snapshot, error) {
	s := &Snapshot{
		dimensions:     dimensions,
		profileVersion: profileVersion,
		entries:        make([]Entry, 0, len(entries)),
		byID:           make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if err := validateEntry(e, dimensions); err != nil {
			return nil, err
		}
		vec := make([]float32, dimensions)
		copy(vec, e.Vector)
		s.entries = append(s.entries, Entry{ID: e.ID, Vector: vec, Norm: L2Norm(vec)})
	}
	sort.Slice(s.entries, func(i, j int) bool { return s.entries[i].ID < s.entries[j].ID })
	for i, e := range s.entries {
		if _, dup := s.byID[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q in snapshot", models.ErrIndexCorrupt, e.ID)
		}
		s.byID[e.ID] = i
	}
	return s, nil
}

// validateEntry is the snapshot integrity check: right dimension, non-empty
// id, finite values. A violation means the snapshot cannot be loaded and the
// index must be rebuilt from source features.
func validateEntry(e Entry, dimensions int) error {
	if e.ID == "" {
		return fmt.Errorf("%w: entry with empty id", models.ErrIndexCorrupt)
	}
	if len(e.Vector) != dimensions {
		return fmt.Errorf("%w: entry %q has %d dims, snapshot declares %d",
			models.ErrIndexCorrupt, e.ID, len(e.Vector), dimensions)
	}
	for _, v := range e.Vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: entry %q contains non-finite values", models.ErrIndexCorrupt, e.ID)
		}
	}
	return nil
}

// Dimensions returns the snapshot's vector dimension.
func (s *Snapshot) Dimensions() int { return s.dimensions }

// ProfileVersion returns the weight-profile version the vectors were built under.
func (s *Snapshot) ProfileVersion() string { return s.profileVersion }

// Size returns the number of entries.
func (s *Snapshot) Size() int { return len(s.entries) }

// Entries returns the snapshot's entries in ascending id order. Callers must
// not mutate the returned slice.
func (s *Snapshot) Entries() []Entry { return s.entries }

// Get returns the entry for id.
func (s *Snapshot) Get(id string) (Entry, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// with returns a new snapshot with e upserted. Used by the write path.
func (s *Snapshot) with(e Entry) (*Snapshot, error) {
	entries := make([]Entry, 0, len(s.entries)+1)
	for _, existing := range s.entries {
		if existing.ID != e.ID {
			entries = append(entries, existing)
		}
	}
	entries = append(entries, e)
	return NewSnapshot(s.dimensions, s.profileVersion, entries)
}

// without returns a new snapshot with id removed.
func (s *Snapshot) without(id string) (*Snapshot, error) {
	entries := make([]Entry, 0, len(s.entries))
	for _, existing := range s.entries {
		if existing.ID != id {
			entries = append(entries, existing)
		}
	}
	return NewSnapshot(s.dimensions, s.profileVersion, entries)
}
