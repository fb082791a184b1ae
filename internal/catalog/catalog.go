// Package catalog provides keyword search over track names, artists, and
// albums, used by the search endpoint and by name-based track resolution.
package catalog

import (
	"context"

	"github.com/hyperjump/susume/internal/models"
)

// Hit is a single catalog search hit.
type Hit struct {
	ID    string
	Score float64
}

// Searcher defines catalog search operations.
type Searcher interface {
	Index(ctx context.Context, track *models.Track) error
	Search(ctx context.Context, query string, limit int) ([]*Hit, error)
	// Resolve finds the track id best matching a name (and optional artist),
	// falling back to fuzzy matching for typo tolerance. Returns
	// models.ErrTrackNotFound when nothing matches.
	Resolve(ctx context.Context, name, artist string) (string, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}
