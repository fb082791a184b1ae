// Package recommender answers nearest-neighbor queries over the fused
// embedding space, either seeded by a known track or by free text.
package recommender

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/susume/internal/combiner"
	"github.com/hyperjump/susume/internal/embedding"
	"github.com/hyperjump/susume/internal/models"
	"github.com/hyperjump/susume/internal/similarity"
	"github.com/hyperjump/susume/internal/storage"
	"github.com/hyperjump/susume/internal/vector"
)

// DefaultLimit is used when a request does not say how many results it wants.
const DefaultLimit = 10

// Options tune a single recommendation query.
type Options struct {
	// Limit caps the number of results. Zero or negative means DefaultLimit.
	Limit int
	// MinSimilarity drops candidates scoring below the floor. Nil disables it.
	MinSimilarity *float64
}

// Recommender serves similarity queries against the current index snapshot.
type Recommender struct {
	index    *vector.Index
	store    storage.Store
	embedder embedding.Embedder
	combiner *combiner.Combiner
	logger   *zap.Logger
}

// New creates a Recommender. All collaborators are required.
func New(index *vector.Index, store storage.Store, embedder embedding.Embedder, comb *combiner.Combiner, logger *zap.Logger) *Recommender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recommender{
		index:    index,
		store:    store,
		embedder: embedder,
		combiner: comb,
		logger:   logger,
	}
}

// ByItem returns the tracks nearest to a known track. The seed track is never
// part of the results. An unknown id yields models.ErrTrackNotFound.
func (r *Recommender) ByItem(ctx context.Context, trackID string, opts Options) ([]*models.Recommendation, error) {
	snap := r.index.Snapshot()
	seed, ok := snap.Get(trackID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrTrackNotFound, trackID)
	}

	scored := similarity.Rank(seed.Vector, snap.Entries(), limitOf(opts), similarity.Options{
		MinSimilarity: opts.MinSimilarity,
		Exclude:       map[string]struct{}{trackID: {}},
	})
	r.logger.Debug("recommendations by item",
		zap.String("track_id", trackID),
		zap.Int("results", len(scored)))
	return r.enrich(ctx, scored)
}

// ByText embeds free text, pads it to the combined space with the query
// placeholder, and returns the nearest tracks.
func (r *Recommender) ByText(ctx context.Context, query string, opts Options) ([]*models.Recommendation, error) {
	textVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	combined, err := r.combiner.CombineQuery(textVec)
	if err != nil {
		return nil, err
	}

	snap := r.index.Snapshot()
	if snap.Size() > 0 && len(combined) != snap.Dimensions() {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			models.ErrDimensionMismatch, len(combined), snap.Dimensions())
	}

	scored := similarity.Rank(combined, snap.Entries(), limitOf(opts), similarity.Options{
		MinSimilarity: opts.MinSimilarity,
	})
	r.logger.Debug("recommendations by text",
		zap.Int("query_len", len(query)),
		zap.Int("results", len(scored)))
	return r.enrich(ctx, scored)
}

// Size reports how many tracks the current snapshot holds.
func (r *Recommender) Size() int {
	return r.index.Snapshot().Size()
}

// ProfileVersion reports the weight profile the current snapshot was built with.
func (r *Recommender) ProfileVersion() string {
	return r.index.Snapshot().ProfileVersion()
}

// enrich attaches track metadata to scored ids. A track that disappeared from
// storage between the snapshot and now is returned with its id only.
func (r *Recommender) enrich(ctx context.Context, scored []similarity.Scored) ([]*models.Recommendation, error) {
	out := make([]*models.Recommendation, 0, len(scored))
	for _, s := range scored {
		rec := &models.Recommendation{
			TrackID: s.ID,
			Score:   s.Score,
			Rank:    s.Rank,
		}
		track, err := r.store.GetTrack(ctx, s.ID)
		switch {
		case err == nil:
			rec.Name = track.Name
			rec.Artist = track.Artist
			rec.Album = track.Album
		case isNotFound(err):
			r.logger.Warn("scored track missing from storage", zap.String("track_id", s.ID))
		default:
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrTrackNotFound)
}

func limitOf(opts Options) int {
	if opts.Limit <= 0 {
		return DefaultLimit
	}
	return opts.Limit
}
