// Package storage defines persistence for the track catalog and the durable
// embedding snapshot.
package storage

import (
	"context"

	"github.com/hyperjump/susume/internal/models"
)

// Store defines track and embedding persistence. The embeddings table is the
// durable snapshot: the vector index is fully reconstructible from it alone,
// with no mutation history to replay.
type Store interface {
	// Track operations
	UpsertTrack(ctx context.Context, track *models.Track) error
	GetTrack(ctx context.Context, id string) (*models.Track, error)
	DeleteTrack(ctx context.Context, id string) error
	ListTracks(ctx context.Context, offset, limit int) ([]*models.Track, error)
	CountTracks(ctx context.Context) (int64, error)

	// Embedding snapshot operations. SaveEmbedding supersedes any previous
	// row for the same track; DeleteEmbedding removes a track from the
	// snapshot entirely.
	SaveEmbedding(ctx context.Context, emb *models.Embedding) error
	DeleteEmbedding(ctx context.Context, trackID string) error
	LoadSnapshot(ctx context.Context) ([]*models.Embedding, error)
	CountEmbeddings(ctx context.Context) (int64, error)

	Close() error
}
