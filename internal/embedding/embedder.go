// Package embedding adapts external text-embedding capabilities behind one
// interface, with content-addressed caching and bounded retry.
package embedding

import "context"

// Embedder produces fixed-dimension vector embeddings for text. It is the
// only component in the core allowed to block on external I/O; every
// implementation carries a bounded timeout and never returns a partially
// filled vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
