package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/susume/internal/models"
)

// RemoteConfig configures the remote embedding provider.
type RemoteConfig struct {
	APIKey      string
	BaseURL     string // optional; empty uses the provider default
	Model       string
	Dimensions  int
	Timeout     time.Duration // per-attempt timeout
	MaxRetries  int           // attempts beyond the first
	BackoffBase time.Duration // initial backoff interval
	CacheSize   int
}

// embeddingsClient is the slice of the OpenAI-compatible client we use.
// Narrowed to an interface so tests can inject failures.
type embeddingsClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// RemoteEmbedder calls an OpenAI-compatible embeddings API. Calls carry a
// bounded per-attempt timeout and a bounded exponential-backoff retry; after
// the retry budget is spent the error is models.ErrEmbeddingUnavailable.
// Results are cached by content hash.
type RemoteEmbedder struct {
	client      embeddingsClient
	model       string
	dimensions  int
	timeout     time.Duration
	maxRetries  int
	backoffBase time.Duration
	cache       *Cache
	logger      *zap.Logger
}

// NewRemoteEmbedder creates a remote embedder from cfg. logger may be nil.
func NewRemoteEmbedder(cfg RemoteConfig, logger *zap.Logger) (*RemoteEmbedder, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteEmbedder{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		dimensions:  cfg.Dimensions,
		timeout:     cfg.Timeout,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		cache:       NewCache(cfg.CacheSize),
		logger:      logger,
	}, nil
}

// Embed returns the embedding for text, from cache when available.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts, fetching only cache misses from the API. Returned
// vectors are unit-normalized. On upstream failure after retries, no partial
// batch is returned.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	for i, text := range texts {
		if cached, ok := e.cache.Get(ContentHash(text)); ok {
			out[i] = cached
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := e.fetch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		vec := vectors[j]
		NormalizeL2(vec)
		e.cache.Set(ContentHash(missTexts[j]), vec)
		out[i] = vec
	}
	return out, nil
}

// fetch calls the embeddings API with per-attempt timeout and bounded
// exponential backoff. Context cancellation stops the retry loop.
func (e *RemoteEmbedder) fetch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.backoffBase
	policy.MaxInterval = e.backoffBase * 10

	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		resp, err := e.client.CreateEmbeddings(attemptCtx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			e.logger.Warn("embedding request failed",
				zap.Int("attempt", attempt),
				zap.Int("batch_size", len(texts)),
				zap.Error(err),
			)
			return err
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("embedding response size %d != request size %d",
				len(resp.Data), len(texts)))
		}
		vectors = make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			if len(d.Embedding) != e.dimensions {
				return backoff.Permanent(fmt.Errorf("%w: upstream returned %d dims, expected %d",
					models.ErrDimensionMismatch, len(d.Embedding), e.dimensions))
			}
			vec := make([]float32, e.dimensions)
			copy(vec, d.Embedding)
			vectors[i] = vec
		}
		return nil
	}

	err := backoff.Retry(op,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(e.maxRetries)), ctx))
	if err != nil {
		// Dimension drift keeps its own error kind; everything else is an
		// unavailable upstream after the retry budget.
		if errors.Is(err, models.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	return vectors, nil
}

// Dimensions returns the declared embedding dimension.
func (e *RemoteEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for the HTTP client.
func (e *RemoteEmbedder) Close() error {
	return nil
}
