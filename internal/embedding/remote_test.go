package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperjump/susume/internal/models"
)

// fakeClient fails a fixed number of times before succeeding.
type fakeClient struct {
	failures int
	calls    int
	dims     int
}

func (f *fakeClient) CreateEmbeddings(_ context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return openai.EmbeddingResponse{}, errors.New("upstream timeout")
	}
	req := conv.Convert()
	texts := req.Input.([]string)
	data := make([]openai.Embedding, len(texts))
	for i := range texts {
		vec := make([]float32, f.dims)
		vec[0] = 1
		data[i] = openai.Embedding{Embedding: vec}
	}
	return openai.EmbeddingResponse{Data: data}, nil
}

func newTestRemote(t *testing.T, client embeddingsClient, retries int) *RemoteEmbedder {
	t.Helper()
	e, err := NewRemoteEmbedder(RemoteConfig{
		APIKey:      "test",
		Model:       "text-embedding-004",
		Dimensions:  4,
		Timeout:     time.Second,
		MaxRetries:  retries,
		BackoffBase: time.Millisecond,
		CacheSize:   16,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	e.client = client
	return e
}

func TestRemoteEmbedder_RetriesThenSucceeds(t *testing.T) {
	fc := &fakeClient{failures: 2, dims: 4}
	e := newTestRemote(t, fc, 3)
	vec, err := e.Embed(context.Background(), "melancholic piano")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 4 {
		t.Errorf("got %d dims, want 4", len(vec))
	}
	if fc.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", fc.calls)
	}
}

func TestRemoteEmbedder_UnavailableAfterRetries(t *testing.T) {
	fc := &fakeClient{failures: 100, dims: 4}
	e := newTestRemote(t, fc, 2)
	_, err := e.Embed(context.Background(), "q")
	if !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if fc.calls != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", fc.calls)
	}
}

func TestRemoteEmbedder_DimensionDrift(t *testing.T) {
	fc := &fakeClient{failures: 0, dims: 8} // embedder declares 4
	e := newTestRemote(t, fc, 3)
	_, err := e.Embed(context.Background(), "q")
	if !errors.Is(err, models.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if fc.calls != 1 {
		t.Errorf("dimension drift must not be retried, got %d attempts", fc.calls)
	}
}

func TestRemoteEmbedder_CacheHit(t *testing.T) {
	fc := &fakeClient{dims: 4}
	e := newTestRemote(t, fc, 0)
	ctx := context.Background()
	if _, err := e.Embed(ctx, "same text"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(ctx, "same text"); err != nil {
		t.Fatal(err)
	}
	if fc.calls != 1 {
		t.Errorf("second call should hit the cache, got %d upstream calls", fc.calls)
	}
}
