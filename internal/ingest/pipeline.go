// Package ingest turns upstream feature records into stored tracks, durable
// embeddings, and live index entries.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/susume/internal/catalog"
	"github.com/hyperjump/susume/internal/combiner"
	"github.com/hyperjump/susume/internal/embedding"
	"github.com/hyperjump/susume/internal/feature"
	"github.com/hyperjump/susume/internal/models"
	"github.com/hyperjump/susume/internal/storage"
	"github.com/hyperjump/susume/internal/vector"
)

// DefaultBatchSize bounds how many texts go to the embedder in one call.
const DefaultBatchSize = 25

// Report summarizes one ingest run.
type Report struct {
	JobID    string        `json:"job_id"`
	Indexed  int           `json:"indexed"`
	Failed   int           `json:"failed"`
	Errors   []string      `json:"errors,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Pipeline runs feature records through normalize, embed, combine, persist,
// and index. Embeddings are durably saved before the in-memory snapshot is
// swapped, so a crash between the two only costs a rebuild.
type Pipeline struct {
	store      storage.Store
	catalog    catalog.Searcher
	embedder   embedding.Embedder
	normalizer *feature.Normalizer
	combiner   *combiner.Combiner
	index      *vector.Index
	logger     *zap.Logger
	batchSize  int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize overrides the embedding batch size.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// NewPipeline creates a pipeline. catalog may be nil to skip keyword indexing.
func NewPipeline(
	store storage.Store,
	cat catalog.Searcher,
	embedder embedding.Embedder,
	normalizer *feature.Normalizer,
	comb *combiner.Combiner,
	index *vector.Index,
	logger *zap.Logger,
	opts ...Option,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		store:      store,
		catalog:    cat,
		embedder:   embedder,
		normalizer: normalizer,
		combiner:   comb,
		index:      index,
		logger:     logger,
		batchSize:  DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestRecord processes one feature record end to end and swaps it into the
// live index. Returns the track id (generated when the record carries none).
func (p *Pipeline) IngestRecord(ctx context.Context, rec *models.FeatureRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	numeric, err := p.normalizer.Normalize(rec.Attributes)
	if err != nil {
		return "", fmt.Errorf("track %s: %w", rec.ID, err)
	}
	text, err := p.embedder.Embed(ctx, rec.EmbeddingText())
	if err != nil {
		return "", fmt.Errorf("track %s: %w", rec.ID, err)
	}
	combined, err := p.combiner.Combine(numeric, text)
	if err != nil {
		return "", fmt.Errorf("track %s: %w", rec.ID, err)
	}

	track := trackFromRecord(rec)
	if err := p.store.UpsertTrack(ctx, track); err != nil {
		return "", fmt.Errorf("failed to store track %s: %w", rec.ID, err)
	}
	if err := p.store.SaveEmbedding(ctx, p.embeddingFor(rec.ID, text, numeric, combined)); err != nil {
		return "", fmt.Errorf("failed to save embedding for %s: %w", rec.ID, err)
	}
	// Catalog goes first so an error here never leaves the track live in
	// the vector index.
	if p.catalog != nil {
		if err := p.catalog.Index(ctx, track); err != nil {
			return "", fmt.Errorf("failed to index %s in catalog: %w", rec.ID, err)
		}
	}
	if err := p.index.Upsert(rec.ID, combined); err != nil {
		return "", fmt.Errorf("failed to index %s: %w", rec.ID, err)
	}

	p.logger.Debug("track ingested", zap.String("track_id", rec.ID))
	return rec.ID, nil
}

// IngestBatch processes records in embedding batches, persists every
// successful track, and publishes all new vectors in a single snapshot swap.
// Records that fail normalization or embedding are counted and reported, not
// fatal. A context cancellation aborts before the swap, leaving the previous
// snapshot fully intact.
func (p *Pipeline) IngestBatch(ctx context.Context, recs []*models.FeatureRecord) (*Report, error) {
	start := time.Now()
	report := &Report{JobID: uuid.New().String()}

	ids := make([]string, 0, len(recs))
	vectors := make([][]float32, 0, len(recs))

	for offset := 0; offset < len(recs); offset += p.batchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := offset + p.batchSize
		if end > len(recs) {
			end = len(recs)
		}
		batchIDs, batchVecs := p.processBatch(ctx, recs[offset:end], report)
		ids = append(ids, batchIDs...)
		vectors = append(vectors, batchVecs...)
	}

	if len(ids) > 0 {
		if err := p.index.UpsertBatch(ids, vectors); err != nil {
			return report, fmt.Errorf("failed to publish batch: %w", err)
		}
	}
	p.refreshCentroid()

	report.Duration = time.Since(start)
	p.logger.Info("ingest batch complete",
		zap.String("job_id", report.JobID),
		zap.Int("indexed", report.Indexed),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// processBatch normalizes and embeds one slice of records. Tracks that make
// it through are persisted and their ids and combined vectors returned for
// the caller's single index swap.
func (p *Pipeline) processBatch(ctx context.Context, recs []*models.FeatureRecord, report *Report) ([]string, [][]float32) {
	type prepared struct {
		rec     *models.FeatureRecord
		numeric []float32
	}

	ok := make([]prepared, 0, len(recs))
	texts := make([]string, 0, len(recs))
	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		numeric, err := p.normalizer.Normalize(rec.Attributes)
		if err != nil {
			report.fail(rec.ID, err)
			continue
		}
		ok = append(ok, prepared{rec: rec, numeric: numeric})
		texts = append(texts, rec.EmbeddingText())
	}
	if len(ok) == 0 {
		return nil, nil
	}

	textVecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		// A failed batch call fails every record in it.
		for _, pr := range ok {
			report.fail(pr.rec.ID, err)
		}
		return nil, nil
	}

	ids := make([]string, 0, len(ok))
	vectors := make([][]float32, 0, len(ok))
	for i, pr := range ok {
		combined, err := p.combiner.Combine(pr.numeric, textVecs[i])
		if err != nil {
			report.fail(pr.rec.ID, err)
			continue
		}
		if err := p.store.UpsertTrack(ctx, trackFromRecord(pr.rec)); err != nil {
			report.fail(pr.rec.ID, err)
			continue
		}
		if err := p.store.SaveEmbedding(ctx, p.embeddingFor(pr.rec.ID, textVecs[i], pr.numeric, combined)); err != nil {
			report.fail(pr.rec.ID, err)
			continue
		}
		if p.catalog != nil {
			if err := p.catalog.Index(ctx, trackFromRecord(pr.rec)); err != nil {
				report.fail(pr.rec.ID, err)
				continue
			}
		}
		ids = append(ids, pr.rec.ID)
		vectors = append(vectors, combined)
		report.Indexed++
	}
	return ids, vectors
}

// IngestFile reads a JSON array of feature records and ingests them as one
// batch.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var recs []*models.FeatureRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	p.logger.Info("ingesting file", zap.String("path", path), zap.Int("records", len(recs)))
	return p.IngestBatch(ctx, recs)
}

// RemoveTrack deletes a track everywhere: live index, catalog, embedding
// snapshot, and track storage. Removing an absent track is a no-op.
func (p *Pipeline) RemoveTrack(ctx context.Context, id string) error {
	if err := p.index.Remove(id); err != nil {
		return fmt.Errorf("failed to remove %s from index: %w", id, err)
	}
	if p.catalog != nil {
		if err := p.catalog.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to remove %s from catalog: %w", id, err)
		}
	}
	if err := p.store.DeleteEmbedding(ctx, id); err != nil {
		return fmt.Errorf("failed to delete embedding %s: %w", id, err)
	}
	if err := p.store.DeleteTrack(ctx, id); err != nil {
		return fmt.Errorf("failed to delete track %s: %w", id, err)
	}
	p.logger.Debug("track removed", zap.String("track_id", id))
	return nil
}

// Rebuild reconstructs the in-memory index from the durable embedding
// snapshot in storage. The swap is atomic; until it happens queries keep
// serving the previous snapshot.
func (p *Pipeline) Rebuild(ctx context.Context) (int, error) {
	embeddings, err := p.store.LoadSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load snapshot: %w", err)
	}
	// LoadSnapshot guarantees all rows share one profile version, so the
	// first row speaks for the lot. Vectors persisted under a different
	// profile cannot serve the active one even when dimensions agree.
	if len(embeddings) > 0 {
		active := p.combiner.Profile().Version
		if stored := embeddings[0].ProfileVersion; stored != active {
			return 0, fmt.Errorf("%w: stored embeddings use profile %q, active profile is %q",
				models.ErrIndexCorrupt, stored, active)
		}
	}

	entries := make([]vector.Entry, len(embeddings))
	for i, emb := range embeddings {
		entries[i] = vector.Entry{ID: emb.TrackID, Vector: emb.CombinedVector}
	}
	snap, err := vector.NewSnapshot(p.index.Dimensions(), p.index.ProfileVersion(), entries)
	if err != nil {
		return 0, err
	}
	if err := p.index.Rebuild(snap); err != nil {
		return 0, err
	}
	p.refreshCentroid()

	p.logger.Info("index rebuilt from storage", zap.Int("tracks", len(entries)))
	return len(entries), nil
}

// refreshCentroid recomputes the numeric centroid for query mode when the
// profile asks for one. The numeric component of each stored vector is the
// unit numeric vector scaled by the profile weights, so renormalizing the
// tail recovers it.
func (p *Pipeline) refreshCentroid() {
	profile := p.combiner.Profile()
	if profile.Placeholder != combiner.PlaceholderCentroid {
		return
	}
	snap := p.index.Snapshot()
	if snap.Size() == 0 {
		return
	}
	sum := make([]float32, profile.NumericDim)
	for _, e := range snap.Entries() {
		tail := make([]float32, profile.NumericDim)
		copy(tail, e.Vector[profile.TextDim:])
		embedding.NormalizeL2(tail)
		for i, v := range tail {
			sum[i] += v
		}
	}
	n := float32(snap.Size())
	for i := range sum {
		sum[i] /= n
	}
	if err := p.combiner.SetCentroid(sum); err != nil {
		p.logger.Warn("failed to set centroid", zap.Error(err))
	}
}

func (p *Pipeline) embeddingFor(id string, text, numeric, combined []float32) *models.Embedding {
	return &models.Embedding{
		TrackID:        id,
		TextVector:     text,
		NumericVector:  numeric,
		CombinedVector: combined,
		Dimension:      len(combined),
		ProfileVersion: p.combiner.Profile().Version,
		CreatedAt:      time.Now().UTC(),
	}
}

func trackFromRecord(rec *models.FeatureRecord) *models.Track {
	now := time.Now().UTC()
	return &models.Track{
		ID:         rec.ID,
		Name:       rec.Name,
		Artist:     rec.Artist,
		Album:      rec.Album,
		Attributes: rec.Attributes,
		TextBlob:   rec.TextBlob,
		Metadata:   rec.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (r *Report) fail(id string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", id, err))
}
