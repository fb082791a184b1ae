package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/susume/internal/models"
	"github.com/hyperjump/susume/internal/recommender"
)

// handleRecommendByItem serves GET /api/v1/recommendations. The seed track
// comes from ?track_id=, or from ?name= (plus optional ?artist=) resolved
// through the catalog.
func (s *Server) handleRecommendByItem(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	trackID := q.Get("track_id")
	if trackID == "" {
		name := q.Get("name")
		if name == "" {
			s.respondError(w, http.StatusBadRequest, "track_id or name is required")
			return
		}
		if s.catalog == nil {
			s.respondError(w, http.StatusNotImplemented, "name lookup requires the catalog index")
			return
		}
		id, err := s.catalog.Resolve(r.Context(), name, q.Get("artist"))
		if err != nil {
			s.respondRecommendError(w, err)
			return
		}
		trackID = id
	}

	opts, err := optionsFromQuery(q.Get("k"), q.Get("min_similarity"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts.Limit = s.clampLimit(opts.Limit)

	s.logger.Debug("recommend by item", zap.String("track_id", trackID), zap.Int("limit", opts.Limit))
	results, err := s.recommender.ByItem(r.Context(), trackID, opts)
	if err != nil {
		s.respondRecommendError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, &models.RecommendResponse{
		TrackID:        trackID,
		Mode:           models.ByItem,
		Results:        results,
		Total:          len(results),
		ProfileVersion: s.recommender.ProfileVersion(),
		QueryTime:      time.Since(start).Milliseconds(),
	})
}

// handleRecommendByText serves POST /api/v1/recommendations/query.
func (s *Server) handleRecommendByText(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req models.RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	opts := recommender.Options{Limit: s.clampLimit(req.K)}
	if req.MinSimilarity > 0 {
		opts.MinSimilarity = &req.MinSimilarity
	}

	s.logger.Debug("recommend by text", zap.Int("query_len", len(req.Query)), zap.Int("limit", opts.Limit))
	results, err := s.recommender.ByText(r.Context(), req.Query, opts)
	if err != nil {
		s.respondRecommendError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, &models.RecommendResponse{
		Query:          req.Query,
		Mode:           models.ByText,
		Results:        results,
		Total:          len(results),
		ProfileVersion: s.recommender.ProfileVersion(),
		QueryTime:      time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleIngestTrack(w http.ResponseWriter, r *http.Request) {
	var rec models.FeatureRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := s.pipeline.IngestRecord(r.Context(), &rec)
	if err != nil {
		s.logger.Error("ingest failed", zap.Error(err))
		s.respondRecommendError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"track_id": id, "status": "indexed"})
}

func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var recs []*models.FeatureRecord
	if err := json.NewDecoder(r.Body).Decode(&recs); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	report, err := s.pipeline.IngestBatch(r.Context(), recs)
	if err != nil {
		s.logger.Error("batch ingest failed", zap.Error(err))
		s.respondRecommendError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

// handleListTracks serves GET /api/v1/tracks with offset/limit paging.
func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = n
	}
	limit := s.clampLimit(0)
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = s.clampLimit(n)
	}

	tracks, err := s.storage.ListTracks(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list tracks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.storage.CountTracks(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tracks": tracks,
		"offset": offset,
		"limit":  limit,
		"total":  total,
	})
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	track, err := s.storage.GetTrack(r.Context(), id)
	if err != nil {
		s.respondRecommendError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, track)
}

func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete track request", zap.String("id", id))
	// Pipeline removal is a no-op for absent ids; the HTTP contract still
	// distinguishes deleting nothing.
	if _, err := s.storage.GetTrack(r.Context(), id); err != nil {
		s.respondRecommendError(w, err)
		return
	}
	if err := s.pipeline.RemoveTrack(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondRecommendError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"track_id": id, "status": "deleted"})
}

// handleSearch serves GET /api/v1/search, a keyword lookup over the catalog.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.respondError(w, http.StatusNotImplemented, "catalog index not enabled")
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := s.clampLimit(0)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = s.clampLimit(n)
	}

	hits, err := s.catalog.Search(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]map[string]interface{}, 0, len(hits))
	for _, hit := range hits {
		entry := map[string]interface{}{"track_id": hit.ID, "score": hit.Score}
		if track, getErr := s.storage.GetTrack(r.Context(), hit.ID); getErr == nil {
			entry["track_name"] = track.Name
			entry["artist_name"] = track.Artist
			entry["album_name"] = track.Album
		}
		results = append(results, entry)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": results,
		"total":   len(results),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trackCount, err := s.storage.CountTracks(ctx)
	if err != nil {
		s.logger.Error("status: count tracks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	embCount, err := s.storage.CountEmbeddings(ctx)
	if err != nil {
		s.logger.Error("status: count embeddings failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"tracks":          trackCount,
		"embeddings":      embCount,
		"index_size":      s.recommender.Size(),
		"profile_version": s.recommender.ProfileVersion(),
		"config": map[string]interface{}{
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"text_weight":          s.config.Profile.TextWeight,
			"numeric_weight":       s.config.Profile.NumericWeight,
			"database_path":        s.config.Storage.DatabasePath,
			"catalog_index_path":   s.config.Storage.CatalogIndexPath,
		},
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// respondRecommendError maps domain errors to HTTP statuses. Unknown tracks
// are 404, malformed inputs 400, an unreachable embedding backend 502, and a
// corrupt index 500.
func (s *Server) respondRecommendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrTrackNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrSchemaMismatch), errors.Is(err, models.ErrDimensionMismatch):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrEmbeddingUnavailable):
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func optionsFromQuery(rawK, rawMin string) (recommender.Options, error) {
	var opts recommender.Options
	if rawK != "" {
		k, err := strconv.Atoi(rawK)
		if err != nil {
			return opts, errors.New("invalid k")
		}
		opts.Limit = k
	}
	if rawMin != "" {
		min, err := strconv.ParseFloat(rawMin, 64)
		if err != nil {
			return opts, errors.New("invalid min_similarity")
		}
		opts.MinSimilarity = &min
	}
	return opts, nil
}

// clampLimit applies the configured default and ceiling.
func (s *Server) clampLimit(k int) int {
	if k <= 0 {
		return s.config.Recommend.DefaultLimit
	}
	if k > s.config.Recommend.MaxLimit {
		return s.config.Recommend.MaxLimit
	}
	return k
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
