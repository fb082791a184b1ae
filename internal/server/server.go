// Package server provides the HTTP API for Susume.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/susume/internal/catalog"
	"github.com/hyperjump/susume/internal/config"
	"github.com/hyperjump/susume/internal/ingest"
	"github.com/hyperjump/susume/internal/recommender"
	"github.com/hyperjump/susume/internal/storage"
)

// Server is the HTTP server for the Susume API.
type Server struct {
	recommender *recommender.Recommender
	pipeline    *ingest.Pipeline
	storage     storage.Store
	catalog     catalog.Searcher
	config      *config.Config
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies. catalog may be nil;
// name-based lookups and keyword search then return 501.
func NewServer(
	rec *recommender.Recommender,
	pipeline *ingest.Pipeline,
	store storage.Store,
	cat catalog.Searcher,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		recommender: rec,
		pipeline:    pipeline,
		storage:     store,
		catalog:     cat,
		config:      cfg,
		logger:      logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/api/v1/recommendations", s.handleRecommendByItem)
	r.Post("/api/v1/recommendations/query", s.handleRecommendByText)
	r.Get("/api/v1/tracks", s.handleListTracks)
	r.Post("/api/v1/tracks", s.handleIngestTrack)
	r.Post("/api/v1/tracks/batch", s.handleIngestBatch)
	r.Get("/api/v1/tracks/{id}", s.handleGetTrack)
	r.Delete("/api/v1/tracks/{id}", s.handleDeleteTrack)
	r.Get("/api/v1/search", s.handleSearch)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
