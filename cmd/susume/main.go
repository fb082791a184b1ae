// Package main is the Susume CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/susume/internal/catalog"
	"github.com/hyperjump/susume/internal/combiner"
	"github.com/hyperjump/susume/internal/config"
	"github.com/hyperjump/susume/internal/embedding"
	"github.com/hyperjump/susume/internal/feature"
	"github.com/hyperjump/susume/internal/ingest"
	"github.com/hyperjump/susume/internal/models"
	"github.com/hyperjump/susume/internal/recommender"
	"github.com/hyperjump/susume/internal/server"
	"github.com/hyperjump/susume/internal/storage"
	"github.com/hyperjump/susume/internal/vector"
	"github.com/hyperjump/susume/internal/watcher"
	"github.com/hyperjump/susume/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/susume/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "recommend":
		runRecommend()
	case "query":
		runQuery()
	case "search":
		runSearch()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("susume version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	n, err := components.Pipeline.Rebuild(context.Background())
	if err != nil {
		logger.Fatal("Failed to rebuild index from storage", zap.Error(err))
	}
	logger.Info("index ready", zap.Int("tracks", n))

	var drop *watcher.DropWatcher
	if cfg.Ingest.DropDirectory != "" {
		pipeline := components.Pipeline
		drop = watcher.New(cfg.Ingest.DropDirectory, func(path string) {
			report, ingestErr := pipeline.IngestFile(context.Background(), path)
			if ingestErr != nil {
				logger.Warn("drop ingest failed", zap.String("path", path), zap.Error(ingestErr))
				return
			}
			logger.Info("drop file ingested",
				zap.String("path", path),
				zap.Int("indexed", report.Indexed),
				zap.Int("failed", report.Failed))
		}, logger, watcher.WithDebounce(time.Duration(cfg.Ingest.DebounceMillis)*time.Millisecond))
		if err := drop.Start(); err != nil {
			logger.Fatal("Failed to start drop watcher", zap.Error(err))
		}
		if cfg.Ingest.SyncExistingFiles {
			if err := drop.SyncExisting(); err != nil {
				logger.Warn("drop sync failed", zap.Error(err))
			}
		}
		defer drop.Stop()
	}

	srv := server.NewServer(
		components.Recommender,
		components.Pipeline,
		components.Storage,
		components.Catalog,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runRecommend() {
	fs := flag.NewFlagSet("recommend", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	trackID := fs.String("track-id", "", "seed track id")
	artist := fs.String("artist", "", "seed artist name (with positional track name)")
	k := fs.Int("k", 10, "number of results")
	minSim := fs.Float64("min-similarity", 0, "minimum similarity score (0 = no floor)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	params := url.Values{}
	if *trackID != "" {
		params.Set("track_id", *trackID)
	} else if fs.NArg() > 0 {
		params.Set("name", strings.TrimSpace(strings.Join(fs.Args(), " ")))
		if *artist != "" {
			params.Set("artist", *artist)
		}
	} else {
		fmt.Println("Usage: susume recommend [flags] <track name>   (or --track-id <id>)")
		os.Exit(1)
	}
	params.Set("k", fmt.Sprintf("%d", *k))
	if *minSim > 0 {
		params.Set("min_similarity", fmt.Sprintf("%g", *minSim))
	}

	resp, err := http.Get(*serverURL + "/api/v1/recommendations?" + params.Encode())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Recommend failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	writeRecommendResponse(resp.Body, *outputFormat)
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	k := fs.Int("k", 10, "number of results")
	minSim := fs.Float64("min-similarity", 0, "minimum similarity score (0 = no floor)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: susume query [flags] <free text>")
		os.Exit(1)
	}
	queryStr := strings.TrimSpace(strings.Join(fs.Args(), " "))

	body, _ := json.Marshal(models.RecommendRequest{
		Query:         queryStr,
		K:             *k,
		MinSimilarity: *minSim,
	})
	resp, err := http.Post(*serverURL+"/api/v1/recommendations/query", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Query failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	writeRecommendResponse(resp.Body, *outputFormat)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	limit := fs.Int("limit", 10, "number of results")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: susume search [flags] <track or artist name>")
		os.Exit(1)
	}
	params := url.Values{}
	params.Set("q", strings.TrimSpace(strings.Join(fs.Args(), " ")))
	params.Set("limit", fmt.Sprintf("%d", *limit))

	resp, err := http.Get(*serverURL + "/api/v1/search?" + params.Encode())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Search failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}

	var response struct {
		Query   string `json:"query"`
		Results []struct {
			TrackID    string  `json:"track_id"`
			Score      float64 `json:"score"`
			TrackName  string  `json:"track_name"`
			ArtistName string  `json:"artist_name"`
		} `json:"results"`
		Total int `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(response)
	case "text":
		if response.Total == 0 {
			fmt.Println("No matches.")
			return
		}
		for i, hit := range response.Results {
			line := fmt.Sprintf("%2d. %-40s", i+1, hit.TrackName)
			if hit.ArtistName != "" {
				line += " by " + hit.ArtistName
			}
			fmt.Printf("%s  [%s]\n", line, hit.TrackID)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func writeRecommendResponse(r io.Reader, format string) {
	var response models.RecommendResponse
	if err := json.NewDecoder(r).Decode(&response); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(response)
	case "text":
		if response.Total == 0 {
			fmt.Println("No recommendations.")
			return
		}
		for _, rec := range response.Results {
			line := fmt.Sprintf("%2d. %-40s", rec.Rank, rec.Name)
			if rec.Artist != "" {
				line += " by " + rec.Artist
			}
			fmt.Printf("%s  (%.4f)\n", line, rec.Score)
		}
		fmt.Printf("\n%d result(s), profile %s, %dms\n",
			response.Total, response.ProfileVersion, response.QueryTime)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", format)
		os.Exit(1)
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: susume ingest [flags] <records.json>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	report, err := components.Pipeline.IngestFile(context.Background(), path)
	if err != nil {
		fmt.Printf("Ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %d track(s), %d failed (job %s)\n", report.Indexed, report.Failed, report.JobID)
	for _, e := range report.Errors {
		fmt.Printf("  %s\n", e)
	}
	if report.Failed > 0 {
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: susume delete [flags] <track-id>")
		os.Exit(1)
	}
	trackID := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if err := components.Pipeline.RemoveTrack(context.Background(), trackID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Track deleted: %s\n", trackID)
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Tracks         int64                  `json:"tracks"`
	Embeddings     int64                  `json:"embeddings"`
	IndexSize      int                    `json:"index_size"`
	ProfileVersion string                 `json:"profile_version"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(status)
	case "text":
		fmt.Printf("tracks:           %d\n", status.Tracks)
		fmt.Printf("embeddings:       %d\n", status.Embeddings)
		fmt.Printf("index_size:       %d\n", status.IndexSize)
		fmt.Printf("profile_version:  %s\n", status.ProfileVersion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage     storage.Store
	Embedder    embedding.Embedder
	Index       *vector.Index
	Catalog     catalog.Searcher
	Pipeline    *ingest.Pipeline
	Recommender *recommender.Recommender
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
}

// newEmbedder builds the configured embedder. The ONNX provider falls back
// to the mock embedder when the runtime or model is unavailable, so the
// service stays usable offline.
func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return embedding.NewRemoteEmbedder(embedding.RemoteConfig{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    time.Duration(cfg.Embedding.RequestTimeout) * time.Second,
			MaxRetries: cfg.Embedding.MaxRetries,
			CacheSize:  cfg.Embedding.CacheSize,
		}, logger)
	case "onnx":
		onnxEmbedder, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
			cfg.Embedding.CacheSize,
		)
		if err != nil {
			logger.Warn("ONNX embedder unavailable, using mock", zap.Error(err))
			return embedding.NewMockEmbedder(cfg.Embedding.Dimensions), nil
		}
		return onnxEmbedder, nil
	case "mock":
		return embedding.NewMockEmbedder(cfg.Embedding.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	sqliteStore, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	store := storage.NewCachedStore(sqliteStore, cfg.Storage.TrackCacheSize)

	embedder, err := newEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}

	normalizer := feature.NewNormalizer(nil)
	profile := combiner.WeightProfile{
		Version:       cfg.Profile.Version,
		TextWeight:    cfg.Profile.TextWeight,
		NumericWeight: cfg.Profile.NumericWeight,
		TextDim:       embedder.Dimensions(),
		NumericDim:    normalizer.Dimension(),
		Placeholder:   combiner.QueryPlaceholder(cfg.Profile.QueryPlaceholder),
	}
	comb := combiner.New(profile)

	index, err := vector.NewIndex(profile.CombinedDim(), profile.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	cat, err := catalog.NewBleveCatalog(cfg.Storage.CatalogIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog index: %w", err)
	}

	pipeline := ingest.NewPipeline(store, cat, embedder, normalizer, comb, index, logger,
		ingest.WithBatchSize(cfg.Ingest.BatchSize))
	rec := recommender.New(index, store, embedder, comb, logger)

	logger.Info("components initialized",
		zap.String("provider", cfg.Embedding.Provider),
		zap.Int("text_dim", profile.TextDim),
		zap.Int("numeric_dim", profile.NumericDim),
		zap.String("profile_version", profile.Version))

	return &Components{
		Storage:     store,
		Embedder:    embedder,
		Index:       index,
		Catalog:     cat,
		Pipeline:    pipeline,
		Recommender: rec,
	}, nil
}

func printUsage() {
	fmt.Println(`susume - Hybrid music recommendation engine

Usage:
  susume server [flags]              Start the HTTP server
  susume recommend [flags] <name>    Recommend tracks similar to a known track
  susume query [flags] <text>        Recommend tracks for free-form text
  susume search [flags] <name>       Keyword search over the track catalog
  susume ingest [flags] <file>       Ingest a JSON file of feature records
  susume delete [flags] <track-id>   Delete a track
  susume status [flags]              Show catalog/index status
  susume version                     Show version
  susume help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/susume/config.yaml)
  --debug            Enable debug logging

Recommend Flags:
  --server string           Server URL (default: http://localhost:8080)
  --track-id string         Seed by track id instead of name
  --artist string           Artist name to disambiguate the track name
  --k int                   Number of results (default: 10)
  --min-similarity float    Minimum similarity score (default: no floor)
  --output string           Output format: text or json (default: text)

Query Flags:
  --server string           Server URL (default: http://localhost:8080)
  --k int                   Number of results (default: 10)
  --min-similarity float    Minimum similarity score (default: no floor)
  --output string           Output format: text or json (default: text)

Examples:
  susume server
  susume recommend "Bohemian Rhapsody" --artist Queen
  susume recommend --track-id 4a2b... --k 5
  susume query "mellow jazz for a rainy evening"
  susume search "queen"
  susume ingest tracks.json
  susume delete 4a2b...
  susume status`)
}
