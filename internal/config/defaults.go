package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/susume/data/db/tracks.db"
	}
	if cfg.Storage.CatalogIndexPath == "" {
		cfg.Storage.CatalogIndexPath = "/usr/local/var/susume/data/indices/catalog"
	}
	if cfg.Storage.TrackCacheSize == 0 {
		cfg.Storage.TrackCacheSize = 1000
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Embedding.RequestTimeout == 0 {
		cfg.Embedding.RequestTimeout = 30
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 128
	}
	if cfg.Profile.Version == "" {
		cfg.Profile.Version = "v1"
	}
	if cfg.Profile.TextWeight == 0 && cfg.Profile.NumericWeight == 0 {
		cfg.Profile.TextWeight = 0.7
		cfg.Profile.NumericWeight = 0.3
	}
	if cfg.Profile.QueryPlaceholder == "" {
		cfg.Profile.QueryPlaceholder = "zero"
	}
	if cfg.Recommend.DefaultLimit == 0 {
		cfg.Recommend.DefaultLimit = 10
	}
	if cfg.Recommend.MaxLimit == 0 {
		cfg.Recommend.MaxLimit = 100
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 25
	}
	if cfg.Ingest.DebounceMillis == 0 {
		cfg.Ingest.DebounceMillis = 500
	}
}
