// Package models defines core data structures for tracks, embeddings, and recommendations.
package models

import "time"

// Track represents a catalog track with its raw features and display metadata.
// Owned by the upstream feature pipeline; the core only reads it.
type Track struct {
	ID         string                 `json:"track_id" db:"id"`
	Name       string                 `json:"track_name" db:"name"`
	Artist     string                 `json:"artist_name" db:"artist"`
	Album      string                 `json:"album_name,omitempty" db:"album"`
	Attributes map[string]float64     `json:"numeric_attributes,omitempty" db:"attributes"`
	TextBlob   string                 `json:"text_blob,omitempty" db:"text_blob"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" db:"updated_at"`
}

// FeatureRecord is the input contract from the upstream feature pipeline:
// one track's identity, numeric attributes, and free-form text under a fixed
// schema version.
type FeatureRecord struct {
	ID         string                 `json:"track_id"`
	Name       string                 `json:"track_name"`
	Artist     string                 `json:"artist_name"`
	Album      string                 `json:"album_name,omitempty"`
	Attributes map[string]float64     `json:"numeric_attributes"`
	TextBlob   string                 `json:"text_blob,omitempty"`
	Tags       []string               `json:"tags,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Embedding holds the vectors built for one track under one weight profile.
// Embeddings are recomputed, never mutated in place: a feature or profile
// change produces a new row superseding the old one.
type Embedding struct {
	TrackID        string    `json:"track_id"`
	TextVector     []float32 `json:"-"`
	NumericVector  []float32 `json:"-"`
	CombinedVector []float32 `json:"-"`
	Dimension      int       `json:"dimension"`
	ProfileVersion string    `json:"profile_version"`
	CreatedAt      time.Time `json:"created_at"`
}

// Recommendation is a single ranked hit.
type Recommendation struct {
	TrackID string  `json:"track_id"`
	Name    string  `json:"track_name,omitempty"`
	Artist  string  `json:"artist_name,omitempty"`
	Album   string  `json:"album_name,omitempty"`
	Score   float64 `json:"similarity_score"`
	Rank    int     `json:"rank"`
}

// QueryMode selects how a recommendation query resolves its query vector.
type QueryMode string

const (
	// ByItem resolves the query vector from a known track's current embedding.
	ByItem QueryMode = "by_item"
	// ByText resolves the query vector from free text via the embedder and
	// the combiner's query mode.
	ByText QueryMode = "by_text"
)

// RecommendRequest is the by-text recommendation request body.
type RecommendRequest struct {
	Query         string  `json:"query"`
	K             int     `json:"k,omitempty"`
	MinSimilarity float64 `json:"min_similarity,omitempty"`
}

// RecommendResponse is the response for both query modes. Results may be
// empty; that is a normal outcome, not an error.
type RecommendResponse struct {
	Query          string            `json:"query,omitempty"`
	TrackID        string            `json:"track_id,omitempty"`
	Mode           QueryMode         `json:"mode"`
	Results        []*Recommendation `json:"results"`
	Total          int               `json:"total"`
	ProfileVersion string            `json:"profile_version"`
	QueryTime      int64             `json:"query_time_ms"`
}
