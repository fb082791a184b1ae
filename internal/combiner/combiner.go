// Package combiner fuses text and numeric vectors into unit-norm combined
// vectors under a versioned weight profile.
package combiner

import (
	"fmt"

	"github.com/hyperjump/susume/internal/embedding"
	"github.com/hyperjump/susume/internal/models"
)

// QueryPlaceholder selects the neutral numeric component used in query mode,
// where a free-text query has no audio attributes.
type QueryPlaceholder string

const (
	// PlaceholderZero uses an all-zero numeric component: text similarity
	// alone drives the ranking.
	PlaceholderZero QueryPlaceholder = "zero"
	// PlaceholderCentroid uses a precomputed corpus centroid of normalized
	// numeric vectors, biasing text queries toward "typical" tracks.
	PlaceholderCentroid QueryPlaceholder = "centroid"
)

// WeightProfile is the named, versioned set of fusion weights and dimension
// declarations. The profile version is recorded with every embedding built
// under it; vectors from different versions never share an index.
type WeightProfile struct {
	Version       string           `yaml:"version"`
	TextWeight    float64          `yaml:"text_weight"`
	NumericWeight float64          `yaml:"numeric_weight"`
	TextDim       int              `yaml:"text_dim"`
	NumericDim    int              `yaml:"numeric_dim"`
	Placeholder   QueryPlaceholder `yaml:"query_placeholder"`
}

// DefaultProfile returns the v1 profile: 70% text, 30% numeric, matching the
// corpus tuning the system shipped with.
func DefaultProfile(textDim, numericDim int) WeightProfile {
	return WeightProfile{
		Version:       "v1",
		TextWeight:    0.7,
		NumericWeight: 0.3,
		TextDim:       textDim,
		NumericDim:    numericDim,
		Placeholder:   PlaceholderZero,
	}
}

// CombinedDim returns the dimension of combined vectors under this profile.
func (p WeightProfile) CombinedDim() int {
	return p.TextDim + p.NumericDim
}

// Combiner builds combined vectors under one weight profile.
type Combiner struct {
	profile  WeightProfile
	centroid []float32 // numeric placeholder for query mode; nil until set
}

// New creates a combiner for the given profile.
func New(profile WeightProfile) *Combiner {
	return &Combiner{profile: profile}
}

// Profile returns the active weight profile.
func (c *Combiner) Profile() WeightProfile {
	return c.profile
}

// SetCentroid installs the corpus centroid used by PlaceholderCentroid. The
// vector must have the profile's numeric dimension.
func (c *Combiner) SetCentroid(centroid []float32) error {
	if len(centroid) != c.profile.NumericDim {
		return fmt.Errorf("%w: centroid has %d dims, profile declares %d",
			models.ErrDimensionMismatch, len(centroid), c.profile.NumericDim)
	}
	c.centroid = centroid
	return nil
}

// Combine fuses a numeric vector and a text vector into one unit-norm
// combined vector: concat(textWeight*text, numericWeight*numeric), then L2
// normalize. Both inputs are normalized first so the weights express the
// intended contribution ratio regardless of input scale.
func (c *Combiner) Combine(numeric, text []float32) ([]float32, error) {
	if len(text) != c.profile.TextDim {
		return nil, fmt.Errorf("%w: text vector has %d dims, profile %s declares %d",
			models.ErrDimensionMismatch, len(text), c.profile.Version, c.profile.TextDim)
	}
	if len(numeric) != c.profile.NumericDim {
		return nil, fmt.Errorf("%w: numeric vector has %d dims, profile %s declares %d",
			models.ErrDimensionMismatch, len(numeric), c.profile.Version, c.profile.NumericDim)
	}

	combined := make([]float32, 0, c.profile.CombinedDim())
	combined = appendWeighted(combined, text, c.profile.TextWeight)
	combined = appendWeighted(combined, numeric, c.profile.NumericWeight)
	embedding.NormalizeL2(combined)
	return combined, nil
}

// CombineQuery builds a query-mode combined vector from a text vector alone.
// The numeric component is the profile's declared neutral placeholder; this
// is explicit query behavior, never inferred from a missing input.
func (c *Combiner) CombineQuery(text []float32) ([]float32, error) {
	placeholder := make([]float32, c.profile.NumericDim)
	if c.profile.Placeholder == PlaceholderCentroid && c.centroid != nil {
		copy(placeholder, c.centroid)
	}
	return c.Combine(placeholder, text)
}

// appendWeighted appends a normalized copy of vec scaled by weight.
func appendWeighted(dst, vec []float32, weight float64) []float32 {
	normed := make([]float32, len(vec))
	copy(normed, vec)
	embedding.NormalizeL2(normed)
	w := float32(weight)
	for _, v := range normed {
		dst = append(dst, v*w)
	}
	return dst
}
