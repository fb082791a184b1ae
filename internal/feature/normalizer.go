package feature

import (
	"fmt"

	"github.com/hyperjump/susume/internal/models"
)

// Normalizer scales raw attribute maps into fixed-order vectors in [0,1].
type Normalizer struct {
	schema *Schema
}

// NewNormalizer creates a normalizer for the given schema. A nil schema uses
// the default.
func NewNormalizer(schema *Schema) *Normalizer {
	if schema == nil {
		schema = DefaultSchema()
	}
	return &Normalizer{schema: schema}
}

// Schema returns the active attribute schema.
func (n *Normalizer) Schema() *Schema {
	return n.schema
}

// Dimension returns the length of produced vectors.
func (n *Normalizer) Dimension() int {
	return n.schema.Dimension()
}

// Normalize converts raw attributes into a fixed-order vector. Each value is
// min-max scaled to [0,1] and clamped at the bounds. Missing optional
// attributes are filled with the schema median; a missing required attribute
// returns models.ErrSchemaMismatch.
func (n *Normalizer) Normalize(attrs map[string]float64) ([]float32, error) {
	vec := make([]float32, len(n.schema.Attributes))
	for i, attr := range n.schema.Attributes {
		v, ok := attrs[attr.Name]
		if !ok {
			if attr.Required {
				return nil, fmt.Errorf("%w: schema %s requires attribute %q",
					models.ErrSchemaMismatch, n.schema.Version, attr.Name)
			}
			v = attr.Median
		}
		vec[i] = scale(v, attr.Min, attr.Max)
	}
	return vec, nil
}

// scale maps v from [min,max] to [0,1], clamping out-of-range values.
func scale(v, min, max float64) float32 {
	if max <= min {
		return 0
	}
	s := (v - min) / (max - min)
	if s < 0 {
		s = 0
	} else if s > 1 {
		s = 1
	}
	return float32(s)
}
