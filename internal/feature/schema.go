// Package feature converts raw numeric track attributes into fixed-order,
// bounded numeric vectors under a versioned attribute schema.
package feature

// Attribute describes one numeric attribute in the schema: its position is
// fixed by the schema's order so vectors stay comparable across time.
type Attribute struct {
	Name     string  `yaml:"name"`
	Min      float64 `yaml:"min"`
	Max      float64 `yaml:"max"`
	Median   float64 `yaml:"median"`
	Required bool    `yaml:"required"`
}

// Schema is a fixed, versioned, ordered set of numeric attributes.
type Schema struct {
	Version    string      `yaml:"version"`
	Attributes []Attribute `yaml:"attributes"`
}

// Dimension returns the length of vectors produced under this schema.
func (s *Schema) Dimension() int {
	return len(s.Attributes)
}

// DefaultSchema returns the v1 track attribute schema. Bounds come from the
// upstream cleaning contract (popularity 0-100, flags 0/1, playcounts and
// durations capped at the cleaning stage). Medians are the fill value for
// missing optional attributes.
func DefaultSchema() *Schema {
	return &Schema{
		Version: "v1",
		Attributes: []Attribute{
			{Name: "popularity", Min: 0, Max: 100, Median: 45, Required: true},
			{Name: "duration_ms", Min: 0, Max: 600000, Median: 210000, Required: true},
			{Name: "explicit", Min: 0, Max: 1, Median: 0},
			{Name: "lastfm_playcount", Min: 0, Max: 10000000, Median: 120000},
			{Name: "popularity_normalized", Min: 0, Max: 1, Median: 0.45},
			{Name: "is_popular", Min: 0, Max: 1, Median: 0},
			{Name: "duration_seconds", Min: 0, Max: 600, Median: 210},
			{Name: "is_short_track", Min: 0, Max: 1, Median: 0},
			{Name: "is_long_track", Min: 0, Max: 1, Median: 0},
			{Name: "release_year", Min: 1900, Max: 2030, Median: 2012},
			{Name: "track_age_years", Min: 0, Max: 130, Median: 13},
			{Name: "is_recent_release", Min: 0, Max: 1, Median: 0},
			{Name: "lastfm_num_tags", Min: 0, Max: 100, Median: 20},
			{Name: "lastfm_num_similar", Min: 0, Max: 250, Median: 50},
		},
	}
}
