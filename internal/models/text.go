package models

import "strings"

// EmbeddingText builds the text blob fed to the text embedder: track name,
// artist, and album joined with " | ", followed by a "Tags: ..." section when
// tags are present. Identical records always produce identical text, so the
// embedder's content-addressed cache stays effective.
func (r *FeatureRecord) EmbeddingText() string {
	if r.TextBlob != "" {
		return r.TextBlob
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{r.Name, r.Artist, r.Album} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(r.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(r.Tags, ", "))
	}
	return strings.Join(parts, " | ")
}
