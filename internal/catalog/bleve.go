package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/susume/internal/models"
)

// nameBoost makes matches on the track name rank above artist/album matches.
const nameBoost = 2.0

// catalogDoc is the indexed shape of a track.
type catalogDoc struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
}

// BleveCatalog implements Searcher using Bleve.
type BleveCatalog struct {
	index bleve.Index
}

// NewBleveCatalog creates or opens a Bleve index at path. An existing index
// is reused; remove the directory to force a rebuild after a mapping change.
func NewBleveCatalog(path string) (*BleveCatalog, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase + tokenize, no stemming. Track and artist
	// names are proper nouns; stemming hurts more than it helps.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	docMapping.AddFieldMappingsAt("artist", textFieldMapping)
	docMapping.AddFieldMappingsAt("album", textFieldMapping)
	im.AddDocumentMapping("track", docMapping)
	im.DefaultType = "track"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open catalog index: %w", openErr)
		}
		return &BleveCatalog{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog index: %w", err)
	}
	return &BleveCatalog{index: index}, nil
}

// Index indexes a track's searchable fields under its id.
func (b *BleveCatalog) Index(ctx context.Context, track *models.Track) error {
	return b.index.Index(track.ID, catalogDoc{
		Name:   track.Name,
		Artist: track.Artist,
		Album:  track.Album,
	})
}

// Search runs a name-boosted match query over name, artist, and album.
func (b *BleveCatalog) Search(ctx context.Context, query string, limit int) ([]*Hit, error) {
	nameQuery := bleve.NewMatchQuery(query)
	nameQuery.SetField("name")
	nameQuery.SetBoost(nameBoost)
	artistQuery := bleve.NewMatchQuery(query)
	artistQuery.SetField("artist")
	albumQuery := bleve.NewMatchQuery(query)
	albumQuery.SetField("album")

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(nameQuery, artistQuery, albumQuery))
	req.Size = limit
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}
	out := make([]*Hit, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &Hit{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Resolve finds the best track id for a name and optional artist. An exact
// match query runs first; when it finds nothing, a fuzzy pass (edit distance
// 2) catches typos.
func (b *BleveCatalog) Resolve(ctx context.Context, name, artist string) (string, error) {
	id, err := b.resolveWith(name, artist, false)
	if err == nil {
		return id, nil
	}
	if artist == "" && name == "" {
		return "", fmt.Errorf("%w: empty name", models.ErrTrackNotFound)
	}
	return b.resolveWith(name, artist, true)
}

func (b *BleveCatalog) resolveWith(name, artist string, fuzzy bool) (string, error) {
	queries := make([]blevequery.Query, 0, 2)
	queries = append(queries, b.fieldQuery("name", name, fuzzy))
	if artist != "" {
		queries = append(queries, b.fieldQuery("artist", artist, fuzzy))
	}

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(queries...))
	req.Size = 1
	results, err := b.index.Search(req)
	if err != nil {
		return "", fmt.Errorf("catalog resolve failed: %w", err)
	}
	if len(results.Hits) == 0 {
		return "", fmt.Errorf("%w: %q by %q", models.ErrTrackNotFound, name, artist)
	}
	return results.Hits[0].ID, nil
}

func (b *BleveCatalog) fieldQuery(field, text string, fuzzy bool) blevequery.Query {
	if fuzzy {
		// Fuzzy queries are not analyzed, and match single terms only.
		// Lowercase to line up with indexed terms and accept any word of a
		// multi-word input.
		words := strings.Fields(strings.ToLower(text))
		terms := make([]blevequery.Query, 0, len(words))
		for _, w := range words {
			fq := bleve.NewFuzzyQuery(w)
			fq.SetFuzziness(2)
			fq.SetField(field)
			terms = append(terms, fq)
		}
		if len(terms) == 1 {
			return terms[0]
		}
		return bleve.NewDisjunctionQuery(terms...)
	}
	mq := bleve.NewMatchQuery(text)
	mq.SetField(field)
	return mq
}

// Delete removes a track from the index.
func (b *BleveCatalog) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the number of indexed tracks.
func (b *BleveCatalog) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveCatalog) Close() error {
	return b.index.Close()
}
