package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/susume/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	// _foreign_keys in the DSN applies to every pooled connection; a plain
	// PRAGMA would only cover the connection that ran it.
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		artist TEXT NOT NULL,
		album TEXT,
		attributes TEXT,
		text_blob TEXT,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist);

	CREATE TABLE IF NOT EXISTS embeddings (
		track_id TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		dimension INTEGER NOT NULL,
		profile_version TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_profile ON embeddings(profile_version);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertTrack inserts or replaces a track.
func (s *SQLiteStore) UpsertTrack(ctx context.Context, track *models.Track) error {
	attrsJSON, err := json.Marshal(track.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}
	metadataJSON, err := json.Marshal(track.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now()
	if track.CreatedAt.IsZero() {
		track.CreatedAt = now
	}
	track.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tracks (id, name, artist, album, attributes, text_blob, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			artist = excluded.artist,
			album = excluded.album,
			attributes = excluded.attributes,
			text_blob = excluded.text_blob,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		track.ID, track.Name, track.Artist, track.Album,
		string(attrsJSON), track.TextBlob, string(metadataJSON),
		track.CreatedAt, track.UpdatedAt,
	)
	return err
}

// GetTrack returns a track by id, or models.ErrTrackNotFound.
func (s *SQLiteStore) GetTrack(ctx context.Context, id string) (*models.Track, error) {
	var track models.Track
	var attrsJSON, metadataJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, artist, album, attributes, text_blob, metadata, created_at, updated_at
		 FROM tracks WHERE id = ?`, id,
	).Scan(&track.ID, &track.Name, &track.Artist, &track.Album,
		&attrsJSON, &track.TextBlob, &metadataJSON, &track.CreatedAt, &track.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrTrackNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if attrsJSON.Valid && attrsJSON.String != "" {
		if err := json.Unmarshal([]byte(attrsJSON.String), &track.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &track.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &track, nil
}

// DeleteTrack removes a track and (via cascade) its embedding row.
func (s *SQLiteStore) DeleteTrack(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id)
	return err
}

// ListTracks returns tracks ordered by id with offset/limit paging.
func (s *SQLiteStore) ListTracks(ctx context.Context, offset, limit int) ([]*models.Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, artist, album, created_at, updated_at
		 FROM tracks ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tracks := make([]*models.Track, 0, limit)
	for rows.Next() {
		var track models.Track
		if err := rows.Scan(&track.ID, &track.Name, &track.Artist, &track.Album,
			&track.CreatedAt, &track.UpdatedAt); err != nil {
			return nil, err
		}
		tracks = append(tracks, &track)
	}
	return tracks, rows.Err()
}

// CountTracks returns the number of tracks in the catalog.
func (s *SQLiteStore) CountTracks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&n)
	return n, err
}

// SaveEmbedding inserts or replaces the embedding row for a track. The new
// row supersedes any previous one: one current embedding per track.
func (s *SQLiteStore) SaveEmbedding(ctx context.Context, emb *models.Embedding) error {
	if len(emb.CombinedVector) != emb.Dimension {
		return fmt.Errorf("%w: vector has %d dims, embedding declares %d",
			models.ErrDimensionMismatch, len(emb.CombinedVector), emb.Dimension)
	}
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (track_id, vector, dimension, profile_version, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(track_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			profile_version = excluded.profile_version,
			created_at = excluded.created_at`,
		emb.TrackID, vectorToBytes(emb.CombinedVector), emb.Dimension,
		emb.ProfileVersion, emb.CreatedAt,
	)
	return err
}

// DeleteEmbedding removes a track's embedding row.
func (s *SQLiteStore) DeleteEmbedding(ctx context.Context, trackID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE track_id = ?`, trackID)
	return err
}

// LoadSnapshot reads every embedding row. All rows must agree on dimension
// and profile version; disagreement or an undecodable vector means the
// snapshot failed its integrity check and the load returns
// models.ErrIndexCorrupt.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) ([]*models.Embedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT track_id, vector, dimension, profile_version, created_at
		 FROM embeddings ORDER BY track_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Embedding
	var dimension int
	var profileVersion string
	for rows.Next() {
		var emb models.Embedding
		var blob []byte
		if err := rows.Scan(&emb.TrackID, &blob, &emb.Dimension,
			&emb.ProfileVersion, &emb.CreatedAt); err != nil {
			return nil, err
		}
		if out == nil {
			dimension = emb.Dimension
			profileVersion = emb.ProfileVersion
		} else if emb.Dimension != dimension {
			return nil, fmt.Errorf("%w: track %s has dimension %d, snapshot has %d",
				models.ErrIndexCorrupt, emb.TrackID, emb.Dimension, dimension)
		} else if emb.ProfileVersion != profileVersion {
			return nil, fmt.Errorf("%w: track %s built under profile %s, snapshot under %s",
				models.ErrIndexCorrupt, emb.TrackID, emb.ProfileVersion, profileVersion)
		}
		vec, err := bytesToVector(blob, emb.Dimension)
		if err != nil {
			return nil, fmt.Errorf("%w: track %s: %v", models.ErrIndexCorrupt, emb.TrackID, err)
		}
		emb.CombinedVector = vec
		out = append(out, &emb)
	}
	return out, rows.Err()
}

// CountEmbeddings returns the number of embedding rows.
func (s *SQLiteStore) CountEmbeddings(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
