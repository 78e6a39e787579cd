package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store on a videos table. Stage commits that
// touch the metadata and images blobs use jsonb || merges so concurrent
// analyze/transcribe writes accumulate.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database and ensures the videos table exists.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure videos table: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ensureTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS videos (
			id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processing_state TEXT NOT NULL DEFAULT 'queued',
			url TEXT NOT NULL,
			title TEXT,
			duration INTEGER,
			author TEXT,
			date DATE,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			images JSONB NOT NULL DEFAULT '{}'::jsonb,
			transcript JSONB,
			summary TEXT,
			processed_path TEXT
		)
	`

	if _, err := s.db.Exec(query); err != nil {
		return err
	}

	log.Printf("✓ videos table ready")
	return nil
}

// Create inserts a new record in state queued.
func (s *PostgresStore) Create(ctx context.Context, id, url string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO videos (id, processing_state, url) VALUES ($1, $2, $3)`,
		id, StateQueued, url)
	if err != nil {
		return fmt.Errorf("failed to insert video %s: %w", id, err)
	}
	return nil
}

// Get reads one record by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Video, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, updated_at, processing_state, url,
		       title, duration, author, date,
		       metadata, images, transcript, summary, processed_path
		FROM videos WHERE id = $1`, id)

	var (
		v          Video
		metadata   []byte
		images     []byte
		transcript []byte
		date       sql.NullTime
	)
	err := row.Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt, &v.ProcessingState, &v.URL,
		&v.Title, &v.Duration, &v.Author, &date,
		&metadata, &images, &transcript, &v.Summary, &v.ProcessedPath)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query video %s: %w", id, err)
	}

	if date.Valid {
		d := date.Time
		v.Date = &d
	}
	if err := json.Unmarshal(metadata, &v.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", id, err)
	}
	if string(images) != "{}" {
		v.Images = &VideoImages{}
		if err := json.Unmarshal(images, v.Images); err != nil {
			return nil, fmt.Errorf("failed to decode images for %s: %w", id, err)
		}
	}
	v.Transcript = transcript
	return &v, nil
}

// SetState updates only the processing state.
func (s *PostgresStore) SetState(ctx context.Context, id string, state ProcessingState) error {
	return s.exec(ctx, id,
		`UPDATE videos SET processing_state = $2, updated_at = NOW() WHERE id = $1`,
		id, state)
}

// RecordDownload commits the download stage.
func (s *PostgresStore) RecordDownload(ctx context.Context, id string, upd DownloadUpdate) error {
	patch, err := json.Marshal(map[string]StageStats{"download": upd.Stats})
	if err != nil {
		return fmt.Errorf("failed to encode download stats: %w", err)
	}
	var date any
	if upd.Date != nil {
		date = upd.Date.Format(time.DateOnly)
	}
	return s.exec(ctx, id, `
		UPDATE videos SET
			processing_state = 'downloaded',
			title = $2,
			duration = $3,
			author = $4,
			date = $5,
			processed_path = $6,
			metadata = metadata || $7,
			updated_at = NOW()
		WHERE id = $1`,
		id, upd.Title, upd.Duration, upd.Author, date, upd.ProcessedPath, patch)
}

// RecordExtraction commits the extract stage.
func (s *PostgresStore) RecordExtraction(ctx context.Context, id string, images VideoImages, audio, frames StageStats) error {
	metaPatch, err := json.Marshal(map[string]StageStats{
		"audio_extraction": audio,
		"image_extraction": frames,
	})
	if err != nil {
		return fmt.Errorf("failed to encode extraction stats: %w", err)
	}
	imagesPatch, err := json.Marshal(map[string]any{
		"max_index": images.MaxIndex,
		"interval":  images.Interval,
		"removed":   []int{},
	})
	if err != nil {
		return fmt.Errorf("failed to encode images: %w", err)
	}
	return s.exec(ctx, id, `
		UPDATE videos SET
			metadata = metadata || $2,
			images = images || $3,
			updated_at = NOW()
		WHERE id = $1`,
		id, metaPatch, imagesPatch)
}

// RecordAnalysis merges the analyze stage's output into the images blob.
func (s *PostgresStore) RecordAnalysis(ctx context.Context, id string, thumbnailWidths, removed []int) error {
	if removed == nil {
		removed = []int{}
	}
	patch, err := json.Marshal(map[string]any{
		"thumbnail_widths": thumbnailWidths,
		"removed":          removed,
	})
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}
	return s.exec(ctx, id, `
		UPDATE videos SET
			images = images || $2,
			updated_at = NOW()
		WHERE id = $1`,
		id, patch)
}

// RecordTranscript commits the transcribe stage.
func (s *PostgresStore) RecordTranscript(ctx context.Context, id string, transcript json.RawMessage, stats StageStats) error {
	patch, err := json.Marshal(map[string]StageStats{"transcription": stats})
	if err != nil {
		return fmt.Errorf("failed to encode transcription stats: %w", err)
	}
	return s.exec(ctx, id, `
		UPDATE videos SET
			transcript = $2,
			metadata = metadata || $3,
			updated_at = NOW()
		WHERE id = $1`,
		id, []byte(transcript), patch)
}

// RecordSummary commits the summarize stage and marks the video ready.
func (s *PostgresStore) RecordSummary(ctx context.Context, id, summary string) error {
	return s.exec(ctx, id, `
		UPDATE videos SET
			summary = $2,
			processing_state = 'ready',
			updated_at = NOW()
		WHERE id = $1`,
		id, summary)
}

func (s *PostgresStore) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update video %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
