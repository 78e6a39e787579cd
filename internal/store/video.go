// Package store persists the per-video record the pipeline stages mutate.
// Concurrent stages commit through additive merges so they never clobber
// each other's keys.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ProcessingState tracks a video through the pipeline. Monotonic forward
// under normal operation; a manual stage rerun may move it backward.
type ProcessingState string

const (
	StateQueued      ProcessingState = "queued"
	StateDownloading ProcessingState = "downloading"
	StateDownloaded  ProcessingState = "downloaded"
	StateProcessing  ProcessingState = "processing"
	StateReady       ProcessingState = "ready"
)

// StageStats records the wall-clock duration of one completed stage and
// the file it produced, if any.
type StageStats struct {
	Duration int    `json:"duration"`
	Filename string `json:"filename,omitempty"`
}

// VideoMetadata accumulates per-stage stats. Each stage writes only its
// own sub-object.
type VideoMetadata struct {
	Download        *StageStats `json:"download,omitempty"`
	AudioExtraction *StageStats `json:"audio_extraction,omitempty"`
	ImageExtraction *StageStats `json:"image_extraction,omitempty"`
	Transcription   *StageStats `json:"transcription,omitempty"`
}

// VideoImages describes the extracted frame set. MaxIndex and Interval are
// written by the extract stage; ThumbnailWidths and Removed are merged in
// later by the analyze stage.
type VideoImages struct {
	MaxIndex        int   `json:"max_index"`
	Interval        int   `json:"interval"`
	ThumbnailWidths []int `json:"thumbnail_widths,omitempty"`
	Removed         []int `json:"removed"`
}

// Video is the persisted record. Pointer fields are null until the stage
// that populates them completes.
type Video struct {
	ID              string          `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ProcessingState ProcessingState `json:"processing_state"`
	URL             string          `json:"url"`
	Title           *string         `json:"title"`
	Duration        *int            `json:"duration"`
	Author          *string         `json:"author"`
	Date            *time.Time      `json:"date"`
	Metadata        VideoMetadata   `json:"metadata"`
	Images          *VideoImages    `json:"images"`
	Transcript      json.RawMessage `json:"transcript,omitempty"`
	Summary         *string         `json:"summary"`
	ProcessedPath   *string         `json:"processed_path"`
}

// DownloadUpdate is the download stage's commit.
type DownloadUpdate struct {
	Title         string
	Duration      int
	Author        string
	Date          *time.Time
	ProcessedPath string
	Stats         StageStats
}

// ErrNotFound is returned when no video exists for the given id.
var ErrNotFound = errors.New("video not found")

// Store is the read/write contract the pipeline needs from the relational
// store. Every mutation is keyed by video id; the merge-style methods
// accumulate into the jsonb blobs instead of replacing them.
type Store interface {
	Create(ctx context.Context, id, url string) error
	Get(ctx context.Context, id string) (*Video, error)
	SetState(ctx context.Context, id string, state ProcessingState) error

	// RecordDownload commits the download stage: scalar fields from the
	// sidecar, state=downloaded, and a "download" metadata entry.
	RecordDownload(ctx context.Context, id string, upd DownloadUpdate) error

	// RecordExtraction commits the extract stage: the frame set and the
	// audio/image extraction metadata entries.
	RecordExtraction(ctx context.Context, id string, images VideoImages, audio, frames StageStats) error

	// RecordAnalysis merges thumbnail widths and removed indices into the
	// images blob without touching max_index or interval.
	RecordAnalysis(ctx context.Context, id string, thumbnailWidths, removed []int) error

	// RecordTranscript stores the provider-tagged transcript and a
	// "transcription" metadata entry.
	RecordTranscript(ctx context.Context, id string, transcript json.RawMessage, stats StageStats) error

	// RecordSummary stores the summary and marks the video ready. This is
	// the pipeline's terminal transition.
	RecordSummary(ctx context.Context, id, summary string) error
}
