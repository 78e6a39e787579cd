package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and the development
// preset. Merge semantics match the jsonb || behavior of PostgresStore.
type MemoryStore struct {
	mu     sync.Mutex
	videos map[string]*Video
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{videos: make(map[string]*Video)}
}

// Create inserts a new record in state queued.
func (m *MemoryStore) Create(ctx context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.videos[id] = &Video{
		ID:              id,
		CreatedAt:       now,
		UpdatedAt:       now,
		ProcessingState: StateQueued,
		URL:             url,
	}
	return nil
}

// Get reads one record by id. The returned copy is safe to inspect while
// stages keep mutating the store.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *v
	if v.Images != nil {
		images := *v.Images
		out.Images = &images
	}
	return &out, nil
}

// SetState updates only the processing state.
func (m *MemoryStore) SetState(ctx context.Context, id string, state ProcessingState) error {
	return m.update(id, func(v *Video) {
		v.ProcessingState = state
	})
}

// RecordDownload commits the download stage.
func (m *MemoryStore) RecordDownload(ctx context.Context, id string, upd DownloadUpdate) error {
	return m.update(id, func(v *Video) {
		v.ProcessingState = StateDownloaded
		v.Title = &upd.Title
		v.Duration = &upd.Duration
		v.Author = &upd.Author
		v.Date = upd.Date
		v.ProcessedPath = &upd.ProcessedPath
		stats := upd.Stats
		v.Metadata.Download = &stats
	})
}

// RecordExtraction commits the extract stage.
func (m *MemoryStore) RecordExtraction(ctx context.Context, id string, images VideoImages, audio, frames StageStats) error {
	return m.update(id, func(v *Video) {
		if v.Images == nil {
			v.Images = &VideoImages{}
		}
		v.Images.MaxIndex = images.MaxIndex
		v.Images.Interval = images.Interval
		v.Images.Removed = []int{}
		a, f := audio, frames
		v.Metadata.AudioExtraction = &a
		v.Metadata.ImageExtraction = &f
	})
}

// RecordAnalysis merges the analyze stage's output into the images blob.
func (m *MemoryStore) RecordAnalysis(ctx context.Context, id string, thumbnailWidths, removed []int) error {
	if removed == nil {
		removed = []int{}
	}
	return m.update(id, func(v *Video) {
		if v.Images == nil {
			v.Images = &VideoImages{}
		}
		v.Images.ThumbnailWidths = thumbnailWidths
		v.Images.Removed = removed
	})
}

// RecordTranscript commits the transcribe stage.
func (m *MemoryStore) RecordTranscript(ctx context.Context, id string, transcript json.RawMessage, stats StageStats) error {
	return m.update(id, func(v *Video) {
		v.Transcript = append(json.RawMessage(nil), transcript...)
		s := stats
		v.Metadata.Transcription = &s
	})
}

// RecordSummary commits the summarize stage and marks the video ready.
func (m *MemoryStore) RecordSummary(ctx context.Context, id, summary string) error {
	return m.update(id, func(v *Video) {
		v.Summary = &summary
		v.ProcessingState = StateReady
	})
}

func (m *MemoryStore) update(id string, fn func(*Video)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return ErrNotFound
	}
	fn(v)
	v.UpdatedAt = time.Now()
	return nil
}

var _ Store = (*MemoryStore)(nil)
