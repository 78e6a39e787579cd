package pipeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stage name constants. These double as the scheduler routing keys.
const (
	StageDownload   = "download"
	StageExtract    = "extract"
	StageAnalyze    = "analyze"
	StageTranscribe = "transcribe"
	StageSummarize  = "summarize"
)

// DownloadPayload is the input to the download stage.
type DownloadPayload struct {
	ID            string `json:"id"`
	DownloadURL   string `json:"download_url"`
	StoragePrefix string `json:"storage_prefix"`
}

// ExtractPayload is the input to the extract stage.
type ExtractPayload struct {
	ID            string `json:"id"`
	StoragePrefix string `json:"storage_prefix"`
	VideoFilename string `json:"video_filename"`
}

// AnalyzePayload is the input to the analyze stage.
type AnalyzePayload struct {
	ID            string `json:"id"`
	StoragePrefix string `json:"storage_prefix"`
	MaxIndex      int    `json:"max_index"`
}

// TranscribePayload is the input to the transcribe stage.
type TranscribePayload struct {
	ID            string `json:"id"`
	StoragePrefix string `json:"storage_prefix"`
	AudioPath     string `json:"audio_path"`
}

// SummarizePayload is the input to the summarize stage.
type SummarizePayload struct {
	ID string `json:"id"`
}

// NextJob describes a follow-up stage submission. Stages return these
// instead of enqueueing directly so the pipeline topology stays testable
// without a live scheduler.
type NextJob struct {
	Stage   string
	VideoID string
	Payload any
	// RunAt delays execution until the given time when non-zero.
	RunAt time.Time
}

// JobEnvelope is the serialized form handed to the scheduler. The payload
// stays opaque to the queue; each stage decodes its own.
type JobEnvelope struct {
	Stage     string          `json:"stage"`
	VideoID   string          `json:"video_id"`
	Payload   json.RawMessage `json:"payload"`
	NotBefore time.Time       `json:"not_before,omitzero"`
}

// Envelope wraps a NextJob for submission.
func Envelope(job NextJob) (JobEnvelope, error) {
	raw, err := json.Marshal(job.Payload)
	if err != nil {
		return JobEnvelope{}, fmt.Errorf("marshal %s payload: %w", job.Stage, err)
	}
	return JobEnvelope{
		Stage:     job.Stage,
		VideoID:   job.VideoID,
		Payload:   raw,
		NotBefore: job.RunAt,
	}, nil
}

// StageOutcome is the serializable result of one stage dispatch.
type StageOutcome struct {
	Stage     string   `json:"stage"`
	VideoID   string   `json:"video_id"`
	Submitted []string `json:"submitted,omitempty"`
}

// StoragePrefix returns the storage key prefix for a video's artifacts.
// The prefix is the video id itself, so collaborators can derive asset
// paths from the id alone.
func StoragePrefix(videoID string) string {
	return videoID
}

// ImageFilename returns the storage filename for extracted frame images.
// Must stay in sync with the ffmpeg output template in the extract stage.
func ImageFilename(index int) string {
	return fmt.Sprintf("image-%05d.webp", index)
}

// ThumbnailFilename returns the storage filename for a resized copy of a
// frame at the given target width.
func ThumbnailFilename(index, width int) string {
	return fmt.Sprintf("image-%05d-%dw.jpg", index, width)
}

// InfoJSON is the metadata sidecar the downloader writes next to the media
// file. Field names follow the yt-dlp info-json format.
type InfoJSON struct {
	Ext         string  `json:"ext"`
	Title       string  `json:"title"`
	AspectRatio float64 `json:"aspect_ratio"`
	Duration    int     `json:"duration"`
	ReleaseDate string  `json:"release_date"`
	UploadDate  string  `json:"upload_date"`
	Uploader    string  `json:"uploader"`
	WebpageURL  string  `json:"webpage_url"`
}

// Date returns the release date, falling back to the upload date. Both are
// in yt-dlp's YYYYMMDD form; ok is false when neither parses.
func (i *InfoJSON) Date() (time.Time, bool) {
	for _, s := range []string{i.ReleaseDate, i.UploadDate} {
		if t, err := time.Parse("20060102", s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
