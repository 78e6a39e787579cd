package workflows

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sbbp/pipeline/internal/extcmd"
	"github.com/sbbp/pipeline/internal/storage"
	"github.com/sbbp/pipeline/internal/store"
	"github.com/sbbp/pipeline/pkg/pipeline"
)

const (
	audioFilename = "audio.mp4"

	// frameTemplate is the ffmpeg output template for sampled frames.
	// Must stay in sync with pipeline.ImageFilename.
	frameTemplate = "image-%05d.webp"

	// DefaultFrameInterval is the sampling interval in seconds of source
	// video per frame.
	DefaultFrameInterval = 10

	transcodeTimeout = 15 * time.Minute

	// frameUploadConcurrency bounds the frame upload fan-out so the
	// storage backend is not overwhelmed.
	frameUploadConcurrency = 16
)

// ExtractStage pulls a normalized audio track and a periodic frame
// sequence out of the downloaded media, then fans out to the analyze and
// transcribe stages.
type ExtractStage struct {
	store   store.Store
	storage *storage.AppStorage
	runner  extcmd.Runner

	// Transcoder is the transcoder binary, ffmpeg by default.
	Transcoder string
	// Interval is the seconds of source video per sampled frame.
	Interval int
}

// NewExtractStage wires the extract stage.
func NewExtractStage(st store.Store, appStorage *storage.AppStorage, runner extcmd.Runner) *ExtractStage {
	return &ExtractStage{
		store:      st,
		storage:    appStorage,
		runner:     runner,
		Transcoder: "ffmpeg",
		Interval:   DefaultFrameInterval,
	}
}

// Name returns the stage name.
func (s *ExtractStage) Name() string { return pipeline.StageExtract }

// Execute runs the extract stage.
func (s *ExtractStage) Execute(wctx *Context, raw json.RawMessage) ([]pipeline.NextJob, error) {
	var payload pipeline.ExtractPayload
	if err := decodePayload(raw, &payload); err != nil {
		return nil, err
	}
	return s.run(wctx, payload)
}

func (s *ExtractStage) run(wctx *Context, payload pipeline.ExtractPayload) ([]pipeline.NextJob, error) {
	ctx := wctx.Ctx
	log.Printf("[%s] Extracting audio and frames for video %s", wctx.RunID, payload.ID)

	if err := s.store.SetState(ctx, payload.ID, store.StateProcessing); err != nil {
		return nil, fmt.Errorf("set state processing: %w", err)
	}

	scratch, err := os.MkdirTemp("", "extract-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	videoKey := payload.StoragePrefix + "/" + payload.VideoFilename
	localVideo := filepath.Join(scratch, payload.VideoFilename)
	if err := s.storage.Uploads.StreamToDisk(ctx, videoKey, localVideo); err != nil {
		return nil, fmt.Errorf("download %s: %w", videoKey, err)
	}

	// Both transcodes run in parallel against the same input; a failure
	// in either fails the whole stage with no partial commit.
	var audioStats, frameStats store.StageStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.runner.Run(gctx, extcmd.Spec{
			Prog: s.Transcoder,
			Args: []string{
				"-y", "-i", payload.VideoFilename,
				"-vn", "-c:a", "aac", "-ar", "16000", "-ac", "1",
				audioFilename,
			},
			Dir:     scratch,
			Timeout: transcodeTimeout,
		})
		if err != nil {
			return fmt.Errorf("extract audio: %w", err)
		}
		audioStats = store.StageStats{Duration: int(res.Duration.Seconds()), Filename: audioFilename}
		return nil
	})
	g.Go(func() error {
		res, err := s.runner.Run(gctx, extcmd.Spec{
			Prog: s.Transcoder,
			Args: []string{
				"-y", "-i", payload.VideoFilename,
				"-vf", fmt.Sprintf("fps=1/%d", s.Interval),
				"-c:v", "libwebp",
				frameTemplate,
			},
			Dir:     scratch,
			Timeout: transcodeTimeout,
		})
		if err != nil {
			return fmt.Errorf("extract frames: %w", err)
		}
		frameStats = store.StageStats{Duration: int(res.Duration.Seconds()), Filename: frameTemplate}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	frames, err := filepath.Glob(filepath.Join(scratch, "image-*.webp"))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("transcoder produced no frames")
	}
	// max_index is the zero-based count: frames are named from
	// image-00001 and the analyze stage walks 1..=max_index.
	maxIndex := len(frames) - 1

	audioKey := payload.StoragePrefix + "/" + audioFilename
	if err := s.storage.Uploads.UploadFile(ctx, filepath.Join(scratch, audioFilename), audioKey); err != nil {
		return nil, fmt.Errorf("upload %s: %w", audioKey, err)
	}

	ug, ugctx := errgroup.WithContext(ctx)
	ug.SetLimit(frameUploadConcurrency)
	for i := 1; i <= len(frames); i++ {
		ug.Go(func() error {
			filename := pipeline.ImageFilename(i)
			key := payload.StoragePrefix + "/" + filename
			if err := s.storage.Images.UploadFile(ugctx, filepath.Join(scratch, filename), key); err != nil {
				return fmt.Errorf("upload %s: %w", key, err)
			}
			return nil
		})
	}
	if err := ug.Wait(); err != nil {
		return nil, err
	}

	images := store.VideoImages{MaxIndex: maxIndex, Interval: s.Interval}
	if err := s.store.RecordExtraction(ctx, payload.ID, images, audioStats, frameStats); err != nil {
		return nil, fmt.Errorf("record extraction: %w", err)
	}

	log.Printf("[%s] Extracted %d frames and %s for video %s", wctx.RunID, len(frames), audioFilename, payload.ID)

	// Analyze and transcribe are independent children; the scheduler is
	// free to run them concurrently.
	return []pipeline.NextJob{
		{
			Stage:   pipeline.StageTranscribe,
			VideoID: payload.ID,
			Payload: pipeline.TranscribePayload{
				ID:            payload.ID,
				StoragePrefix: payload.StoragePrefix,
				AudioPath:     audioKey,
			},
		},
		{
			Stage:   pipeline.StageAnalyze,
			VideoID: payload.ID,
			Payload: pipeline.AnalyzePayload{
				ID:            payload.ID,
				StoragePrefix: payload.StoragePrefix,
				MaxIndex:      maxIndex,
			},
		},
	}, nil
}
