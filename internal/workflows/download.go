package workflows

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sbbp/pipeline/internal/extcmd"
	"github.com/sbbp/pipeline/internal/storage"
	"github.com/sbbp/pipeline/internal/store"
	"github.com/sbbp/pipeline/pkg/pipeline"
)

const (
	// sidecarFilename is where the downloader writes its JSON metadata,
	// fixed by the infojson output template below.
	sidecarFilename = "video.info.json"

	downloadTimeout = 30 * time.Minute
)

// DownloadStage fetches the source media with an external downloader and
// uploads the media file plus its metadata sidecar to durable storage.
type DownloadStage struct {
	store   store.Store
	storage *storage.AppStorage
	runner  extcmd.Runner

	// Downloader is the downloader binary, yt-dlp by default.
	Downloader string
}

// NewDownloadStage wires the download stage.
func NewDownloadStage(st store.Store, appStorage *storage.AppStorage, runner extcmd.Runner) *DownloadStage {
	return &DownloadStage{
		store:      st,
		storage:    appStorage,
		runner:     runner,
		Downloader: "yt-dlp",
	}
}

// Name returns the stage name.
func (s *DownloadStage) Name() string { return pipeline.StageDownload }

// Execute runs the download stage.
func (s *DownloadStage) Execute(wctx *Context, raw json.RawMessage) ([]pipeline.NextJob, error) {
	var payload pipeline.DownloadPayload
	if err := decodePayload(raw, &payload); err != nil {
		return nil, err
	}
	return s.run(wctx, payload)
}

func (s *DownloadStage) run(wctx *Context, payload pipeline.DownloadPayload) ([]pipeline.NextJob, error) {
	ctx := wctx.Ctx
	log.Printf("[%s] Downloading %s for video %s", wctx.RunID, payload.DownloadURL, payload.ID)
	start := time.Now()

	if err := s.store.SetState(ctx, payload.ID, store.StateDownloading); err != nil {
		return nil, fmt.Errorf("set state downloading: %w", err)
	}

	scratch, err := os.MkdirTemp("", "download-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	// The second output template pins the sidecar to video.info.json
	// regardless of the media extension the source picks.
	if _, err := s.runner.Run(ctx, extcmd.Spec{
		Prog: s.Downloader,
		Args: []string{
			"--write-info-json",
			"--output", "video.%(ext)s",
			"--output", "infojson:video",
			payload.DownloadURL,
		},
		Dir:     scratch,
		Timeout: downloadTimeout,
	}); err != nil {
		return nil, fmt.Errorf("downloader: %w", err)
	}

	sidecar, err := os.ReadFile(filepath.Join(scratch, sidecarFilename))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sidecarFilename, err)
	}
	var info pipeline.InfoJSON
	if err := json.Unmarshal(sidecar, &info); err != nil {
		return nil, fmt.Errorf("parse %s: %w", sidecarFilename, err)
	}

	// Upload the sidecar verbatim, then the media file.
	sidecarKey := payload.StoragePrefix + "/" + sidecarFilename
	if err := s.storage.Uploads.Put(ctx, sidecarKey, bytes.NewReader(sidecar)); err != nil {
		return nil, fmt.Errorf("upload %s: %w", sidecarKey, err)
	}

	videoFilename := "video." + info.Ext
	videoKey := payload.StoragePrefix + "/" + videoFilename
	if err := s.storage.Uploads.UploadFile(ctx, filepath.Join(scratch, videoFilename), videoKey); err != nil {
		return nil, fmt.Errorf("upload %s: %w", videoKey, err)
	}

	upd := store.DownloadUpdate{
		Title:         info.Title,
		Duration:      info.Duration,
		Author:        info.Uploader,
		ProcessedPath: videoKey,
		Stats: store.StageStats{
			Duration: int(time.Since(start).Seconds()),
			Filename: videoFilename,
		},
	}
	if date, ok := info.Date(); ok {
		upd.Date = &date
	}
	if err := s.store.RecordDownload(ctx, payload.ID, upd); err != nil {
		return nil, fmt.Errorf("record download: %w", err)
	}

	log.Printf("[%s] Downloaded %q (%ds) in %s", wctx.RunID, info.Title, info.Duration, time.Since(start).Round(time.Second))

	return []pipeline.NextJob{{
		Stage:   pipeline.StageExtract,
		VideoID: payload.ID,
		Payload: pipeline.ExtractPayload{
			ID:            payload.ID,
			StoragePrefix: payload.StoragePrefix,
			VideoFilename: videoFilename,
		},
	}}, nil
}
