package workflows

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/sbbp/pipeline/internal/deepgram"
	"github.com/sbbp/pipeline/internal/storage"
	"github.com/sbbp/pipeline/internal/store"
	"github.com/sbbp/pipeline/pkg/pipeline"
)

// TranscribeStage streams the extracted audio to the speech-recognition
// API and persists the provider-tagged transcript.
type TranscribeStage struct {
	store   store.Store
	storage *storage.AppStorage
	speech  *deepgram.Client
}

// NewTranscribeStage wires the transcribe stage.
func NewTranscribeStage(st store.Store, appStorage *storage.AppStorage, speech *deepgram.Client) *TranscribeStage {
	return &TranscribeStage{store: st, storage: appStorage, speech: speech}
}

// Name returns the stage name.
func (s *TranscribeStage) Name() string { return pipeline.StageTranscribe }

// Execute runs the transcribe stage.
func (s *TranscribeStage) Execute(wctx *Context, raw json.RawMessage) ([]pipeline.NextJob, error) {
	var payload pipeline.TranscribePayload
	if err := decodePayload(raw, &payload); err != nil {
		return nil, err
	}
	return s.run(wctx, payload)
}

func (s *TranscribeStage) run(wctx *Context, payload pipeline.TranscribePayload) ([]pipeline.NextJob, error) {
	ctx := wctx.Ctx
	log.Printf("[%s] Transcribing %s for video %s", wctx.RunID, payload.AudioPath, payload.ID)
	start := time.Now()

	transcript, err := s.speech.Transcribe(ctx, payload.ID, func() (io.ReadCloser, error) {
		return s.storage.Uploads.Get(ctx, payload.AudioPath)
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", payload.AudioPath, err)
	}

	stats := store.StageStats{Duration: int(time.Since(start).Seconds())}
	if err := s.store.RecordTranscript(ctx, payload.ID, transcript, stats); err != nil {
		return nil, fmt.Errorf("record transcript: %w", err)
	}

	log.Printf("[%s] Transcribed video %s in %s", wctx.RunID, payload.ID, time.Since(start).Round(time.Second))

	return []pipeline.NextJob{{
		Stage:   pipeline.StageSummarize,
		VideoID: payload.ID,
		Payload: pipeline.SummarizePayload{ID: payload.ID},
	}}, nil
}
