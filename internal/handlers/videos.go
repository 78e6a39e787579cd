// Package handlers exposes the worker's HTTP API: video submission,
// status reads, and per-stage reruns.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/sbbp/pipeline/internal/store"
	"github.com/sbbp/pipeline/internal/workflows"
	"github.com/sbbp/pipeline/pkg/pipeline"
)

// VideoHandler serves the /v1/videos endpoints.
type VideoHandler struct {
	store     store.Store
	scheduler workflows.Scheduler
}

// NewVideoHandler creates a video handler.
func NewVideoHandler(st store.Store, scheduler workflows.Scheduler) *VideoHandler {
	return &VideoHandler{
		store:     st,
		scheduler: scheduler,
	}
}

// Register mounts the handler's routes on mux.
func (h *VideoHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/videos", h.HandleCreate)
	mux.HandleFunc("/v1/videos/", h.handleVideoSubpath)
}

type createRequest struct {
	URL string `json:"url"`
}

type submitResponse struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`
	Stage string `json:"stage"`
}

// HandleCreate handles POST /v1/videos - creates the record and enqueues
// the download stage.
func (h *VideoHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	if err := h.store.Create(r.Context(), id, req.URL); err != nil {
		log.Printf("Failed to create video record: %v", err)
		http.Error(w, "Failed to create video", http.StatusInternalServerError)
		return
	}

	runID, err := h.scheduler.Submit(r.Context(), pipeline.NextJob{
		Stage:   pipeline.StageDownload,
		VideoID: id,
		Payload: pipeline.DownloadPayload{
			ID:            id,
			DownloadURL:   req.URL,
			StoragePrefix: pipeline.StoragePrefix(id),
		},
	})
	if err != nil {
		log.Printf("Failed to enqueue download for video %s: %v", id, err)
		http.Error(w, "Failed to enqueue download", http.StatusInternalServerError)
		return
	}

	log.Printf("Created video %s for %s, download run %s", id, req.URL, runID)
	writeJSON(w, http.StatusAccepted, submitResponse{ID: id, RunID: runID, Stage: pipeline.StageDownload})
}

// handleVideoSubpath routes GET /v1/videos/{id} and
// POST /v1/videos/{id}/rerun/{stage}.
func (h *VideoHandler) handleVideoSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/videos/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		h.handleGet(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "rerun" && parts[2] != "":
		h.handleRerun(w, r, parts[0], parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (h *VideoHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	video, err := h.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Failed to load video %s: %v", id, err)
		http.Error(w, "Failed to load video", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, video)
}

func (h *VideoHandler) handleRerun(w http.ResponseWriter, r *http.Request, id, stage string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	video, err := h.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Failed to load video %s: %v", id, err)
		http.Error(w, "Failed to load video", http.StatusInternalServerError)
		return
	}

	job, err := rerunJob(video, stage)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	runID, err := h.scheduler.Submit(r.Context(), job)
	if err != nil {
		log.Printf("Failed to enqueue %s rerun for video %s: %v", stage, id, err)
		http.Error(w, "Failed to enqueue rerun", http.StatusInternalServerError)
		return
	}

	log.Printf("Rerunning %s for video %s as %s", stage, id, runID)
	writeJSON(w, http.StatusAccepted, submitResponse{ID: id, RunID: runID, Stage: stage})
}

// rerunJob rebuilds a stage payload from the persisted record. Stages that
// depend on outputs of earlier stages refuse to rerun until those outputs
// exist.
func rerunJob(video *store.Video, stage string) (pipeline.NextJob, error) {
	prefix := pipeline.StoragePrefix(video.ID)

	switch stage {
	case pipeline.StageDownload:
		return pipeline.NextJob{
			Stage:   stage,
			VideoID: video.ID,
			Payload: pipeline.DownloadPayload{
				ID:            video.ID,
				DownloadURL:   video.URL,
				StoragePrefix: prefix,
			},
		}, nil

	case pipeline.StageExtract:
		if video.ProcessedPath == nil {
			return pipeline.NextJob{}, fmt.Errorf("video %s has not been downloaded", video.ID)
		}
		return pipeline.NextJob{
			Stage:   stage,
			VideoID: video.ID,
			Payload: pipeline.ExtractPayload{
				ID:            video.ID,
				StoragePrefix: prefix,
				VideoFilename: path.Base(*video.ProcessedPath),
			},
		}, nil

	case pipeline.StageAnalyze:
		if video.Images == nil {
			return pipeline.NextJob{}, fmt.Errorf("video %s has no extracted frames", video.ID)
		}
		return pipeline.NextJob{
			Stage:   stage,
			VideoID: video.ID,
			Payload: pipeline.AnalyzePayload{
				ID:            video.ID,
				StoragePrefix: prefix,
				MaxIndex:      video.Images.MaxIndex,
			},
		}, nil

	case pipeline.StageTranscribe:
		if video.Metadata.AudioExtraction == nil {
			return pipeline.NextJob{}, fmt.Errorf("video %s has no extracted audio", video.ID)
		}
		return pipeline.NextJob{
			Stage:   stage,
			VideoID: video.ID,
			Payload: pipeline.TranscribePayload{
				ID:            video.ID,
				StoragePrefix: prefix,
				AudioPath:     prefix + "/" + video.Metadata.AudioExtraction.Filename,
			},
		}, nil

	case pipeline.StageSummarize:
		if len(video.Transcript) == 0 {
			return pipeline.NextJob{}, fmt.Errorf("video %s has no transcript", video.ID)
		}
		return pipeline.NextJob{
			Stage:   stage,
			VideoID: video.ID,
			Payload: pipeline.SummarizePayload{ID: video.ID},
		}, nil

	default:
		return pipeline.NextJob{}, fmt.Errorf("unknown stage %q", stage)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
