package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbbp/pipeline/internal/store"
	"github.com/sbbp/pipeline/pkg/pipeline"
)

// recordingScheduler captures submitted jobs instead of enqueueing them.
type recordingScheduler struct {
	jobs []pipeline.NextJob
	err  error
}

func (s *recordingScheduler) Submit(ctx context.Context, job pipeline.NextJob) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.jobs = append(s.jobs, job)
	return "run-1", nil
}

func newTestServer(t *testing.T, st store.Store, sched *recordingScheduler) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewVideoHandler(st, sched).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestVideoHandler_Create(t *testing.T) {
	st := store.NewMemoryStore()
	sched := &recordingScheduler{}
	server := newTestServer(t, st, sched)

	resp, err := http.Post(server.URL+"/v1/videos", "application/json",
		strings.NewReader(`{"url":"https://example.com/watch?v=abc"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		ID    string `json:"id"`
		RunID string `json:"run_id"`
		Stage string `json:"stage"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.ID)
	assert.Equal(t, "run-1", body.RunID)
	assert.Equal(t, pipeline.StageDownload, body.Stage)

	// Record exists in state queued.
	video, err := st.Get(context.Background(), body.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateQueued, video.ProcessingState)
	assert.Equal(t, "https://example.com/watch?v=abc", video.URL)

	// The download job carries the record's id and storage prefix.
	require.Len(t, sched.jobs, 1)
	job := sched.jobs[0]
	assert.Equal(t, pipeline.StageDownload, job.Stage)
	// The storage prefix is the video id itself.
	assert.Equal(t, pipeline.DownloadPayload{
		ID:            body.ID,
		DownloadURL:   "https://example.com/watch?v=abc",
		StoragePrefix: body.ID,
	}, job.Payload)
}

func TestVideoHandler_CreateRequiresURL(t *testing.T) {
	server := newTestServer(t, store.NewMemoryStore(), &recordingScheduler{})

	resp, err := http.Post(server.URL+"/v1/videos", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVideoHandler_Get(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(context.Background(), "v1", "url"))
	server := newTestServer(t, st, &recordingScheduler{})

	resp, err := http.Get(server.URL + "/v1/videos/v1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var video store.Video
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&video))
	assert.Equal(t, "v1", video.ID)
	assert.Equal(t, store.StateQueued, video.ProcessingState)
}

func TestVideoHandler_GetUnknown(t *testing.T) {
	server := newTestServer(t, store.NewMemoryStore(), &recordingScheduler{})

	resp, err := http.Get(server.URL + "/v1/videos/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVideoHandler_RerunExtract(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(ctx, "v1", "url"))
	require.NoError(t, st.RecordDownload(ctx, "v1", store.DownloadUpdate{
		Title:         "T",
		ProcessedPath: pipeline.StoragePrefix("v1") + "/video.mp4",
	}))
	sched := &recordingScheduler{}
	server := newTestServer(t, st, sched)

	resp, err := http.Post(server.URL+"/v1/videos/v1/rerun/extract", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Len(t, sched.jobs, 1)
	assert.Equal(t, pipeline.ExtractPayload{
		ID:            "v1",
		StoragePrefix: pipeline.StoragePrefix("v1"),
		VideoFilename: "video.mp4",
	}, sched.jobs[0].Payload)
}

func TestVideoHandler_RerunBeforePrerequisite(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(context.Background(), "v1", "url"))
	sched := &recordingScheduler{}
	server := newTestServer(t, st, sched)

	// Nothing downloaded yet, so extract, analyze, transcribe and
	// summarize all refuse.
	for _, stage := range []string{"extract", "analyze", "transcribe", "summarize"} {
		resp, err := http.Post(server.URL+"/v1/videos/v1/rerun/"+stage, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode, "stage %s", stage)
	}
	assert.Empty(t, sched.jobs)
}

func TestVideoHandler_RerunDownloadAlwaysAllowed(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(context.Background(), "v1", "https://example.com/v"))
	sched := &recordingScheduler{}
	server := newTestServer(t, st, sched)

	resp, err := http.Post(server.URL+"/v1/videos/v1/rerun/download", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Len(t, sched.jobs, 1)
	assert.Equal(t, pipeline.DownloadPayload{
		ID:            "v1",
		DownloadURL:   "https://example.com/v",
		StoragePrefix: pipeline.StoragePrefix("v1"),
	}, sched.jobs[0].Payload)
}

func TestVideoHandler_RerunTranscribeUsesRecordedAudio(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(ctx, "v1", "url"))
	require.NoError(t, st.RecordExtraction(ctx, "v1", store.VideoImages{MaxIndex: 8, Interval: 10},
		store.StageStats{Filename: "audio.mp4"},
		store.StageStats{Filename: "image-%05d.webp"}))
	sched := &recordingScheduler{}
	server := newTestServer(t, st, sched)

	resp, err := http.Post(server.URL+"/v1/videos/v1/rerun/transcribe", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Len(t, sched.jobs, 1)
	assert.Equal(t, pipeline.TranscribePayload{
		ID:            "v1",
		StoragePrefix: pipeline.StoragePrefix("v1"),
		AudioPath:     pipeline.StoragePrefix("v1") + "/audio.mp4",
	}, sched.jobs[0].Payload)
}

func TestVideoHandler_RerunUnknownStage(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(context.Background(), "v1", "url"))
	server := newTestServer(t, st, &recordingScheduler{})

	resp, err := http.Post(server.URL+"/v1/videos/v1/rerun/frobnicate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestVideoHandler_RerunUnknownVideo(t *testing.T) {
	server := newTestServer(t, store.NewMemoryStore(), &recordingScheduler{})

	resp, err := http.Post(server.URL+"/v1/videos/missing/rerun/download", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
