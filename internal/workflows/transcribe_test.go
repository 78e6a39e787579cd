package workflows

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbbp/pipeline/internal/deepgram"
	"github.com/sbbp/pipeline/internal/retry"
	"github.com/sbbp/pipeline/internal/store"
	"github.com/sbbp/pipeline/pkg/pipeline"
)

const transcribeResponse = `{
	"results": {
		"channels": [{
			"alternatives": [{
				"paragraphs": {"transcript": "Spoken words."}
			}]
		}]
	}
}`

func speechClient(server *httptest.Server) *deepgram.Client {
	c := deepgram.NewClient("test-key")
	c.BaseURL = server.URL
	c.HTTPClient = server.Client()
	c.Policy = retry.Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  time.Second,
	}
	return c
}

func TestTranscribeStage_HappyPath(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(ctx, "v1", "url"))
	appStorage, uploads, _ := memoryAppStorage()
	require.NoError(t, uploads.Put(ctx, "v1/audio.mp4", bytes.NewReader([]byte("audio-bytes"))))

	var gotTag string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTag = r.URL.Query().Get("tag")
		gotBody, _ = io.ReadAll(r.Body)
		io.WriteString(w, transcribeResponse)
	}))
	defer server.Close()

	stage := NewTranscribeStage(st, appStorage, speechClient(server))
	next, err := stage.Execute(testContext(), mustJSON(t, pipeline.TranscribePayload{
		ID:            "v1",
		StoragePrefix: "v1",
		AudioPath:     "v1/audio.mp4",
	}))
	require.NoError(t, err)

	// The stored asset is what was streamed, tagged with the video id.
	assert.Equal(t, "v1", gotTag)
	assert.Equal(t, "audio-bytes", string(gotBody))

	video, err := st.Get(ctx, "v1")
	require.NoError(t, err)
	require.NotEmpty(t, video.Transcript)
	text, err := deepgram.TranscriptText(video.Transcript)
	require.NoError(t, err)
	assert.Equal(t, "Spoken words.", text)
	require.NotNil(t, video.Metadata.Transcription)

	require.Len(t, next, 1)
	assert.Equal(t, pipeline.StageSummarize, next[0].Stage)
	assert.Equal(t, pipeline.SummarizePayload{ID: "v1"}, next[0].Payload)
}

func TestTranscribeStage_MissingAudioIsFatal(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(ctx, "v1", "url"))
	appStorage, _, _ := memoryAppStorage()

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	stage := NewTranscribeStage(st, appStorage, speechClient(server))
	_, err := stage.Execute(testContext(), mustJSON(t, pipeline.TranscribePayload{
		ID:            "v1",
		StoragePrefix: "v1",
		AudioPath:     "v1/audio.mp4",
	}))
	require.Error(t, err)
	// A missing asset never reaches the API and is not retried.
	assert.Equal(t, 0, requests)

	video, err := st.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Empty(t, video.Transcript)
}

func TestTranscribeStage_APIFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(ctx, "v1", "url"))
	appStorage, uploads, _ := memoryAppStorage()
	require.NoError(t, uploads.Put(ctx, "v1/audio.mp4", bytes.NewReader([]byte("audio"))))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	stage := NewTranscribeStage(st, appStorage, speechClient(server))
	_, err := stage.Execute(testContext(), mustJSON(t, pipeline.TranscribePayload{
		ID:            "v1",
		StoragePrefix: "v1",
		AudioPath:     "v1/audio.mp4",
	}))
	require.Error(t, err)

	var se *deepgram.StatusError
	assert.ErrorAs(t, err, &se)
}
