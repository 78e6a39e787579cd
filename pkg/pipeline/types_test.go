package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageFilename(t *testing.T) {
	assert.Equal(t, "image-00001.webp", ImageFilename(1))
	assert.Equal(t, "image-00042.webp", ImageFilename(42))
	assert.Equal(t, "image-12345.webp", ImageFilename(12345))
}

func TestThumbnailFilename(t *testing.T) {
	assert.Equal(t, "image-00003-720w.jpg", ThumbnailFilename(3, 720))
	assert.Equal(t, "image-00010-1920w.jpg", ThumbnailFilename(10, 1920))
}

func TestEnvelope(t *testing.T) {
	env, err := Envelope(NextJob{
		Stage:   StageExtract,
		VideoID: "v1",
		Payload: ExtractPayload{ID: "v1", StoragePrefix: "v1", VideoFilename: "video.mp4"},
	})
	require.NoError(t, err)
	assert.Equal(t, StageExtract, env.Stage)
	assert.Equal(t, "v1", env.VideoID)
	assert.True(t, env.NotBefore.IsZero())
	assert.JSONEq(t,
		`{"id":"v1","storage_prefix":"v1","video_filename":"video.mp4"}`,
		string(env.Payload))
}

func TestEnvelope_CarriesRunAt(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env, err := Envelope(NextJob{Stage: StageSummarize, VideoID: "v1", Payload: SummarizePayload{ID: "v1"}, RunAt: at})
	require.NoError(t, err)
	assert.Equal(t, at, env.NotBefore)
}

func TestInfoJSON_Date(t *testing.T) {
	info := InfoJSON{ReleaseDate: "20240301", UploadDate: "20240215"}
	date, ok := info.Date()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), date)
}

func TestInfoJSON_DateFallsBackToUploadDate(t *testing.T) {
	info := InfoJSON{UploadDate: "20240215"}
	date, ok := info.Date()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), date)
}

func TestInfoJSON_DateUnparseable(t *testing.T) {
	info := InfoJSON{ReleaseDate: "not-a-date"}
	_, ok := info.Date()
	assert.False(t, ok)
}

func TestStoragePrefix_IsTheVideoID(t *testing.T) {
	// Asset keys are derivable from the id alone; every stage of one
	// video shares this exact prefix.
	assert.Equal(t, "abc", StoragePrefix("abc"))
	assert.Equal(t, StoragePrefix("v1"), StoragePrefix("v1"))
}
