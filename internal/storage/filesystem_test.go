package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemStorage_PutAndGet(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Put(ctx, "v1/video.mp4", bytes.NewReader([]byte("media"))))

	r, err := fs.Get(ctx, "v1/video.mp4")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "media", string(data))
}

func TestFilesystemStorage_GetMissing(t *testing.T) {
	fs, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Get(context.Background(), "nope")
	assert.ErrorContains(t, err, "not found")
}

func TestFilesystemStorage_Exists(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	ok, err := fs.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fs.Put(ctx, "k", bytes.NewReader([]byte("x"))))
	ok, err = fs.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilesystemStorage_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../outside", "a/../../outside", ".."} {
		err := fs.Put(ctx, key, bytes.NewReader([]byte("x")))
		assert.ErrorContains(t, err, "traversal", "key %q", key)
	}
}

func TestFilesystemStorage_StreamToDiskAndUploadFile(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	scratch := t.TempDir()

	local := filepath.Join(scratch, "in.bin")
	require.NoError(t, os.WriteFile(local, []byte("payload"), 0o644))
	require.NoError(t, fs.UploadFile(ctx, local, "v1/in.bin"))

	out := filepath.Join(scratch, "out.bin")
	require.NoError(t, fs.StreamToDisk(ctx, "v1/in.bin", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
