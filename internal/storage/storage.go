package storage

import (
	"context"
	"io"
)

// Backend provides path-keyed access to durable object storage. Keys are
// flat strings; the pipeline imposes its own "{video_id}/..." prefix
// convention on top.
type Backend interface {
	// Get returns a reader for the object at the given key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put writes the object at the given key, replacing any existing one.
	Put(ctx context.Context, key string, r io.Reader) error

	// StreamToDisk copies the object at key to a local file.
	StreamToDisk(ctx context.Context, key, localPath string) error

	// UploadFile copies a local file to the object at key.
	UploadFile(ctx context.Context, localPath, key string) error

	// Exists checks if an object exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)
}

// AppStorage groups the two buckets the pipeline writes to: media uploads
// (video, audio, sidecar) and extracted images.
type AppStorage struct {
	Uploads Backend
	Images  Backend
}
