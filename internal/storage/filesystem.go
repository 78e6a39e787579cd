package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStorage implements Backend on a local directory.
type FilesystemStorage struct {
	baseDir string
}

// NewFilesystemStorage creates a filesystem backend rooted at baseDir.
func NewFilesystemStorage(baseDir string) (*FilesystemStorage, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FilesystemStorage{baseDir: baseDir}, nil
}

// resolve maps a storage key to a local path, rejecting traversal.
func (fs *FilesystemStorage) resolve(key string) (string, error) {
	path := filepath.Join(fs.baseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(fs.baseDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid key %q: path traversal detected", key)
	}
	return path, nil
}

// Get returns a reader for the file at the given key.
func (fs *FilesystemStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s", key)
		}
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return file, nil
}

// Put writes the object at the given key, creating parent directories.
func (fs *FilesystemStorage) Put(ctx context.Context, key string, r io.Reader) error {
	path, err := fs.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return f.Close()
}

// StreamToDisk copies the object at key to a local file.
func (fs *FilesystemStorage) StreamToDisk(ctx context.Context, key, localPath string) error {
	r, err := fs.Get(ctx, key)
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to stream %s to %s: %w", key, localPath, err)
	}
	return f.Close()
}

// UploadFile copies a local file to the object at key.
func (fs *FilesystemStorage) UploadFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()
	return fs.Put(ctx, key, f)
}

// Exists checks if an object exists at the given key.
func (fs *FilesystemStorage) Exists(ctx context.Context, key string) (bool, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return true, nil
}

var _ Backend = (*FilesystemStorage)(nil)
