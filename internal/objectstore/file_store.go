package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/tts-workbench/internal/core"
)

const (
	filePermissions = 0o600
	dirPermissions  = 0o750
	tempFilePattern = ".tmp-*"
)

// ErrInvalidKey is returned for keys that would escape the store directory.
var ErrInvalidKey = errors.New("invalid object key")

// FileStore keeps each object in its own file below a directory. Writes go
// through a temporary file and a rename so a crash never leaves a torn
// snapshot behind.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a FileStore
// rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	err := os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create store directory '%s': %w", dir, err)
	}

	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory.
func (f *FileStore) Dir() string {
	return f.dir
}

// Download reads the file for key.
func (f *FileStore) Download(_ context.Context, key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: '%s'", core.ErrObjectNotFound, key)
		}

		return nil, fmt.Errorf("failed to read object '%s': %w", key, err)
	}

	return data, nil
}

// Upload atomically replaces the file for key.
func (f *FileStore) Upload(_ context.Context, key string, data []byte) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(f.dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file for '%s': %w", key, err)
	}

	tempName := tempFile.Name()

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to write object '%s': %w", key, errors.Join(writeErr, closeErr))
	}

	err = os.Chmod(tempName, filePermissions)
	if err != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to set permissions on '%s': %w", key, err)
	}

	err = os.Rename(tempName, path)
	if err != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to commit object '%s': %w", key, err)
	}

	return nil
}

func (f *FileStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return filepath.Join(f.dir, key), nil
}
