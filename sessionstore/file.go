package sessionstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/birbparty/roost/sdk"
)

const (
	filePerms = 0o600
	dirPerms  = 0o700
)

// FileStore keeps the session in a JSON file. Writes replace the file
// atomically so a crash never leaves a half-written session behind.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFilePath is ~/.config/roost/session.json, or the same under the
// working directory when no home directory is known
func DefaultFilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "roost", "session.json")
}

// Path returns the session file location
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the session file; a missing file is not an error
func (f *FileStore) Load(ctx context.Context) (*sdk.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return decode(data)
}

// Save writes session to the file; nil clears it
func (f *FileStore) Save(ctx context.Context, session *sdk.Session) error {
	if session == nil {
		return f.Clear(ctx)
	}
	data, err := encode(session)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), dirPerms); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	// atomic.WriteFile leaves new files with the default mode
	if err := os.Chmod(f.path, filePerms); err != nil {
		return fmt.Errorf("failed to set session file permissions: %w", err)
	}
	return nil
}

// Clear removes the session file
func (f *FileStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
