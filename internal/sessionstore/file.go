package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/birbparty/nestlink/sdk"
)

// FileStore keeps the session as a JSON file so it survives restarts of the
// CLI, the way a browser keeps it across page reloads
type FileStore struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store at path on fs
func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

// Read returns the stored session, nil when the file does not exist
func (f *FileStore) Read(ctx context.Context) (*sdk.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *FileStore) read() (*sdk.Session, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var s sdk.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corrupt session file %s: %w", f.path, err)
	}
	if s.Token == "" {
		return nil, nil
	}
	return &s, nil
}

// Write replaces the session file. The file is written next to its final
// name and renamed, so a reader never sees half a token.
func (f *FileStore) Write(ctx context.Context, s sdk.Session) error {
	if s.Token == "" {
		return errors.New("session token cannot be empty")
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := f.fs.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear removes the session file
func (f *FileStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remove()
}

func (f *FileStore) remove() error {
	if err := f.fs.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// CompareAndClear removes the file only while it still holds token
func (f *FileStore) CompareAndClear(ctx context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.read()
	if err != nil {
		return false, err
	}
	if current == nil || current.Token != token {
		return false, nil
	}
	return true, f.remove()
}

// Close is a no-op
func (f *FileStore) Close() error { return nil }
