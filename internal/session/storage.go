// ABOUTME: File-backed session id storage, the CLI analog of ephemeral
// ABOUTME: browser storage. One id per file, created on demand.

package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStorage keeps the session id in a small file. Missing files are not an
// error on Load; parent directories are created on Save.
type FileStorage struct {
	path string
}

// NewFileStorage creates a FileStorage writing to path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load reads the stored session id. A missing file yields an empty id with
// no error.
func (f *FileStorage) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading session file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes the session id, creating parent directories as needed.
func (f *FileStorage) Save(id string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(id+"\n"), 0600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}
