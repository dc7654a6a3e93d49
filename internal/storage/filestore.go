package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is the portable Store backend: all kv state in a single JSON
// document plus raw files in a files/ subdirectory. It exists for
// environments where the SQLite backend cannot be used (read-only homes,
// constrained sandboxes) and mirrors the flat-document model of browser
// local storage.
type FileStore struct {
	dir string

	mu   sync.Mutex
	data map[string]json.RawMessage
}

var _ Store = (*FileStore)(nil)

// OpenFileStore opens (or creates) a plain-file store rooted at dataDir.
func OpenFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, "files"), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &FileStore{
		dir:  dataDir,
		data: make(map[string]json.RawMessage),
	}

	raw, err := os.ReadFile(s.kvPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading store file: %w", err)
		}
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parsing store file %s: %w", s.kvPath(), err)
	}
	return s, nil
}

func (s *FileStore) kvPath() string {
	return filepath.Join(s.dir, "store.json")
}

func (s *FileStore) filePath(name string) string {
	// Strip any path components so callers cannot escape the files dir.
	return filepath.Join(s.dir, "files", filepath.Base(name))
}

// persist writes the kv document atomically (temp file + rename).
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}
	tmp := s.kvPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}
	if err := os.Rename(tmp, s.kvPath()); err != nil {
		return fmt.Errorf("replacing store file: %w", err)
	}
	return nil
}

// GetJSON implements Store.
func (s *FileStore) GetJSON(key string, v any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return true, nil
}

// SetJSON implements Store.
func (s *FileStore) SetJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = raw
	return s.persist()
}

// SaveFile implements Store.
func (s *FileStore) SaveFile(name string, data []byte) (string, error) {
	path := s.filePath(name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing file %q: %w", name, err)
	}
	return "file://" + path, nil
}

// ReadFile implements Store.
func (s *FileStore) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(s.filePath(name))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading file %q: %w", name, err)
	}
	return data, nil
}

// DeleteFile implements Store.
func (s *FileStore) DeleteFile(name string) error {
	err := os.Remove(s.filePath(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file %q: %w", name, err)
	}
	return nil
}

// Close implements Store. The file backend holds no open handles.
func (s *FileStore) Close() error {
	return nil
}
