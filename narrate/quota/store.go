package quota

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore persists the quota record as a small JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store writing to path. The parent directory is
// created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store.
func (s *FileStore) Load() (Record, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Save implements Store. The write goes through a temp file and rename so a
// crash never leaves a half-written record.
func (s *FileStore) Save(rec Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	rec   Record
	ok    bool
	Saves int

	// LoadErr and SaveErr inject failures.
	LoadErr error
	SaveErr error
}

// Load implements Store.
func (s *MemStore) Load() (Record, bool, error) {
	if s.LoadErr != nil {
		return Record{}, false, s.LoadErr
	}
	return s.rec, s.ok, nil
}

// Save implements Store.
func (s *MemStore) Save(rec Record) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.rec = rec
	s.ok = true
	s.Saves++
	return nil
}

// Set seeds the store with a record, as if persisted by a prior session.
func (s *MemStore) Set(rec Record) {
	s.rec = rec
	s.ok = true
}
