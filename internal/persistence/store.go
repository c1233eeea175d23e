// Package persistence owns the durable copy of the block map: one
// JSON file mapping block keys to {color,type}, rewritten wholesale
// after every accepted block mutation.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// BlockRecord is the persisted form of a single block.
type BlockRecord struct {
	Color string `json:"color"`
	Type  string `json:"type"`
}

// WorldFile maps block key ("x,y,z") to its record.
type WorldFile map[string]BlockRecord

type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load reads the world file. A missing file yields an empty world and
// no error; a corrupt file yields an empty world and the parse error
// so the caller can log it and start fresh anyway.
func (s *Store) Load() (WorldFile, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return WorldFile{}, nil
		}
		return WorldFile{}, err
	}
	var w WorldFile
	if err := json.Unmarshal(raw, &w); err != nil {
		return WorldFile{}, fmt.Errorf("world file %s: %w", s.path, err)
	}
	if w == nil {
		w = WorldFile{}
	}
	return w, nil
}

// Write replaces the file contents with the given world. The write
// goes through a temp file and rename so a crash mid-write never
// leaves a truncated file behind.
func (s *Store) Write(w WorldFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(w)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
