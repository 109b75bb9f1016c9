// Package store persists project and job snapshots as JSON documents. Two
// backends exist: flat files for zero-setup local use, and SQLite for a
// single durable workspace database.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no document exists for the given id.
var ErrNotFound = errors.New("store: not found")

// Store reads and writes raw JSON documents keyed by id.
type Store interface {
	SaveRaw(ctx context.Context, id string, data map[string]any) error
	LoadRaw(ctx context.Context, id string) (map[string]any, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// FileStore keeps one <id>.json per document under a base directory.
// Writes go through a temp file and a rename so a crash mid-write never
// leaves a truncated document behind.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

func (s *FileStore) SaveRaw(_ context.Context, id string, data map[string]any) error {
	if err := validID(id); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	tmp := s.path(id) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	if err := os.Rename(tmp, s.path(id)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) LoadRaw(_ context.Context, id string) (map[string]any, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return data, nil
}

func (s *FileStore) ListIDs(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list store dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// validID rejects ids that would escape the base directory.
func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("store: invalid id %q", id)
	}
	return nil
}
