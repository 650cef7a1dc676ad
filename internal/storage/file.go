package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"bosstimer/internal/engine"
	logx "bosstimer/pkg/logx"
)

// fileStore is the dependency-free persistence backend: one JSON document
// holding the whole boss collection, rewritten via temp file + rename so a
// crash mid-save never leaves a truncated file behind.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) LoadAll(ctx context.Context) (map[string]engine.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]engine.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	var recs map[string]engine.Record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if recs == nil {
		recs = map[string]engine.Record{}
	}
	return recs, nil
}

func (s *fileStore) SaveAll(ctx context.Context, recs map[string]engine.Record) error {
	_ = ctx
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
