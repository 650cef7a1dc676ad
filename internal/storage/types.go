package storage

import (
	"context"
	"errors"
	"time"

	"bosstimer/internal/engine"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON file backend
//   - "sqlite": SQLite database file (optional build tag)
//
// An empty Driver means "file".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the record store consumed by the tracker service.
// The map key is the case-normalized boss name.
type Store interface {
	LoadAll(ctx context.Context) (map[string]engine.Record, error)
	SaveAll(ctx context.Context, recs map[string]engine.Record) error
	Close() error
}
