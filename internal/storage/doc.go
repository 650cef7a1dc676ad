// Package storage persists the tracked boss collection.
//
// Both operations use whole-collection semantics (load everything, save
// everything); record counts are small and this keeps save atomic.
//
// Drivers:
//   - "file": one JSON document, rewritten atomically on save (default)
//   - "sqlite": SQLite database file (build with -tags sqlite)
package storage
