//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bosstimer/internal/engine"
	logx "bosstimer/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadAll(ctx context.Context) (map[string]engine.Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, display_name, rule, last_kill, alert_lead_minutes, last_alerted FROM bosses`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]engine.Record{}
	for rows.Next() {
		var (
			key, display, ruleJSON string
			lastKill, lastAlerted  sql.NullInt64
			lead                   int
		)
		if err := rows.Scan(&key, &display, &ruleJSON, &lastKill, &lead, &lastAlerted); err != nil {
			return nil, err
		}
		var rule engine.Rule
		if err := json.Unmarshal([]byte(ruleJSON), &rule); err != nil {
			return nil, fmt.Errorf("decode rule for %q: %w", key, err)
		}
		rec := engine.Record{Name: display, Rule: rule, AlertLeadMinutes: lead}
		if lastKill.Valid {
			t := time.UnixMilli(lastKill.Int64)
			rec.LastKill = &t
		}
		if lastAlerted.Valid {
			t := time.UnixMilli(lastAlerted.Int64)
			rec.LastAlerted = &t
		}
		out[key] = rec
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveAll(ctx context.Context, recs map[string]engine.Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Whole-collection save: replace everything in one transaction.
	if _, err := tx.ExecContext(ctx, `DELETE FROM bosses`); err != nil {
		return err
	}
	for key, rec := range recs {
		rj, err := json.Marshal(rec.Rule)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO bosses(name, display_name, rule, last_kill, alert_lead_minutes, last_alerted)
			 VALUES(?,?,?,?,?,?)`,
			key, rec.Name, string(rj), nullMilli(rec.LastKill), rec.AlertLeadMinutes, nullMilli(rec.LastAlerted),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func nullMilli(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
