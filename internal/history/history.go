// Package history keeps a sqlite log of version checks.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/obentoo/storewatch/internal/common/logger"
	"github.com/obentoo/storewatch/internal/monitor"
)

// ErrNoHistory is returned when no matching check has been recorded
var ErrNoHistory = errors.New("no recorded checks")

// Entry is one recorded check.
type Entry struct {
	ID         int64
	Source     string
	Version    string
	OldVersion string
	HasUpdate  bool
	Info       string
	URL        string
	CheckedAt  time.Time
}

// DB wraps the sqlite connection holding the check log.
type DB struct {
	db  *sql.DB
	log *logger.Logger
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string, log *logger.Logger) (*DB, error) {
	if log == nil {
		log = logger.Nop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory %s: %w", filepath.Dir(path), err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open failed for %s: %w", path, err)
	}
	// sqlite allows a single writer
	conn.SetMaxOpenConns(1)

	d := &DB{db: conn, log: log}
	if err := d.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Debug("history database ready at %s", path)
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *DB) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS version_checks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			version TEXT,
			old_version TEXT,
			has_update INTEGER NOT NULL DEFAULT 0,
			info TEXT NOT NULL,
			url TEXT,
			checked_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_version_checks_source ON version_checks(source, id)`,
	}
	for _, stmt := range statements {
		if _, err := d.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record stores a check result. It satisfies monitor.Recorder.
func (d *DB) Record(ctx context.Context, res monitor.CheckResult) error {
	checkedAt := res.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}

	hasUpdate := 0
	if res.HasUpdate {
		hasUpdate = 1
	}

	query := `INSERT INTO version_checks (source, version, old_version, has_update, info, url, checked_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := d.db.ExecContext(ctx, query,
		res.Source,
		nullString(res.NewVersion),
		nullString(res.OldVersion),
		hasUpdate,
		res.Info,
		nullString(res.URL),
		checkedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record check for %s: %w", res.Source, err)
	}
	d.log.Debug("recorded check for %s: %s", res.Source, res.Info)
	return nil
}

// List returns recorded checks, newest first. An empty source matches all
// sources and a limit of zero or less returns everything.
func (d *DB) List(ctx context.Context, source string, limit int) ([]Entry, error) {
	query := `SELECT id, source, version, old_version, has_update, info, url, checked_at FROM version_checks`
	var args []interface{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return entries, nil
}

// LastUpdate returns the most recent check of source that reported an update.
func (d *DB) LastUpdate(ctx context.Context, source string) (Entry, error) {
	query := `SELECT id, source, version, old_version, has_update, info, url, checked_at FROM version_checks WHERE source = ? AND has_update = 1 ORDER BY id DESC LIMIT 1`
	e, err := scanEntry(d.db.QueryRowContext(ctx, query, source))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNoHistory, source)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                Entry
		ver, oldVer, url sql.NullString
		hasUpdate        int
		checkedAt        string
	)
	if err := s.Scan(&e.ID, &e.Source, &ver, &oldVer, &hasUpdate, &e.Info, &url, &checkedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("failed to scan history row: %w", err)
	}

	e.Version = ver.String
	e.OldVersion = oldVer.String
	e.URL = url.String
	e.HasUpdate = hasUpdate != 0

	ts, err := time.Parse(time.RFC3339Nano, checkedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid checked_at %q: %w", checkedAt, err)
	}
	e.CheckedAt = ts
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
