// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package triplestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS triplets (
	subject   TEXT NOT NULL,
	predicate TEXT NOT NULL,
	object    TEXT NOT NULL,
	PRIMARY KEY (subject, predicate, object)
);
CREATE INDEX IF NOT EXISTS triplets_pos ON triplets (predicate, object);
CREATE INDEX IF NOT EXISTS triplets_osp ON triplets (object, subject);
CREATE TABLE IF NOT EXISTS predicate_colors (
	type  TEXT PRIMARY KEY,
	color TEXT NOT NULL
);
`

// sqlitePragmas apply to every pooled connection through the DSN.
const sqlitePragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// SQLiteStore is a Store backed by a single SQLite table.
//
// Rows are returned in insertion order (rowid), which keeps Get(Pattern{})
// stable across restarts.
type SQLiteStore struct {
	conn   *sql.DB
	logger *slog.Logger
	closed atomic.Bool
}

// OpenSQLite opens or creates the database at path and applies the schema.
//
// Description:
//
//	Uses the pure-Go modernc.org/sqlite driver. On-disk databases run in WAL
//	mode with a busy timeout. The path ":memory:" opens a private in-memory
//	database limited to one connection so every query sees the same data.
//
// Inputs:
//
//	path - Database file path or ":memory:".
//	logger - Optional logger; nil uses slog.Default().
//
// Outputs:
//
//	*SQLiteStore - The ready store. Caller must call Close().
//	error - Non-nil if the database cannot be opened or migrated.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	inMemory := path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path
	if !inMemory {
		dsn += sqlitePragmas
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if inMemory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{conn: conn, logger: logger.With(slog.String("store", "sqlite"))}, nil
}

// PutColored inserts t and the predicate color in one transaction. An
// already recorded color is kept.
func (s *SQLiteStore) PutColored(ctx context.Context, t Triplet, color string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if err := validateColor(color); err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put %s: begin: %w", t, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO triplets (subject, predicate, object) VALUES (?, ?, ?)`,
		t.Subject, t.Predicate, t.Object); err != nil {
		return fmt.Errorf("put %s: %w", t, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO predicate_colors (type, color) VALUES (?, ?)`,
		t.Predicate, color); err != nil {
		return fmt.Errorf("put color for %s: %w", t.Predicate, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put %s: commit: %w", t, err)
	}
	s.logger.Debug("triplet stored", slog.String("triplet", t.String()), slog.String("color", color))
	return nil
}

// Colors reads the predicate_colors table.
func (s *SQLiteStore) Colors(ctx context.Context) (map[string]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT type, color FROM predicate_colors`)
	if err != nil {
		return nil, fmt.Errorf("query colors: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var typ, color string
		if err := rows.Scan(&typ, &color); err != nil {
			return nil, fmt.Errorf("scan color: %w", err)
		}
		out[typ] = color
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate colors: %w", err)
	}
	return out, nil
}

// Put inserts t, ignoring duplicates.
func (s *SQLiteStore) Put(ctx context.Context, t Triplet) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO triplets (subject, predicate, object) VALUES (?, ?, ?)`,
		t.Subject, t.Predicate, t.Object)
	if err != nil {
		return fmt.Errorf("put %s: %w", t, err)
	}
	s.logger.Debug("triplet stored", slog.String("triplet", t.String()))
	return nil
}

// Del deletes t if present.
func (s *SQLiteStore) Del(ctx context.Context, t Triplet) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM triplets WHERE subject = ? AND predicate = ? AND object = ?`,
		t.Subject, t.Predicate, t.Object)
	if err != nil {
		return fmt.Errorf("del %s: %w", t, err)
	}
	s.logger.Debug("triplet deleted", slog.String("triplet", t.String()))
	return nil
}

// Get selects the rows matching p's bound fields.
func (s *SQLiteStore) Get(ctx context.Context, p Pattern) ([]Triplet, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	query, args := buildSelect(p)
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query triplets: %w", err)
	}
	defer rows.Close()

	var out []Triplet
	for rows.Next() {
		var t Triplet
		if err := rows.Scan(&t.Subject, &t.Predicate, &t.Object); err != nil {
			return nil, fmt.Errorf("scan triplet: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triplets: %w", err)
	}
	return out, nil
}

// Close closes the connection pool.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close()
}

func buildSelect(p Pattern) (string, []any) {
	var where []string
	var args []any
	if p.Subject != "" {
		where = append(where, "subject = ?")
		args = append(args, p.Subject)
	}
	if p.Predicate != "" {
		where = append(where, "predicate = ?")
		args = append(args, p.Predicate)
	}
	if p.Object != "" {
		where = append(where, "object = ?")
		args = append(args, p.Object)
	}

	query := "SELECT subject, predicate, object FROM triplets"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query + " ORDER BY rowid", args
}
