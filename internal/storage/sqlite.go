package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		seq    INTEGER PRIMARY KEY AUTOINCREMENT,
		tbl    TEXT NOT NULL,
		row_id TEXT NOT NULL UNIQUE,
		data   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS records_tbl_seq ON records(tbl, seq)`,
}

// SQLiteStore keeps all tables in one SQLite file; row values are stored as a
// JSON object so tables need no schema of their own.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; the driver serializes on a single connection
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context, t Table) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT row_id, data FROM records WHERE tbl = ? ORDER BY seq`, t.Name)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", t.Name, err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %q: %w", t.Name, err)
		}
		values := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return nil, fmt.Errorf("decode row %s: %w", id, err)
		}
		for _, c := range t.Columns {
			if _, ok := values[c]; !ok {
				values[c] = ""
			}
		}
		out = append(out, Row{ID: RowID(id), Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %q: %w", t.Name, err)
	}
	return out, nil
}

func (s *SQLiteStore) Append(ctx context.Context, t Table, values map[string]string) (RowID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode row: %w", err)
	}
	id := newRowID()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO records (tbl, row_id, data) VALUES (?, ?, ?)`, t.Name, string(id), string(raw)); err != nil {
		return "", fmt.Errorf("insert into %q: %w", t.Name, err)
	}
	return id, nil
}

func (s *SQLiteStore) UpdateCell(ctx context.Context, t Table, id RowID, column, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT data FROM records WHERE tbl = ? AND row_id = ?`, t.Name, string(id)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s in %q: %w", id, t.Name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("select %s: %w", id, err)
	}
	values := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return fmt.Errorf("decode row %s: %w", id, err)
	}
	values[column] = value
	updated, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE records SET data = ? WHERE tbl = ? AND row_id = ?`, string(updated), t.Name, string(id)); err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteRow(ctx context.Context, t Table, id RowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE tbl = ? AND row_id = ?`, t.Name, string(id))
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s in %q: %w", id, t.Name, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
