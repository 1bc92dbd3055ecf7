package apiserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/codej/codej/internal/program"
)

// DB wraps the SQLite database backing the reference API server.
// Opened in embedded mode with WAL so reads proceed during writes.
type DB struct {
	conn *sql.DB
	path string
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS programs (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	language TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	code TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_programs_updated_at ON programs(updated_at);
`

// OpenDB creates a database connection at the specified path, creating
// the file and schema on first run.
//
// The caller MUST call Close() when done.
func OpenDB(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, path: path}

	// WAL mode for concurrent reads
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.conn.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

// Close closes the database connection after a WAL checkpoint.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(data), nil
}

func decodeTags(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	return tags, nil
}

// ListPrograms returns all rows ordered by creation time, newest first.
func (db *DB) ListPrograms(ctx context.Context) ([]program.Program, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, language, description, code, url, tags, created_at, updated_at
		FROM programs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query programs: %w", err)
	}
	defer rows.Close()

	var programs []program.Program
	for rows.Next() {
		var p program.Program
		var tagsRaw, createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.Title, &p.Language, &p.Description, &p.Code, &p.URL, &tagsRaw, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		if p.Tags, err = decodeTags(tagsRaw); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("program %s: bad created_at: %w", p.ID, err)
		}
		if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("program %s: bad updated_at: %w", p.ID, err)
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

// InsertProgram stores a new row with a server-assigned ID and returns it.
func (db *DB) InsertProgram(ctx context.Context, p program.Program) (string, error) {
	id := program.GenerateID()
	now := time.Now().UTC()
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return "", err
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO programs (id, title, language, description, code, url, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.Title, p.Language, p.Description, p.Code, p.URL, tags,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("failed to insert program: %w", err)
	}
	return id, nil
}

// UpdateProgram replaces the editable columns of an existing row and
// advances updated_at. Returns false when the row does not exist.
func (db *DB) UpdateProgram(ctx context.Context, id string, p program.Program) (bool, error) {
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return false, err
	}
	res, err := db.conn.ExecContext(ctx, `
		UPDATE programs
		SET title = ?, language = ?, description = ?, code = ?, url = ?, tags = ?, updated_at = ?
		WHERE id = ?`,
		p.Title, p.Language, p.Description, p.Code, p.URL, tags,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return false, fmt.Errorf("failed to update program: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check update result: %w", err)
	}
	return n > 0, nil
}

// DeleteProgram removes a row. Returns false when the row does not exist.
func (db *DB) DeleteProgram(ctx context.Context, id string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM programs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete program: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check delete result: %w", err)
	}
	return n > 0, nil
}
