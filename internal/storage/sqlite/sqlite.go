// Package sqlite stores output rows in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/FranksOps/profilematch/internal/storage"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS match_results (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	run_id TEXT NOT NULL,
	input TEXT NOT NULL,
	confirmed_link TEXT NOT NULL,
	engine_links TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS match_results_run_id ON match_results (run_id);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

// OpenReadOnly opens an existing database file for querying. A missing file
// is an error; nothing is created and the schema is left alone.
func OpenReadOnly(path string) (storage.Backend, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	dsn := (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro"}).String()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Append(ctx context.Context, row *storage.OutputRow) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	inputJSON, err := json.Marshal(row.Input)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	linksJSON, err := json.Marshal(row.EngineLinks)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	query := `
	INSERT INTO match_results (
		id, run_id, input, confirmed_link, engine_links, created_at
	) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = b.db.ExecContext(ctx, query,
		row.ID,
		row.RunID,
		string(inputJSON),
		row.ConfirmedLink,
		string(linksJSON),
		row.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("sqlite: insert %s: %w", row.ID, err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.OutputRow, error) {
	query := `SELECT id, run_id, input, confirmed_link, engine_links, created_at FROM match_results WHERE 1=1`
	args := []any{}

	if filter.Confirmed != nil {
		if *filter.Confirmed {
			query += ` AND confirmed_link <> ''`
		} else {
			query += ` AND confirmed_link = ''`
		}
	}
	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}

	query += ` ORDER BY seq ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer rows.Close()

	var results []*storage.OutputRow
	for rows.Next() {
		var r storage.OutputRow
		var inputJSON, linksJSON string

		err := rows.Scan(&r.ID, &r.RunID, &inputJSON, &r.ConfirmedLink, &linksJSON, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}

		if err := json.Unmarshal([]byte(inputJSON), &r.Input); err != nil {
			return nil, fmt.Errorf("sqlite: row %s input: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(linksJSON), &r.EngineLinks); err != nil {
			return nil, fmt.Errorf("sqlite: row %s engine links: %w", r.ID, err)
		}

		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
