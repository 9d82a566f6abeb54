// Package postgres stores output rows in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FranksOps/profilematch/internal/storage"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS match_results (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	run_id TEXT NOT NULL,
	input JSONB NOT NULL,
	confirmed_link TEXT NOT NULL,
	engine_links JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS match_results_run_id ON match_results (run_id);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	_, err = pool.Exec(ctx, schema)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Append(ctx context.Context, row *storage.OutputRow) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	inputJSON, err := json.Marshal(row.Input)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	linksJSON, err := json.Marshal(row.EngineLinks)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	query := `
	INSERT INTO match_results (
		id, run_id, input, confirmed_link, engine_links, created_at
	) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = b.pool.Exec(ctx, query,
		row.ID,
		row.RunID,
		inputJSON,
		row.ConfirmedLink,
		linksJSON,
		row.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres: insert %s: %w", row.ID, err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.OutputRow, error) {
	query := `SELECT id, run_id, input, confirmed_link, engine_links, created_at FROM match_results WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Confirmed != nil {
		if *filter.Confirmed {
			query += ` AND confirmed_link <> ''`
		} else {
			query += ` AND confirmed_link = ''`
		}
	}
	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, paramCount)
		args = append(args, filter.RunID)
		paramCount++
	}

	query += ` ORDER BY seq ASC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	defer rows.Close()

	var results []*storage.OutputRow
	for rows.Next() {
		var r storage.OutputRow
		var inputJSON, linksJSON []byte

		err := rows.Scan(&r.ID, &r.RunID, &inputJSON, &r.ConfirmedLink, &linksJSON, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}

		if err := json.Unmarshal(inputJSON, &r.Input); err != nil {
			return nil, fmt.Errorf("postgres: row %s input: %w", r.ID, err)
		}
		if err := json.Unmarshal(linksJSON, &r.EngineLinks); err != nil {
			return nil, fmt.Errorf("postgres: row %s engine links: %w", r.ID, err)
		}

		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
