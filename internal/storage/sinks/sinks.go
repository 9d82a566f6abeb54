// Package sinks opens a storage.Backend by kind.
package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/FranksOps/profilematch/internal/storage"
	"github.com/FranksOps/profilematch/internal/storage/csvbackend"
	"github.com/FranksOps/profilematch/internal/storage/jsonbackend"
	"github.com/FranksOps/profilematch/internal/storage/postgres"
	"github.com/FranksOps/profilematch/internal/storage/sqlite"
)

// Kind names a backend.
type Kind string

const (
	KindCSV      Kind = "csv"
	KindNDJSON   Kind = "ndjson"
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
)

// ParseKind accepts a kind name. An empty name infers the kind from target.
func ParseKind(name, target string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv":
		return KindCSV, nil
	case "ndjson", "json", "jsonl":
		return KindNDJSON, nil
	case "sqlite", "sqlite3":
		return KindSQLite, nil
	case "postgres", "postgresql", "pg":
		return KindPostgres, nil
	case "":
		return infer(target), nil
	default:
		return "", fmt.Errorf("unknown sink %q (want csv, ndjson, sqlite or postgres)", name)
	}
}

func infer(target string) Kind {
	if strings.HasPrefix(target, "postgres://") || strings.HasPrefix(target, "postgresql://") {
		return KindPostgres
	}
	switch strings.ToLower(filepath.Ext(target)) {
	case ".ndjson", ".jsonl", ".json":
		return KindNDJSON
	case ".db", ".sqlite", ".sqlite3":
		return KindSQLite
	default:
		return KindCSV
	}
}

// Open returns the backend of kind writing to target, a file path or DSN.
// layout only affects the CSV backend.
func Open(ctx context.Context, kind Kind, target string, layout storage.Layout) (storage.Backend, error) {
	if target == "" {
		return nil, fmt.Errorf("sink %s: no target", kind)
	}
	switch kind {
	case KindCSV:
		return csvbackend.New(target, layout)
	case KindNDJSON:
		return jsonbackend.New(target)
	case KindSQLite:
		return sqlite.New(target)
	case KindPostgres:
		return postgres.New(ctx, target)
	default:
		return nil, fmt.Errorf("unknown sink %q", kind)
	}
}

// Read returns the rows stored at target without opening it for writing.
// File-backed kinds must already exist; a CSV file is read by its own
// header, so no layout is needed.
func Read(ctx context.Context, kind Kind, target string, filter storage.Filter) ([]*storage.OutputRow, error) {
	var rows []*storage.OutputRow
	var err error
	switch kind {
	case KindCSV:
		rows, err = readFile(target, csvbackend.ReadRows)
	case KindNDJSON:
		rows, err = readFile(target, jsonbackend.ReadRows)
	case KindSQLite:
		b, err := sqlite.OpenReadOnly(target)
		if err != nil {
			return nil, err
		}
		defer b.Close()
		return b.Query(ctx, filter)
	default:
		b, err := Open(ctx, kind, target, storage.Layout{})
		if err != nil {
			return nil, err
		}
		defer b.Close()
		return b.Query(ctx, filter)
	}
	if err != nil {
		return nil, err
	}

	var out []*storage.OutputRow
	for _, r := range rows {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	return filter.Page(out), nil
}

func readFile(path string, decode func(io.Reader) ([]*storage.OutputRow, error)) ([]*storage.OutputRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}
	defer f.Close()
	return decode(f)
}
