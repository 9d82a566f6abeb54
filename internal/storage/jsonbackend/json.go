// Package jsonbackend stores output rows as newline-delimited JSON.
package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/FranksOps/profilematch/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

// maxLine bounds one encoded row.
const maxLine = 1 << 20

type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a new NDJSON-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	// Open file for appending, create if it doesn't exist
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("jsonbackend: %w", err)
	}

	return &jsonBackend{
		file: f,
	}, nil
}

func (b *jsonBackend) Append(ctx context.Context, row *storage.OutputRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("jsonbackend: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	_, err = b.file.Write(append(data, '\n'))
	if err != nil {
		return fmt.Errorf("jsonbackend: %w", err)
	}

	return nil
}

func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.OutputRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Seek to the beginning of the file to read all entries
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("jsonbackend: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	rows, err := ReadRows(b.file)
	if err != nil {
		return nil, err
	}

	// No index: read everything, filter in memory, then page.
	var filtered []*storage.OutputRow
	for _, r := range rows {
		if filter.Match(r) {
			filtered = append(filtered, r)
		}
	}
	return filter.Page(filtered), nil
}

// ReadRows decodes every row of an NDJSON stream in order. Blank lines are
// ignored.
func ReadRows(r io.Reader) ([]*storage.OutputRow, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	var rows []*storage.OutputRow
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var row storage.OutputRow
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, fmt.Errorf("jsonbackend: line %d: %w", line, err)
		}
		rows = append(rows, &row)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("jsonbackend: %w", err)
	}
	return rows, nil
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
