// Package csvbackend appends output rows to a spreadsheet-friendly CSV file.
package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/FranksOps/profilematch/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu     sync.Mutex
	file   *os.File
	layout storage.Layout
}

// New opens filePath for appending. The header is written only when the file
// is empty; an existing file must already carry the same header.
func New(filePath string, layout storage.Layout) (storage.Backend, error) {
	// Open file for appending, create if it doesn't exist
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	header := layout.Header()
	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
	} else {
		existing, err := csv.NewReader(f).Read()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: read header of %s: %w", filePath, err)
		}
		if !slices.Equal(existing, header) {
			f.Close()
			return nil, fmt.Errorf("csvbackend: %s has columns %q, want %q", filePath, existing, header)
		}
	}

	return &csvBackend{
		file:   f,
		layout: layout,
	}, nil
}

func (b *csvBackend) Append(ctx context.Context, row *storage.OutputRow) error {
	record := b.layout.Record(row)

	b.mu.Lock()
	defer b.mu.Unlock()

	w := csv.NewWriter(b.file)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}

	return nil
}

// Query reads rows back by the file's own header. Columns before
// "Confirmed Link" are input fields; "<Engine> Link" columns after it are
// engine links. The CSV file carries no ids or timestamps.
func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.OutputRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Seek to the beginning of the file to read all entries
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	rows, err := ReadRows(b.file)
	if err != nil {
		return nil, err
	}

	var filtered []*storage.OutputRow
	for _, r := range rows {
		if filter.Match(r) {
			filtered = append(filtered, r)
		}
	}
	return filter.Page(filtered), nil
}

// ReadRows parses a results CSV.
func ReadRows(r io.Reader) ([]*storage.OutputRow, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return []*storage.OutputRow{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csvbackend: read header: %w", err)
	}

	confirmedAt := slices.Index(header, storage.ConfirmedColumn)
	if confirmedAt < 0 {
		return nil, fmt.Errorf("csvbackend: no %q column in %q", storage.ConfirmedColumn, header)
	}

	var rows []*storage.OutputRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: %w", err)
		}

		row := &storage.OutputRow{ConfirmedLink: record[confirmedAt]}
		for i, col := range header {
			switch {
			case i < confirmedAt:
				row.Input = append(row.Input, storage.Field{Name: col, Value: record[i]})
			case i > confirmedAt:
				if engine, ok := storage.EngineFromColumn(col); ok {
					row.EngineLinks = append(row.EngineLinks, storage.EngineLink{Engine: engine, Link: record[i]})
				}
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
