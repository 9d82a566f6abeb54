// Package record loads the people to look up from a CSV file.
package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// IOError reports that the input could not be opened or read.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("read input %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// FormatError reports a row whose shape does not match the header.
type FormatError struct {
	Line int
	Got  int
	Want int
	Msg  string
}

func (e *FormatError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("line %d: row has %d columns, header has %d", e.Line, e.Got, e.Want)
}

// Person is one input row keyed by the header. Field order follows the input.
type Person struct {
	keys   []string
	values map[string]string
}

// NewPerson builds a Person from parallel header and value slices.
func NewPerson(keys, values []string) Person {
	p := Person{
		keys:   make([]string, len(keys)),
		values: make(map[string]string, len(keys)),
	}
	copy(p.keys, keys)
	for i, k := range keys {
		if i < len(values) {
			p.values[k] = values[i]
		}
	}
	return p
}

// Get returns the value of the named field and whether the field exists.
func (p Person) Get(name string) (string, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Value returns the named field or "".
func (p Person) Value(name string) string {
	return p.values[name]
}

// Keys returns the field names in input order.
func (p Person) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Values returns the field values in input order.
func (p Person) Values() []string {
	out := make([]string, len(p.keys))
	for i, k := range p.keys {
		out[i] = p.values[k]
	}
	return out
}

// Set is the fully loaded input.
type Set struct {
	Header []string
	People []Person
}

// Options controls how strictly rows are validated.
type Options struct {
	// SkipMalformed logs and drops rows with the wrong column count or
	// broken quoting instead of failing the load.
	SkipMalformed bool
	Logger        *slog.Logger
}

// Load reads the CSV file at path.
func Load(path string, opts Options) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	defer f.Close()

	set, err := Read(f, opts)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &IOError{Path: path, Err: err}
	}
	return set, nil
}

// Read parses CSV from r. The first row is the header.
func Read(r io.Reader, opts Options) (*Set, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &FormatError{Line: 1, Msg: "missing header row"}
	}
	if fe := parseFormatError(err); fe != nil {
		return nil, fe
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, &FormatError{Line: 1, Msg: fmt.Sprintf("column %d has an empty name", i+1)}
		}
		if _, dup := seen[h]; dup {
			return nil, &FormatError{Line: 1, Msg: fmt.Sprintf("duplicate column %q", h)}
		}
		seen[h] = struct{}{}
		header[i] = h
	}

	set := &Set{Header: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if fe := parseFormatError(err); fe != nil {
			if !opts.SkipMalformed {
				return nil, fe
			}
			logger.Warn("skipping malformed row", "line", fe.Line, "err", fe.Msg)
			continue
		}
		if err != nil {
			return nil, err
		}

		line, _ := cr.FieldPos(0)
		if len(rec) != len(header) {
			fe := &FormatError{Line: line, Got: len(rec), Want: len(header)}
			if !opts.SkipMalformed {
				return nil, fe
			}
			logger.Warn("skipping malformed row", "line", line, "got", len(rec), "want", len(header))
			continue
		}

		set.People = append(set.People, NewPerson(header, rec))
	}

	return set, nil
}

// parseFormatError maps a CSV syntax error, such as a stray quote, onto the
// row it occurred in. Other errors yield nil.
func parseFormatError(err error) *FormatError {
	var pe *csv.ParseError
	if !errors.As(err, &pe) {
		return nil
	}
	return &FormatError{Line: pe.StartLine, Msg: fmt.Sprintf("column %d: %v", pe.Column, pe.Err)}
}
