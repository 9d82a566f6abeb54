// Package storage defines the result sink: one OutputRow per processed
// person, appended in processing order.
package storage

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ConfirmedColumn is the CSV column holding the agreed link.
const ConfirmedColumn = "Confirmed Link"

// Field is one input column and its value.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EngineLink is the raw link one engine returned. Link is "" when the engine
// found nothing.
type EngineLink struct {
	Engine string `json:"engine"`
	Link   string `json:"link"`
}

// OutputRow is the stored result for one person. It is never modified after
// it is appended.
type OutputRow struct {
	ID            string       `json:"id"`
	RunID         string       `json:"run_id"`
	Input         []Field      `json:"input"`
	ConfirmedLink string       `json:"confirmed_link"`
	EngineLinks   []EngineLink `json:"engine_links"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Confirmed reports whether the engines agreed on a link.
func (r *OutputRow) Confirmed() bool {
	return r.ConfirmedLink != ""
}

// Value returns the named input field or "".
func (r *OutputRow) Value(name string) string {
	for _, f := range r.Input {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Link returns the raw link recorded for engine or "".
func (r *OutputRow) Link(engine string) string {
	for _, l := range r.EngineLinks {
		if strings.EqualFold(l.Engine, engine) {
			return l.Link
		}
	}
	return ""
}

// Layout fixes the column order of a tabular sink.
type Layout struct {
	InputColumns []string
	Engines      []string
}

// EngineColumn names the column holding engine's raw link: "google" becomes
// "Google Link".
func EngineColumn(engine string) string {
	// A Caser keeps state, so each call gets its own.
	return cases.Title(language.English).String(engine) + " Link"
}

// EngineFromColumn reverses EngineColumn. ok is false for other columns.
func EngineFromColumn(col string) (engine string, ok bool) {
	name, found := strings.CutSuffix(col, " Link")
	if !found || col == ConfirmedColumn || name == "" {
		return "", false
	}
	return strings.ToLower(name), true
}

// Header returns the input columns, the confirmed link column and one link
// column per engine.
func (l Layout) Header() []string {
	h := make([]string, 0, len(l.InputColumns)+1+len(l.Engines))
	h = append(h, l.InputColumns...)
	h = append(h, ConfirmedColumn)
	for _, e := range l.Engines {
		h = append(h, EngineColumn(e))
	}
	return h
}

// Record lays r out in Header order.
func (l Layout) Record(r *OutputRow) []string {
	rec := make([]string, 0, len(l.InputColumns)+1+len(l.Engines))
	for _, c := range l.InputColumns {
		rec = append(rec, r.Value(c))
	}
	rec = append(rec, r.ConfirmedLink)
	for _, e := range l.Engines {
		rec = append(rec, r.Link(e))
	}
	return rec
}

// Filter narrows a Query.
type Filter struct {
	Confirmed *bool
	RunID     string
	Limit     int
	Offset    int
}

// Match reports whether r passes the filter's predicates. Limit and Offset are
// applied by Page.
func (f Filter) Match(r *OutputRow) bool {
	if f.Confirmed != nil && r.Confirmed() != *f.Confirmed {
		return false
	}
	if f.RunID != "" && r.RunID != f.RunID {
		return false
	}
	return true
}

// Page applies Offset and Limit to rows already in order.
func (f Filter) Page(rows []*OutputRow) []*OutputRow {
	if f.Offset > 0 {
		if f.Offset >= len(rows) {
			return []*OutputRow{}
		}
		rows = rows[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(rows) {
		rows = rows[:f.Limit]
	}
	return rows
}

// Backend stores and reads back output rows. Rows come back in the order
// they were appended.
type Backend interface {
	Append(ctx context.Context, row *OutputRow) error
	Query(ctx context.Context, filter Filter) ([]*OutputRow, error)
	Close() error
}
