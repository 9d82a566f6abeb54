// Package pipeline runs the per-person search, reconcile and record loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/profilematch/internal/metrics"
	"github.com/FranksOps/profilematch/internal/progress"
	"github.com/FranksOps/profilematch/internal/reconcile"
	"github.com/FranksOps/profilematch/internal/record"
	"github.com/FranksOps/profilematch/internal/serp"
	"github.com/FranksOps/profilematch/internal/storage"
	"github.com/FranksOps/profilematch/pkg/ratelimit"
)

// ErrTooFewEngines is returned when fewer than two engines are configured.
var ErrTooFewEngines = errors.New("at least two engines are required")

// Runner processes people one at a time: every engine is queried, the first
// two engines' links are reconciled, the row is appended to the sink and the
// running totals are reported.
type Runner struct {
	Engines  []serp.Engine
	Sink     storage.Backend
	Reporter *progress.Reporter
	// Pacer is waited on before each person. Its first Wait must return
	// immediately. Nil means no pacing.
	Pacer  ratelimit.Pacer
	Logger *slog.Logger
	// RunID tags every row. Empty means a fresh uuid per Run.
	RunID string
	// NameField is the input column shown in progress lines. Default "Name".
	NameField string

	now func() time.Time
}

// Run processes people in order and returns the final counters. The first
// engine or sink error stops the run; rows already appended stay in the sink.
func (r *Runner) Run(ctx context.Context, people []record.Person) (progress.Counters, error) {
	var c progress.Counters

	if len(r.Engines) < 2 {
		return c, fmt.Errorf("%w, got %d", ErrTooFewEngines, len(r.Engines))
	}
	if r.Sink == nil {
		return c, errors.New("no result sink")
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := r.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	nameField := r.NameField
	if nameField == "" {
		nameField = serp.DefaultNameField
	}
	logger = logger.With("run_id", runID)
	logger.Info("starting run", "people", len(people), "engines", len(r.Engines))

	for _, p := range people {
		if r.Pacer != nil {
			if err := r.Pacer.Wait(ctx); err != nil {
				return c, fmt.Errorf("waiting before next person: %w", err)
			}
		}

		name := p.Value(nameField)
		row, outcome, err := r.process(ctx, p)
		if err != nil {
			return c, fmt.Errorf("person %d (%s): %w", c.Processed+1, name, err)
		}
		row.RunID = runID

		if err := r.Sink.Append(ctx, row); err != nil {
			return c, fmt.Errorf("person %d (%s): append result: %w", c.Processed+1, name, err)
		}

		c = c.Record(outcome.Confirmed)
		metrics.RecordOutcome(outcome.Confirmed)
		logger.Debug("processed person",
			"n", c.Processed,
			"name", name,
			"confirmed", outcome.Confirmed,
		)

		if r.Reporter != nil {
			if err := r.Reporter.Outcome(c.Processed, name, outcome.Confirmed); err != nil {
				return c, err
			}
			if err := r.Reporter.Report(c); err != nil {
				return c, err
			}
		}
	}

	logger.Info("run finished", "processed", c.Processed, "confirmed", c.Confirmed)
	return c, nil
}

func (r *Runner) process(ctx context.Context, p record.Person) (*storage.OutputRow, reconcile.Outcome, error) {
	row := &storage.OutputRow{
		ID:          uuid.NewString(),
		EngineLinks: make([]storage.EngineLink, 0, len(r.Engines)),
		CreatedAt:   r.timeNow(),
	}
	for _, k := range p.Keys() {
		row.Input = append(row.Input, storage.Field{Name: k, Value: p.Value(k)})
	}

	candidates := make([]reconcile.Candidate, 0, 2)
	for _, e := range r.Engines {
		res, err := e.Query(ctx, p)
		if err != nil {
			return nil, reconcile.Outcome{}, err
		}
		row.EngineLinks = append(row.EngineLinks, storage.EngineLink{Engine: e.Name(), Link: res.Link})

		if len(candidates) < 2 {
			cand, err := reconcile.NewCandidate(e.Name(), res.Link, e.Style())
			if err != nil {
				return nil, reconcile.Outcome{}, err
			}
			candidates = append(candidates, cand)
		}
	}

	outcome := reconcile.Reconcile(candidates[0], candidates[1])
	row.ConfirmedLink = outcome.Link
	return row, outcome, nil
}

func (r *Runner) timeNow() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now().UTC()
}
