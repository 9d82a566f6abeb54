// Package reconcile decides whether two engines agree on a profile.
package reconcile

import (
	"errors"

	"github.com/FranksOps/profilematch/internal/linkid"
)

// Candidate is one engine's answer for a person.
type Candidate struct {
	Engine string
	Raw    string
	ID     linkid.CanonicalID
}

// Present reports whether the candidate can take part in a comparison.
func (c Candidate) Present() bool {
	return c.Raw != "" && c.ID != ""
}

// Outcome is either Confirmed with a link or Unconfirmed.
type Outcome struct {
	Confirmed bool
	Link      string
}

// NewCandidate normalizes raw with the engine's link style. A raw link that
// carries no identifier yields a candidate without an ID.
func NewCandidate(engine, raw string, style linkid.Style) (Candidate, error) {
	c := Candidate{Engine: engine, Raw: raw}
	if raw == "" {
		return c, nil
	}
	id, err := linkid.Normalize(raw, style)
	if err != nil {
		if errors.Is(err, linkid.ErrNoCanonicalID) {
			return c, nil
		}
		return c, err
	}
	c.ID = id
	return c, nil
}

// Reconcile confirms a's raw link only when both candidates are present and
// their identifiers are exactly equal.
func Reconcile(a, b Candidate) Outcome {
	if !a.Present() || !b.Present() {
		return Outcome{}
	}
	if a.ID != b.ID {
		return Outcome{}
	}
	return Outcome{Confirmed: true, Link: a.Raw}
}
