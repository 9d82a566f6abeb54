// Package serp queries web search engines for a person's profile link.
package serp

import (
	"context"
	"fmt"

	"github.com/FranksOps/profilematch/internal/linkid"
	"github.com/FranksOps/profilematch/internal/record"
)

// SearchResult is the first matching link one engine returned for a person.
// An empty Link means the engine had no match.
type SearchResult struct {
	Engine string `json:"engine"`
	Link   string `json:"link,omitempty"`
}

// Found reports whether the engine returned a link.
func (r SearchResult) Found() bool {
	return r.Link != ""
}

// Engine abstracts a search engine that can be asked for one person's profile
// link. Implementations are not safe for concurrent use: they carry a browsing
// session.
type Engine interface {
	Name() string
	Style() linkid.Style
	Query(ctx context.Context, p record.Person) (SearchResult, error)
}

// QueryError reports that an engine could not be queried at all. A query that
// ran but found nothing is not an error.
type QueryError struct {
	Engine string
	Op     string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Engine, e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
