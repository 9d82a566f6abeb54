// Package members exports the members of a social-network list as the CSV
// input of a match run.
package members

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the X API v2 root.
const DefaultBaseURL = "https://api.x.com/2"

// pageSize is the largest page the list members endpoint returns.
const pageSize = 100

// Member is one list member.
type Member struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Location string `json:"location"`
}

// APIError is a non-success response from the API.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
}

func (e *APIError) Error() string {
	msg := e.Title
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("members: api returned %d: %s", e.StatusCode, msg)
}

// Lister walks every member of a list, calling fn once per member.
type Lister interface {
	ListMembers(ctx context.Context, listID string, fn func(Member) error) error
}

// Config configures a Client.
type Config struct {
	// BearerToken is an app-only token.
	BearerToken string
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	Logger  *slog.Logger
}

// Client reads list members over the X API v2.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *slog.Logger
}

var _ Lister = (*Client)(nil)

// NewClient returns a client that authenticates every request with the
// configured bearer token.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BearerToken == "" {
		return nil, errors.New("members: bearer token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.BearerToken, TokenType: "Bearer"})
	return &Client{
		http:    oauth2.NewClient(ctx, ts),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  cfg.Logger,
	}, nil
}

type membersPage struct {
	Data []Member `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// ListMembers follows pagination tokens until the last page. An error
// returned by fn stops the walk and is returned as is.
func (c *Client) ListMembers(ctx context.Context, listID string, fn func(Member) error) error {
	if listID == "" {
		return errors.New("members: list id is required")
	}

	token := ""
	for page := 1; ; page++ {
		p, err := c.fetchPage(ctx, listID, token)
		if err != nil {
			return err
		}
		c.logger.Debug("fetched list members page", "list_id", listID, "page", page, "count", len(p.Data))

		for _, m := range p.Data {
			if err := fn(m); err != nil {
				return err
			}
		}

		if p.Meta.NextToken == "" {
			return nil
		}
		token = p.Meta.NextToken
	}
}

func (c *Client) fetchPage(ctx context.Context, listID, token string) (*membersPage, error) {
	q := url.Values{}
	q.Set("user.fields", "location")
	q.Set("max_results", fmt.Sprint(pageSize))
	if token != "" {
		q.Set("pagination_token", token)
	}
	u := fmt.Sprintf("%s/lists/%s/members?%s", c.baseURL, url.PathEscape(listID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("members: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("members: request failed: %w", err)
	}
	defer resp.Body.Close()

	var p membersPage
	decodeErr := json.NewDecoder(resp.Body).Decode(&p)

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr == nil && len(p.Errors) > 0 {
			apiErr.Title, apiErr.Detail = p.Errors[0].Title, p.Errors[0].Detail
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("members: decode page: %w", decodeErr)
	}
	if len(p.Data) == 0 && len(p.Errors) > 0 {
		return nil, &APIError{StatusCode: resp.StatusCode, Title: p.Errors[0].Title, Detail: p.Errors[0].Detail}
	}
	return &p, nil
}

// Eligible reports whether name looks like a searchable full name: only
// letters and spaces, with at least one space.
func Eligible(name string) bool {
	if !strings.Contains(name, " ") {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// Header is the column layout Export writes.
var Header = []string{"Name", "Location"}

// Export writes the header and one Name,Location row per eligible member of
// listID and returns how many rows it wrote.
func Export(ctx context.Context, l Lister, listID string, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, fmt.Errorf("members: write header: %w", err)
	}

	n := 0
	err := l.ListMembers(ctx, listID, func(m Member) error {
		if !Eligible(m.Name) {
			return nil
		}
		if err := cw.Write([]string{m.Name, m.Location}); err != nil {
			return fmt.Errorf("members: write row: %w", err)
		}
		n++
		return nil
	})

	cw.Flush()
	if err != nil {
		return n, err
	}
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("members: %w", err)
	}
	return n, nil
}
