package serp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/profilematch/internal/linkid"
	"github.com/FranksOps/profilematch/internal/metrics"
	"github.com/FranksOps/profilematch/internal/record"
	"github.com/FranksOps/profilematch/internal/scraper"
)

// Session is the browsing session an Adapter drives. *scraper.Fetcher
// satisfies it.
type Session interface {
	Get(ctx context.Context, targetURL string) (*scraper.Page, error)
	Submit(ctx context.Context, method, action string, values url.Values) (*scraper.Page, error)
}

var _ Session = (*scraper.Fetcher)(nil)

// EngineSpec describes how to drive one search engine's home page form and
// which result links count as profile hits.
type EngineSpec struct {
	Name         string       `yaml:"name"`
	HomeURL      string       `yaml:"home_url"`
	FormSelector string       `yaml:"form_selector"`
	QueryField   string       `yaml:"query_field"`
	SubmitName   string       `yaml:"submit_name"`
	LinkPattern  string       `yaml:"link_pattern"`
	Style        linkid.Style `yaml:"style"`
}

// Validate reports a spec that cannot drive a search.
func (s EngineSpec) Validate() error {
	switch {
	case s.Name == "":
		return errors.New("engine has no name")
	case s.HomeURL == "":
		return fmt.Errorf("engine %s: home_url is required", s.Name)
	case s.LinkPattern == "":
		return fmt.Errorf("engine %s: link_pattern is required", s.Name)
	}
	return nil
}

// Pattern compiles LinkPattern with {domain} replaced by the quoted domain.
func (s EngineSpec) Pattern(domain string) (*regexp.Regexp, error) {
	expr := strings.ReplaceAll(s.LinkPattern, "{domain}", regexp.QuoteMeta(domain))
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("engine %s: invalid link_pattern: %w", s.Name, err)
	}
	return re, nil
}

// Adapter queries one engine the way a person would: load the home page, fill
// in the search form, submit it and take the first profile link on the
// results page.
type Adapter struct {
	spec    EngineSpec
	queries QueryBuilder
	pattern *regexp.Regexp
	session Session
	logger  *slog.Logger
}

var _ Engine = (*Adapter)(nil)

// NewAdapter binds spec to its own session.
func NewAdapter(spec EngineSpec, qb QueryBuilder, session Session, logger *slog.Logger) (*Adapter, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("engine %s: nil session", spec.Name)
	}
	re, err := spec.Pattern(qb.domain())
	if err != nil {
		return nil, err
	}
	if spec.QueryField == "" {
		spec.QueryField = "q"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		spec:    spec,
		queries: qb,
		pattern: re,
		session: session,
		logger:  logger.With("engine", spec.Name),
	}, nil
}

func (a *Adapter) Name() string        { return a.spec.Name }
func (a *Adapter) Style() linkid.Style { return a.spec.Style }

// Query searches for p. A results page without a matching link returns an
// empty SearchResult and no error.
func (a *Adapter) Query(ctx context.Context, p record.Person) (SearchResult, error) {
	res, err := a.query(ctx, p)
	metrics.RecordQuery(a.spec.Name, res.Found(), err)
	return res, err
}

func (a *Adapter) query(ctx context.Context, p record.Person) (SearchResult, error) {
	res := SearchResult{Engine: a.spec.Name}

	home, err := a.session.Get(ctx, a.spec.HomeURL)
	if err != nil {
		return res, &QueryError{Engine: a.spec.Name, Op: "open home page", Err: err}
	}

	form, err := scraper.ParseForm(home, a.spec.FormSelector)
	if err != nil {
		return res, &QueryError{Engine: a.spec.Name, Op: "select form", Err: err}
	}

	q := a.queries.Build(p)
	form.Set(a.spec.QueryField, q)
	values, err := form.Values(a.spec.SubmitName)
	if err != nil {
		return res, &QueryError{Engine: a.spec.Name, Op: "choose submit", Err: err}
	}

	a.logger.Debug("submitting search", "query", q, "action", form.Action.String())
	page, err := a.session.Submit(ctx, form.Method, form.Action.String(), values)
	if err != nil {
		return res, &QueryError{Engine: a.spec.Name, Op: "submit search", Err: err}
	}

	link, err := FirstLink(page.Body, a.pattern)
	if err != nil {
		return res, &QueryError{Engine: a.spec.Name, Op: "parse results", Err: err}
	}
	if link != "" {
		a.logger.Info("found link", "link", link)
	}
	res.Link = link
	return res, nil
}

// FirstLink returns the href of the first anchor, in document order, whose
// href matches re. It returns "" when no anchor matches.
func FirstLink(body []byte, re *regexp.Regexp) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if re.MatchString(href) {
			link = href
			return false
		}
		return true
	})
	return link, nil
}
