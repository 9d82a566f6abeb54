package pipeline

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FranksOps/profilematch/internal/linkid"
	"github.com/FranksOps/profilematch/internal/progress"
	"github.com/FranksOps/profilematch/internal/record"
	"github.com/FranksOps/profilematch/internal/serp"
	"github.com/FranksOps/profilematch/internal/storage"
	"github.com/FranksOps/profilematch/internal/storage/csvbackend"
)

// fakeEngine returns canned links keyed by the person's name.
type fakeEngine struct {
	name  string
	style linkid.Style
	links map[string]string
	err   error
	calls int
}

func (f *fakeEngine) Name() string        { return f.name }
func (f *fakeEngine) Style() linkid.Style { return f.style }
func (f *fakeEngine) Query(ctx context.Context, p record.Person) (serp.SearchResult, error) {
	f.calls++
	if f.err != nil {
		return serp.SearchResult{Engine: f.name}, f.err
	}
	return serp.SearchResult{Engine: f.name, Link: f.links[p.Value("Name")]}, nil
}

type countingPacer struct{ waits int }

func (p *countingPacer) Wait(ctx context.Context) error {
	p.waits++
	return ctx.Err()
}
func (p *countingPacer) Stop() {}

var header = []string{"Name", "Location"}

func people(names ...string) []record.Person {
	out := make([]record.Person, 0, len(names))
	for _, n := range names {
		out = append(out, record.NewPerson(header, []string{n, "Portland, OR"}))
	}
	return out
}

func newSink(t *testing.T, engines ...string) (storage.Backend, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.csv")
	b, err := csvbackend.New(path, storage.Layout{InputColumns: header, Engines: engines})
	if err != nil {
		t.Fatalf("failed to open sink: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b, path
}

func TestRunner_Run(t *testing.T) {
	google := &fakeEngine{name: "google", style: linkid.StyleRedirect, links: map[string]string{
		"Jane Doe": "/url?q=https://www.linkedin.com/in/janedoe123?trk=x&y=1",
		"Ann Lee":  "/url?q=https://www.linkedin.com/in/annlee&sa=U",
	}}
	bing := &fakeEngine{name: "bing", style: linkid.StyleDirect, links: map[string]string{
		"Jane Doe": "https://www.linkedin.com/in/janedoe123?trk=z",
		"John Roe": "https://www.linkedin.com/in/johnroe",
		"Ann Lee":  "https://www.linkedin.com/in/ann-lee-2",
	}}
	sink, _ := newSink(t, "google", "bing")
	pacer := &countingPacer{}
	var out bytes.Buffer

	r := &Runner{
		Engines:  []serp.Engine{google, bing},
		Sink:     sink,
		Reporter: progress.NewReporter(&out, false),
		Pacer:    pacer,
		RunID:    "run-1",
	}

	c, err := r.Run(context.Background(), people("Jane Doe", "John Roe", "Ann Lee"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Processed != 3 || c.Confirmed != 1 {
		t.Errorf("expected 3 processed, 1 confirmed, got %+v", c)
	}
	if google.calls != 3 || bing.calls != 3 {
		t.Errorf("expected one query per engine per person, got %d and %d", google.calls, bing.calls)
	}
	if pacer.waits != 3 {
		t.Errorf("expected a pacer wait per person, got %d", pacer.waits)
	}

	rows, err := sink.Query(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	// Confirmed link is the first engine's raw link.
	if rows[0].ConfirmedLink != "/url?q=https://www.linkedin.com/in/janedoe123?trk=x&y=1" {
		t.Errorf("unexpected confirmed link %q", rows[0].ConfirmedLink)
	}
	// One engine found nothing: unconfirmed, but the other link is kept.
	if rows[1].ConfirmedLink != "" || rows[1].Link("bing") != "https://www.linkedin.com/in/johnroe" {
		t.Errorf("unexpected row for John Roe: %+v", rows[1])
	}
	// Both found but disagree.
	if rows[2].ConfirmedLink != "" || rows[2].Link("google") == "" || rows[2].Link("bing") == "" {
		t.Errorf("unexpected row for Ann Lee: %+v", rows[2])
	}

	want := strings.Join([]string{
		"1: Jane Doe - Match!",
		"Total: 1     Matches: 1     Percent Matched: 100%",
		"2: John Roe - :(",
		"Total: 2     Matches: 1     Percent Matched: 50%",
		"3: Ann Lee - :(",
		"Total: 3     Matches: 1     Percent Matched: 33%",
	}, "\n") + "\n"
	if out.String() != want {
		t.Errorf("unexpected progress output:\n%s", out.String())
	}
}

func TestRunner_ThirdEngineIsRecordedNotReconciled(t *testing.T) {
	google := &fakeEngine{name: "google", style: linkid.StyleRedirect, links: map[string]string{
		"Jane Doe": "/url?q=https://www.linkedin.com/in/jane&sa=U",
	}}
	bing := &fakeEngine{name: "bing", style: linkid.StyleDirect}
	yahoo := &fakeEngine{name: "yahoo", style: linkid.StyleDirect, links: map[string]string{
		"Jane Doe": "https://www.linkedin.com/in/jane",
	}}
	sink, _ := newSink(t, "google", "bing", "yahoo")

	r := &Runner{Engines: []serp.Engine{google, bing, yahoo}, Sink: sink}
	c, err := r.Run(context.Background(), people("Jane Doe"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Confirmed != 0 {
		t.Errorf("expected unconfirmed when the second engine found nothing, got %+v", c)
	}

	rows, _ := sink.Query(context.Background(), storage.Filter{})
	if len(rows) != 1 || rows[0].Link("yahoo") != "https://www.linkedin.com/in/jane" {
		t.Errorf("expected yahoo link recorded, got %+v", rows)
	}
}

func TestRunner_EngineErrorStopsRun(t *testing.T) {
	boom := errors.New("connection refused")
	google := &fakeEngine{name: "google", links: map[string]string{}}
	bing := &fakeEngine{name: "bing", err: &serp.QueryError{Engine: "bing", Op: "open home page", Err: boom}}
	sink, _ := newSink(t, "google", "bing")

	r := &Runner{Engines: []serp.Engine{google, bing}, Sink: sink}
	c, err := r.Run(context.Background(), people("Jane Doe", "John Roe"))

	var qe *serp.QueryError
	if !errors.As(err, &qe) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped QueryError, got %v", err)
	}
	if c.Processed != 0 || google.calls != 1 {
		t.Errorf("expected run to stop at the first person, got %+v after %d calls", c, google.calls)
	}

	rows, _ := sink.Query(context.Background(), storage.Filter{})
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestRunner_CancelledWhilePacing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink, _ := newSink(t, "google", "bing")
	r := &Runner{
		Engines: []serp.Engine{&fakeEngine{name: "google"}, &fakeEngine{name: "bing"}},
		Sink:    sink,
		Pacer:   &countingPacer{},
	}
	if _, err := r.Run(ctx, people("Jane Doe")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunner_RequiresTwoEngines(t *testing.T) {
	sink, _ := newSink(t, "google")
	r := &Runner{Engines: []serp.Engine{&fakeEngine{name: "google"}}, Sink: sink}
	if _, err := r.Run(context.Background(), people("Jane Doe")); !errors.Is(err, ErrTooFewEngines) {
		t.Errorf("expected ErrTooFewEngines, got %v", err)
	}
}
