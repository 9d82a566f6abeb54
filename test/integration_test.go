//go:build integration

package test

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/profilematch/internal/fingerprint"
	"github.com/FranksOps/profilematch/internal/pipeline"
	"github.com/FranksOps/profilematch/internal/progress"
	"github.com/FranksOps/profilematch/internal/record"
	"github.com/FranksOps/profilematch/internal/report"
	"github.com/FranksOps/profilematch/internal/scraper"
	"github.com/FranksOps/profilematch/internal/serp"
	"github.com/FranksOps/profilematch/internal/storage"
	"github.com/FranksOps/profilematch/internal/storage/sinks"
	"github.com/FranksOps/profilematch/pkg/proxy"
	"github.com/FranksOps/profilematch/pkg/ratelimit"
	"github.com/FranksOps/profilematch/pkg/useragent"
)

// profiles is what the fake engines know: name -> profile id.
var profiles = map[string]string{
	"Jane Doe": "janedoe123",
	"Ann Lee":  "annlee",
}

// googleLike serves a named search form and wraps results in /url?q= links.
func googleLike(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<form action="/search" method="GET" name="f"><input name="q"><button name="btnG" value="Search" type="submit">Go</button></form>
</body></html>`)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("btnG") != "Search" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		q := r.URL.Query().Get("q")
		fmt.Fprint(w, `<html><body><a href="/advanced_search">Advanced</a>`)
		for name, id := range profiles {
			if strings.Contains(q, name) {
				fmt.Fprintf(w, `<a href="/url?q=https://www.linkedin.com/in/%s%%3Ftrk%%3Dx&amp;sa=U">%s</a>`, id, name)
			}
		}
		fmt.Fprint(w, `</body></html>`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

// bingLike needs the session cookie from its home page and links directly.
func bingLike(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "MUID", Value: "abc", Path: "/"})
		fmt.Fprint(w, `<html><body>
<form action="/search"><input name="q"><input type="submit" name="go" value="Search"></form>
</body></html>`)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("MUID"); err != nil || c.Value != "abc" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		q := r.URL.Query().Get("q")
		fmt.Fprint(w, `<html><body>`)
		if strings.Contains(q, "Jane Doe") {
			fmt.Fprint(w, `<a href="https://www.linkedin.com/in/janedoe123?trk=z">Jane</a>`)
		}
		if strings.Contains(q, "Ann Lee") {
			fmt.Fprint(w, `<a href="https://www.linkedin.com/in/ann-lee-99">Ann</a>`)
		}
		fmt.Fprint(w, `</body></html>`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newAdapters(t *testing.T, catalog *serp.Catalog, names []string, pool *proxy.Pool, logger *slog.Logger) []serp.Engine {
	t.Helper()
	specs, err := catalog.Select(names)
	if err != nil {
		t.Fatalf("select engines: %v", err)
	}
	var engines []serp.Engine
	for _, spec := range specs {
		fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
			Timeout:     5 * time.Second,
			Fingerprint: fingerprint.ProfileGo,
			ProxyPool:   pool,
			UAPool:      useragent.NewPool([]string{"IntegrationTest-UA"}, useragent.Sticky),
		})
		if err != nil {
			t.Fatalf("failed to create fetcher: %v", err)
		}
		t.Cleanup(fetcher.Close)

		a, err := serp.NewAdapter(spec, serp.NewQueryBuilder(), fetcher, logger)
		if err != nil {
			t.Fatalf("failed to create adapter: %v", err)
		}
		engines = append(engines, a)
	}
	return engines
}

func TestIntegration_MatchRun(t *testing.T) {
	google := googleLike(t)
	bing := bingLike(t)
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	// 1. Input and engine definitions pointing at the fake engines
	input := filepath.Join(dir, "group_members.csv")
	writeFile(t, input, "\ufeffName,Location\nJane Doe,\"Portland, OR\"\nJohn Roe,Austin\nAnn Lee,NYC\n")

	engineFile := filepath.Join(dir, "engines.yaml")
	writeFile(t, engineFile, fmt.Sprintf("engines:\n  - name: google\n    home_url: %s/\n  - name: bing\n    home_url: %s/\n", google.URL, bing.URL))

	set, err := record.Load(input, record.Options{Logger: logger})
	if err != nil {
		t.Fatalf("load input: %v", err)
	}
	catalog, err := serp.LoadCatalog(engineFile)
	if err != nil {
		t.Fatalf("load engines: %v", err)
	}
	engines := newAdapters(t, catalog, []string{"google", "bing"}, nil, logger)

	// 2. Sink and runner
	output := filepath.Join(dir, "results.csv")
	sink, err := sinks.Open(ctx, sinks.KindCSV, output, storage.Layout{InputColumns: set.Header, Engines: []string{"google", "bing"}})
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}

	var progressOut strings.Builder
	runner := &pipeline.Runner{
		Engines:  engines,
		Sink:     sink,
		Reporter: progress.NewReporter(&progressOut, false),
		Pacer:    ratelimit.NewLimiter(20*time.Millisecond, 0),
		Logger:   logger,
	}

	start := time.Now()
	c, err := runner.Run(ctx, set.People)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	// 3. Verify
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("expected pacing between people, run took %v", elapsed)
	}
	if c.Processed != 3 || c.Confirmed != 1 {
		t.Errorf("expected 3 processed, 1 confirmed, got %+v", c)
	}
	if !strings.HasSuffix(progressOut.String(), "Total: 3     Matches: 1     Percent Matched: 33%\n") {
		t.Errorf("unexpected progress output:\n%s", progressOut.String())
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	want := [][]string{
		{"Name", "Location", "Confirmed Link", "Google Link", "Bing Link"},
		{"Jane Doe", "Portland, OR",
			"/url?q=https://www.linkedin.com/in/janedoe123%3Ftrk%3Dx&sa=U",
			"/url?q=https://www.linkedin.com/in/janedoe123%3Ftrk%3Dx&sa=U",
			"https://www.linkedin.com/in/janedoe123?trk=z"},
		{"John Roe", "Austin", "", "", ""},
		{"Ann Lee", "NYC", "", "/url?q=https://www.linkedin.com/in/annlee%3Ftrk%3Dx&sa=U", "https://www.linkedin.com/in/ann-lee-99"},
	}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d: %q", len(want), len(records), records)
	}
	for i := range want {
		if strings.Join(records[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("record %d:\n got %q\nwant %q", i, records[i], want[i])
		}
	}

	// 4. The report reads the same file back
	rows, err := sinks.Read(ctx, sinks.KindCSV, output, storage.Filter{})
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	s := report.Summarize(rows)
	if s.Confirmed != 1 || s.Disagreements != 1 || s.NoneFound != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestIntegration_ProxyRotation(t *testing.T) {
	var proxyHits atomic.Int32
	// The proxy answers for every engine host itself.
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyHits.Add(1)
		if r.URL.Path == "/search" {
			fmt.Fprint(w, `<a href="https://www.linkedin.com/in/janedoe123">Jane</a>`)
			return
		}
		fmt.Fprint(w, `<form action="/search"><input name="q"></form>`)
	}))
	defer proxySrv.Close()

	pPool := proxy.NewPool(proxy.Config{})
	if err := pPool.Add(proxySrv.URL); err != nil {
		t.Fatal(err)
	}

	catalog, err := serp.BuiltinCatalog()
	if err != nil {
		t.Fatal(err)
	}
	overrides := "engines:\n  - name: yahoo\n    home_url: http://yahoo.example.com/\n    query_field: q\n"
	if err := catalog.Merge(strings.NewReader(overrides)); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jane := record.NewPerson([]string{"Name", "Location"}, []string{"Jane Doe", "Portland"})

	for _, e := range newAdapters(t, catalog, []string{"yahoo"}, pPool, logger) {
		res, err := e.Query(context.Background(), jane)
		if err != nil {
			t.Fatalf("%s: query failed: %v", e.Name(), err)
		}
		if res.Link != "https://www.linkedin.com/in/janedoe123" {
			t.Errorf("%s: expected link through proxy, got %q", e.Name(), res.Link)
		}
	}

	if got := proxyHits.Load(); got != 2 {
		t.Errorf("expected home page and search through the proxy, got %d hits", got)
	}
	if pPool.Healthy() != 1 {
		t.Errorf("expected proxy to stay healthy")
	}
}
