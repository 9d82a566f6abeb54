package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/FranksOps/profilematch/internal/fingerprint"
	"github.com/FranksOps/profilematch/internal/metrics"
	"github.com/FranksOps/profilematch/pkg/httpclient"
	"github.com/FranksOps/profilematch/pkg/proxy"
	"github.com/FranksOps/profilematch/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// maxBody caps how much of a result page is read.
const maxBody = 8 << 20

// FetchConfig configures a browsing session.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	// InsecureSkipVerify is for tests against self-signed servers.
	InsecureSkipVerify bool
}

// Page is a fetched HTML document.
type Page struct {
	URL        *url.URL // final URL after redirects
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// StatusError reports a response the session does not treat as a page.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Fetcher is a stateful browsing session: it keeps cookies between requests
// and sends the previous page as Referer, the way a browser does when a user
// loads a search form and submits it.
type Fetcher struct {
	config    FetchConfig
	client    *httpclient.Client
	transport http.RoundTripper

	mu      sync.Mutex
	referer string
}

// NewFetcher initializes a session. Its cookie jar lives as long as the Fetcher.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil, useragent.Sticky)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}

	// Per-request proxy rotation: the proxy chosen for a request travels in
	// its context and the transport's Proxy func reads it back.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		if req.URL.Hostname() == "127.0.0.1" || req.URL.Hostname() == "localhost" {
			return nil, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, fingerprint.Options{
		Proxy:              proxyFunc,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: true,
		Header: http.Header{
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
			"Accept-Language": {"en-US,en;q=0.5"},
		},
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Fetcher{
		config:    cfg,
		client:    client,
		transport: transport,
	}, nil
}

// Get loads targetURL.
func (f *Fetcher) Get(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return f.do(ctx, req)
}

// Submit sends form values to action using method (GET or POST), the way a
// browser submits an HTML form.
func (f *Fetcher) Submit(ctx context.Context, method, action string, values url.Values) (*Page, error) {
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}

	var req *http.Request
	var err error
	switch method {
	case http.MethodGet:
		u, perr := url.Parse(action)
		if perr != nil {
			return nil, fmt.Errorf("invalid form action %q: %w", action, perr)
		}
		u.RawQuery = values.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	case http.MethodPost:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		return nil, fmt.Errorf("unsupported form method %q", method)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return f.do(ctx, req)
}

func (f *Fetcher) do(ctx context.Context, req *http.Request) (*Page, error) {
	start := time.Now()
	host := req.URL.Hostname()

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.Next()
	}
	if activeProxy != nil {
		ctx = context.WithValue(ctx, proxyKey, activeProxy)
	}

	req.Header.Set("User-Agent", f.config.UAPool.Next())
	f.mu.Lock()
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}
	f.mu.Unlock()

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.String()).Inc()
		}
		metrics.RecordFetch(host, 0, time.Since(start), 0)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	metrics.RecordFetch(host, resp.StatusCode, time.Since(start), len(body))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode}
	}

	f.mu.Lock()
	f.referer = resp.Request.URL.String()
	f.mu.Unlock()

	return &Page{
		URL:        resp.Request.URL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

// Close releases idle connections held by the session.
func (f *Fetcher) Close() {
	if t, ok := f.transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}
