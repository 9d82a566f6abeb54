package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	// UseCookieJar keeps cookies between requests, which search engines
	// expect from a browser that loaded the home page before searching.
	UseCookieJar bool
	// Header is applied to every request that does not already set the key.
	Header http.Header
	// Provide a custom Transport, e.g. for proxies or uTLS fingerprinting
	Transport http.RoundTripper
}

// Client wraps a standard http.Client with a redirect policy, an optional
// cookie jar and default headers.
type Client struct {
	*http.Client
	header http.Header
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &http.Client{
		Timeout: cfg.Timeout,
	}

	if cfg.MaxRedirects >= 0 {
		limit := cfg.MaxRedirects
		if limit == 0 {
			limit = 10
		}
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("httpclient: stopped after %d redirects", limit)
			}
			return nil
		}
	} else {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	return &Client{Client: c, header: cfg.Header.Clone()}, nil
}

// Do executes an HTTP request under ctx, which controls cancellation
// independently of the client timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: context cannot be nil")
	}

	reqWithCtx := req.Clone(ctx)
	for k, vals := range c.header {
		if reqWithCtx.Header.Get(k) != "" {
			continue
		}
		for _, v := range vals {
			reqWithCtx.Header.Add(k, v)
		}
	}

	resp, err := c.Client.Do(reqWithCtx)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}
