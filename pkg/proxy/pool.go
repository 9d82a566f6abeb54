package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when marking a proxy the pool does not hold.
var ErrUnknownProxy = errors.New("proxy: proxy not found in pool")

// Proxy is one upstream proxy and its health record.
type Proxy struct {
	URL           *url.URL
	Failures      int
	Successes     int
	LastUsed      time.Time
	DisabledUntil time.Time
}

func (p *Proxy) available(now time.Time) bool {
	return p.DisabledUntil.IsZero() || now.After(p.DisabledUntil)
}

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures before disabling a proxy temporarily.
	MaxFailures int
	// Cooldown is how long a proxy remains disabled after hitting MaxFailures.
	Cooldown time.Duration
}

// Pool rotates requests across proxies round-robin, skipping proxies that are
// cooling down after repeated failures. It is safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	order   []*Proxy
	byURL   map[string]*Proxy
	next    int
	cfg     Config
	nowFunc func() time.Time
}

// NewPool creates an empty pool. Zero config values get defaults of three
// failures and a five minute cooldown.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		byURL:   make(map[string]*Proxy),
		cfg:     cfg,
		nowFunc: time.Now,
	}
}

// LoadFile adds the proxies listed in path, one per line.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	defer f.Close()
	return p.Read(f)
}

// Read adds one proxy per line from r. Blank lines and lines starting with
// '#' are ignored.
func (p *Pool) Read(r io.Reader) error {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	return p.Add(urls...)
}

// Add parses proxy addresses. A missing scheme defaults to http.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*url.URL, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: %w", err)
		}
		parsed = append(parsed, u)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range parsed {
		key := u.String()
		if _, dup := p.byURL[key]; dup {
			continue
		}
		prx := &Proxy{URL: u}
		p.order = append(p.order, prx)
		p.byURL[key] = prx
	}
	return nil
}

// Next returns the next available proxy, or nil when the pool is empty or
// every proxy is cooling down.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.nowFunc()
	for i := 0; i < len(p.order); i++ {
		prx := p.order[p.next]
		p.next = (p.next + 1) % len(p.order)

		if !prx.available(now) {
			continue
		}
		if !prx.DisabledUntil.IsZero() {
			prx.DisabledUntil = time.Time{}
			prx.Failures = 0
		}
		prx.LastUsed = now
		return prx.URL
	}
	return nil
}

// MarkSuccess records a successful request through proxyURL.
func (p *Pool) MarkSuccess(proxyURL *url.URL) error {
	return p.mark(proxyURL, func(prx *Proxy) {
		prx.Successes++
		if prx.Failures > 0 {
			prx.Failures--
		}
	})
}

// MarkFailure records a failed request through proxyURL and disables the
// proxy for the cooldown once it reaches MaxFailures.
func (p *Pool) MarkFailure(proxyURL *url.URL) error {
	return p.mark(proxyURL, func(prx *Proxy) {
		prx.Failures++
		if prx.Failures >= p.cfg.MaxFailures {
			prx.DisabledUntil = p.nowFunc().Add(p.cfg.Cooldown)
		}
	})
}

func (p *Pool) mark(proxyURL *url.URL, fn func(*Proxy)) error {
	if proxyURL == nil {
		return errors.New("proxy: proxyURL cannot be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prx, ok := p.byURL[proxyURL.String()]
	if !ok {
		return ErrUnknownProxy
	}
	fn(prx)
	return nil
}

// Len returns the number of proxies in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Healthy returns how many proxies are currently usable.
func (p *Pool) Healthy() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.nowFunc()
	n := 0
	for _, prx := range p.order {
		if prx.available(now) {
			n++
		}
	}
	return n
}
