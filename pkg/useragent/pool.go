package useragent

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
)

// DefaultPool is a set of current desktop browser User-Agents that search
// engines serve their plain HTML result pages to.
var DefaultPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// Strategy selects how Next picks from the pool.
type Strategy string

const (
	// Sticky returns the same User-Agent for the life of the pool, like a
	// single browser session would.
	Sticky     Strategy = "sticky"
	Sequential Strategy = "sequential"
	Random     Strategy = "random"
)

// ParseStrategy maps a configuration value onto a Strategy. Empty means Sticky.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Sticky:
		return Sticky, nil
	case Sequential:
		return Sequential, nil
	case Random:
		return Random, nil
	default:
		return "", fmt.Errorf("unknown user-agent strategy %q", s)
	}
}

// Pool is a collection of User-Agents. It is safe for concurrent use.
type Pool struct {
	uas      []string
	strategy Strategy
	sticky   string
	counter  atomic.Uint64
}

// NewPool creates a pool using strategy. An empty slice falls back to
// DefaultPool.
func NewPool(uas []string, strategy Strategy) *Pool {
	if len(uas) == 0 {
		uas = DefaultPool
	}
	if strategy == "" {
		strategy = Sticky
	}
	copied := make([]string, len(uas))
	copy(copied, uas)

	p := &Pool{
		uas:      copied,
		strategy: strategy,
	}
	p.sticky = p.GetRandom()
	return p
}

// Next returns a User-Agent according to the pool's strategy.
func (p *Pool) Next() string {
	switch p.strategy {
	case Sequential:
		return p.GetSequential()
	case Random:
		return p.GetRandom()
	default:
		return p.sticky
	}
}

// GetSequential returns the next User-Agent in round-robin order.
func (p *Pool) GetSequential() string {
	if len(p.uas) == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// GetRandom returns a random User-Agent using crypto/rand.
func (p *Pool) GetRandom() string {
	if len(p.uas) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.uas))))
	if err != nil {
		return p.uas[0]
	}
	return p.uas[n.Int64()]
}

// GetAll returns a copy of the pool.
func (p *Pool) GetAll() []string {
	copied := make([]string, len(p.uas))
	copy(copied, p.uas)
	return copied
}
