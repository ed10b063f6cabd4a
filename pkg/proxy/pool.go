package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when reporting on a proxy the pool never handed out.
var ErrUnknownProxy = errors.New("proxy: not in pool")

type endpoint struct {
	url         *url.URL
	failures    int
	successes   int
	benchedTill time.Time
}

// Pool rotates outbound requests across proxies, benching any proxy that
// keeps failing for a cooldown period.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*endpoint
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures in a row before a proxy is benched.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out.
	Cooldown time.Duration
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
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// LoadFile adds one proxy per line from path. Blank lines and lines starting
// with '#' are ignored.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy list: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read proxy list: %w", err)
	}

	return p.Add(urls...)
}

// Add parses raw proxy URLs, defaulting to http:// when no scheme is given.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*endpoint, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		if u.Host == "" {
			return fmt.Errorf("parse proxy %q: missing host", raw)
		}
		parsed = append(parsed, &endpoint{url: u})
	}

	p.mu.Lock()
	p.endpoints = append(p.endpoints, parsed...)
	p.mu.Unlock()
	return nil
}

// Len reports how many proxies the pool holds, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Next returns the next proxy that is not benched, or nil if the pool is
// empty or every proxy is cooling down.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i := 0; i < len(p.endpoints); i++ {
		ep := p.endpoints[p.next]
		p.next = (p.next + 1) % len(p.endpoints)

		if !ep.benchedTill.IsZero() {
			if now.Before(ep.benchedTill) {
				continue
			}
			ep.benchedTill = time.Time{}
			ep.failures = 0
		}
		return ep.url
	}
	return nil
}

// Report records the outcome of a request made through proxyURL. Enough
// consecutive failures bench the proxy for the cooldown period.
func (p *Pool) Report(proxyURL *url.URL, ok bool) error {
	if proxyURL == nil {
		return ErrUnknownProxy
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	target := proxyURL.String()
	for _, ep := range p.endpoints {
		if ep.url.String() != target {
			continue
		}
		if ok {
			ep.successes++
			ep.failures = 0
			return nil
		}
		ep.failures++
		if ep.failures >= p.maxFailures {
			ep.benchedTill = p.now().Add(p.cooldown)
		}
		return nil
	}
	return ErrUnknownProxy
}
