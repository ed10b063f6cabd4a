package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/FranksOps/perspicacity/pkg/httpclient"
)

// Fetcher performs a GET under a client identity. *httpclient.Session
// satisfies it.
type Fetcher interface {
	Get(ctx context.Context, rawURL, identity string, opts ...httpclient.RequestOption) (*httpclient.Page, error)
}

// RobotsTxtAuditor manages robots.txt fetching and enforcement. Rules are
// fetched once per scheme and host and cached for the auditor's lifetime.
type RobotsTxtAuditor struct {
	fetcher Fetcher
	agent   string
	logger  *slog.Logger
	mu      sync.Mutex
	cache   map[string]*robotstxt.RobotsData
}

// NewRobotsTxtAuditor creates a new instance. agent is the product token
// matched against robots.txt groups ("" = "*").
func NewRobotsTxtAuditor(fetcher Fetcher, agent string, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	if agent == "" {
		agent = "*"
	}
	return &RobotsTxtAuditor{
		fetcher: fetcher,
		agent:   agent,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed reports whether targetURL may be fetched. robots.txt itself is
// requested under identity. Missing or unreachable robots.txt allows
// everything.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL, identity string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}
	if u.Host == "" {
		return false, fmt.Errorf("invalid url %q: no host", targetURL)
	}

	host := u.Scheme + "://" + u.Host

	data, err := r.getOrFetch(ctx, host, identity)
	if err != nil {
		r.logger.Debug("robots.txt fetch failed, defaulting to allow", "host", host, "err", err)
		return true, nil
	}
	if data == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.FindGroup(r.agent).Test(path), nil
}

func (r *RobotsTxtAuditor) getOrFetch(ctx context.Context, host, identity string) (*robotstxt.RobotsData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, exists := r.cache[host]; exists {
		return data, nil
	}

	page, err := r.fetcher.Get(ctx, host+"/robots.txt", identity)
	if err != nil {
		var status *httpclient.StatusError
		if errors.As(err, &status) && status.Code >= 400 && status.Code < 500 {
			r.cache[host] = nil
			return nil, nil
		}
		if ctx.Err() == nil {
			r.cache[host] = nil
		}
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}

	parsed, err := robotstxt.FromBytes(page.Body)
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.cache[host] = parsed
	return parsed, nil
}
