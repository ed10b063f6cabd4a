// Package crawler turns a query into a bounded set of extracted pages.
package crawler

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/FranksOps/perspicacity/internal/blocklist"
	"github.com/FranksOps/perspicacity/internal/extract"
	"github.com/FranksOps/perspicacity/internal/metrics"
	"github.com/FranksOps/perspicacity/internal/serp"
	"github.com/FranksOps/perspicacity/internal/storage"
	"github.com/FranksOps/perspicacity/pkg/ratelimit"
	"github.com/FranksOps/perspicacity/pkg/useragent"
)

const (
	DefaultNumResults        = 5
	DefaultAttemptMultiplier = 2
)

// Result is one accepted page. Content is non-empty and meets the
// extractor's minimum length.
type Result struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Blocker decides whether a candidate is never fetched.
type Blocker interface {
	IsBlocked(rawURL string) bool
}

// IdentitySource supplies the client identity for the next fetch.
type IdentitySource interface {
	Next() string
}

// Waiter paces outbound fetches.
type Waiter interface {
	Wait(ctx context.Context) error
}

// PageExtractor extracts one page under a given identity.
type PageExtractor interface {
	Extract(ctx context.Context, rawURL, identity string) extract.Outcome
}

// Config wires the crawler's collaborators. Nil collaborators get defaults.
type Config struct {
	NumResults int
	// AttemptMultiplier sizes both the candidate request and the attempt
	// budget as NumResults * AttemptMultiplier.
	AttemptMultiplier int

	Blocklist  Blocker        // nil = blocklist.New(nil, logger)
	Identities IdentitySource // nil = the default browser pool
	Pacer      Waiter         // nil = uniform [1.5s, 3.5s] delay
	// Robots, when set, skips candidates disallowed by robots.txt.
	Robots  *RobotsTxtAuditor
	Backend storage.Backend
}

// Crawler drives a sequential, bounded-attempt loop over search results.
type Crawler struct {
	cfg       Config
	search    serp.Provider
	extractor PageExtractor
	logger    *slog.Logger
}

// NewCrawler creates a new Crawler.
func NewCrawler(cfg Config, search serp.Provider, extractor PageExtractor, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NumResults <= 0 {
		cfg.NumResults = DefaultNumResults
	}
	if cfg.AttemptMultiplier <= 0 {
		cfg.AttemptMultiplier = DefaultAttemptMultiplier
	}
	if cfg.Blocklist == nil {
		cfg.Blocklist = blocklist.New(nil, logger)
	}
	if cfg.Identities == nil {
		cfg.Identities = useragent.NewPool(nil)
	}
	if cfg.Pacer == nil {
		cfg.Pacer = ratelimit.NewPacer(ratelimit.Config{Min: 1500 * time.Millisecond, Max: 3500 * time.Millisecond})
	}

	return &Crawler{
		cfg:       cfg,
		search:    search,
		extractor: extractor,
		logger:    logger,
	}
}

// Crawl returns up to numResults extracted pages for query, in discovery
// order (numResults <= 0 uses the configured default). At most
// numResults * AttemptMultiplier fetches are attempted; blocked, disallowed
// and repeated candidates are skipped without consuming the budget. A search
// failure is logged and yields an empty, non-nil slice.
func (c *Crawler) Crawl(ctx context.Context, query string, numResults int) []Result {
	if numResults <= 0 {
		numResults = c.cfg.NumResults
	}
	maxAttempts := numResults * c.cfg.AttemptMultiplier
	results := make([]Result, 0, numResults)

	c.state(query, "SEARCHING")
	candidates, err := c.search.Search(ctx, query, maxAttempts)
	if err != nil {
		c.logger.Error("search failed", "query", query, "provider", c.search.Name(), "err", err)
		metrics.RecordCrawl(0, numResults)
		return results
	}
	c.logger.Debug("search returned candidates", "query", query, "count", len(candidates))

	attempted := 0
	seen := make(map[string]struct{}, len(candidates))
	for _, cand := range candidates {
		if len(results) >= numResults || attempted >= maxAttempts {
			break
		}
		if ctx.Err() != nil {
			c.logger.Info("crawl cancelled", "query", query, "err", ctx.Err())
			break
		}

		target := strings.TrimSpace(cand.URL)
		c.state(query, "FILTERING", "url", target)

		if _, dup := seen[target]; dup {
			c.skip(target, "duplicate")
			continue
		}
		seen[target] = struct{}{}

		if c.cfg.Blocklist.IsBlocked(target) {
			c.skip(target, "blocked")
			continue
		}

		identity := c.cfg.Identities.Next()

		if c.cfg.Robots != nil {
			allowed, err := c.cfg.Robots.IsAllowed(ctx, target, identity)
			if err != nil {
				c.logger.Warn("error checking robots.txt", "url", target, "err", err)
			} else if !allowed {
				c.skip(target, "robots")
				continue
			}
		}

		if err := c.cfg.Pacer.Wait(ctx); err != nil {
			c.logger.Info("pacing interrupted", "query", query, "err", err)
			break
		}

		c.state(query, "FETCHING", "url", target, "identity", identity)
		start := time.Now()
		out := c.extractor.Extract(ctx, target, identity)
		attempted++
		c.record(ctx, query, identity, out, time.Since(start))

		if out.OK() {
			results = append(results, Result{URL: target, Content: out.Content})
			c.state(query, "ACCEPTED", "url", target, "chars", utf8.RuneCountInString(out.Content))
		} else {
			c.state(query, "REJECTED", "url", target, "reason", out.Reason)
		}
	}

	c.logger.Info("crawl finished",
		"query", query,
		"results", len(results),
		"wanted", numResults,
		"attempted", attempted,
		"max_attempts", maxAttempts,
		"candidates", len(candidates),
	)
	c.state(query, "DONE")
	metrics.RecordCrawl(len(results), numResults)
	return results
}

func (c *Crawler) state(query, state string, attrs ...any) {
	c.logger.Debug("crawl state", append([]any{"query", query, "state", state}, attrs...)...)
}

func (c *Crawler) skip(target, cause string) {
	c.logger.Debug("skipping candidate", "url", target, "cause", cause)
	metrics.RecordSkip(cause)
}

// record stores and counts one fetch attempt.
func (c *Crawler) record(ctx context.Context, query, identity string, out extract.Outcome, took time.Duration) {
	a := &storage.Attempt{
		ID:            uuid.NewString(),
		Query:         query,
		URL:           out.URL,
		Identity:      identity,
		Strategy:      string(out.Strategy),
		Reason:        string(out.Reason),
		StatusCode:    out.StatusCode,
		DetectionSrc:  out.DetectionSrc,
		ContentLength: utf8.RuneCountInString(out.Content),
		Duration:      took,
		CreatedAt:     time.Now().UTC(),
	}
	if out.Err != nil {
		a.Error = out.Err.Error()
	}

	domain := ""
	if u, err := url.Parse(out.URL); err == nil {
		domain = u.Hostname()
	}
	metrics.RecordAttempt(domain, a)

	if c.cfg.Backend != nil {
		if err := c.cfg.Backend.Save(context.WithoutCancel(ctx), a); err != nil {
			c.logger.Error("failed to save attempt", "url", out.URL, "err", err)
		}
	}
}
