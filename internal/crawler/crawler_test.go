package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/perspicacity/internal/blocklist"
	"github.com/FranksOps/perspicacity/internal/extract"
	"github.com/FranksOps/perspicacity/internal/serp"
	"github.com/FranksOps/perspicacity/internal/storage"
	"github.com/FranksOps/perspicacity/pkg/ratelimit"
)

type fakeSearch struct {
	urls      []string
	err       error
	lastLimit int
}

func (f *fakeSearch) Name() string { return "fake" }

func (f *fakeSearch) Search(_ context.Context, _ string, limit int) ([]serp.Result, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	out := make([]serp.Result, 0, len(f.urls))
	for _, u := range f.urls {
		out = append(out, serp.Result{URL: u})
	}
	return out, nil
}

type extraction struct {
	URL      string
	Identity string
}

// fakeExtractor accepts URLs listed in good and rejects everything else.
type fakeExtractor struct {
	mu    sync.Mutex
	good  map[string]bool
	calls []extraction
}

func (f *fakeExtractor) Extract(_ context.Context, rawURL, identity string) extract.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, extraction{URL: rawURL, Identity: identity})
	if f.good[rawURL] || f.good["*"] {
		return extract.Outcome{URL: rawURL, Content: strings.Repeat("a", 250), Strategy: extract.StrategyStructured, Reason: extract.ReasonOK, StatusCode: 200}
	}
	return extract.Outcome{URL: rawURL, Strategy: extract.StrategyRaw, Reason: extract.ReasonTooShort, StatusCode: 200, Err: errors.New("extracted 3 characters, need 200")}
}

func (f *fakeExtractor) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.URL
	}
	return out
}

type countingIdentities struct{ n int }

func (c *countingIdentities) Next() string {
	c.n++
	return fmt.Sprintf("identity-%d", c.n)
}

type memoryBackend struct {
	mu       sync.Mutex
	attempts []*storage.Attempt
	err      error
}

func (m *memoryBackend) Save(_ context.Context, a *storage.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *memoryBackend) Query(context.Context, storage.Filter) ([]*storage.Attempt, error) {
	return m.attempts, nil
}

func (m *memoryBackend) Close() error { return nil }

func instantPacer() *ratelimit.Pacer {
	return ratelimit.NewPacer(ratelimit.Config{})
}

func candidates(n int, format string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf(format, i)
	}
	return out
}

func TestCrawl_BlockedSkippedAndStopsAtQuota(t *testing.T) {
	search := &fakeSearch{urls: []string{
		"http://blocked-example-linkedin.com/x",
		"http://ok.example.com/a",
		"http://ok.example.com/b",
	}}
	ex := &fakeExtractor{good: map[string]bool{"http://ok.example.com/a": true, "http://ok.example.com/b": true}}
	c := NewCrawler(Config{Pacer: instantPacer()}, search, ex, nil)

	results := c.Crawl(context.Background(), "q", 1)

	require.Len(t, results, 1)
	assert.Equal(t, "http://ok.example.com/a", results[0].URL)
	assert.Equal(t, []string{"http://ok.example.com/a"}, ex.urls(), "blocked url is never fetched and the third is never attempted")
	assert.Equal(t, 2, search.lastLimit, "candidates requested are 2 x num_results")
}

func TestCrawl_DefaultBounds(t *testing.T) {
	t.Run("all fail", func(t *testing.T) {
		search := &fakeSearch{urls: candidates(30, "https://site%d.example/")}
		ex := &fakeExtractor{}
		c := NewCrawler(Config{Pacer: instantPacer()}, search, ex, nil)

		results := c.Crawl(context.Background(), "q", 5)
		assert.Empty(t, results)
		assert.NotNil(t, results)
		assert.Len(t, ex.calls, 10)
		assert.Equal(t, 10, search.lastLimit)
	})

	t.Run("all succeed", func(t *testing.T) {
		search := &fakeSearch{urls: candidates(30, "https://site%d.example/")}
		ex := &fakeExtractor{good: map[string]bool{"*": true}}
		c := NewCrawler(Config{Pacer: instantPacer()}, search, ex, nil)

		results := c.Crawl(context.Background(), "q", 5)
		assert.Len(t, results, 5)
		assert.Len(t, ex.calls, 5)
		for i, r := range results {
			assert.Equal(t, fmt.Sprintf("https://site%d.example/", i), r.URL, "discovery order")
		}
	})

	t.Run("default num results", func(t *testing.T) {
		search := &fakeSearch{urls: candidates(30, "https://site%d.example/")}
		ex := &fakeExtractor{good: map[string]bool{"*": true}}
		c := NewCrawler(Config{Pacer: instantPacer()}, search, ex, nil)

		assert.Len(t, c.Crawl(context.Background(), "q", 0), DefaultNumResults)
	})
}

func TestCrawl_BlockedDoNotConsumeBudget(t *testing.T) {
	urls := append(candidates(8, "https://www.facebook.com/p%d"), candidates(12, "https://site%d.example/")...)
	search := &fakeSearch{urls: urls}
	ex := &fakeExtractor{}
	c := NewCrawler(Config{Pacer: instantPacer()}, search, ex, nil)

	c.Crawl(context.Background(), "q", 5)

	calls := ex.urls()
	require.Len(t, calls, 10)
	for _, u := range calls {
		assert.NotContains(t, u, "facebook.com")
	}
}

func TestCrawl_PartialResults(t *testing.T) {
	search := &fakeSearch{urls: candidates(4, "https://site%d.example/")}
	ex := &fakeExtractor{good: map[string]bool{"https://site2.example/": true}}
	c := NewCrawler(Config{Pacer: instantPacer()}, search, ex, nil)

	results := c.Crawl(context.Background(), "q", 3)
	require.Len(t, results, 1)
	assert.Equal(t, "https://site2.example/", results[0].URL)
	assert.Len(t, ex.calls, 4, "candidate list exhausted before the budget")
}

func TestCrawl_SearchFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	search := &fakeSearch{err: errors.New("provider unreachable")}
	ex := &fakeExtractor{}
	c := NewCrawler(Config{Pacer: instantPacer()}, search, ex, logger)

	results := c.Crawl(context.Background(), "q", 5)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Empty(t, ex.calls)
	assert.Contains(t, logs.String(), "search failed")
	assert.Contains(t, logs.String(), "provider unreachable")
}

func TestCrawl_ZeroCandidates(t *testing.T) {
	c := NewCrawler(Config{Pacer: instantPacer()}, &fakeSearch{}, &fakeExtractor{}, nil)
	results := c.Crawl(context.Background(), "q", 5)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestCrawl_DuplicatesSkipped(t *testing.T) {
	search := &fakeSearch{urls: []string{"https://a.example/", " https://a.example/ ", "https://b.example/"}}
	ex := &fakeExtractor{}
	c := NewCrawler(Config{Pacer: instantPacer()}, search, ex, nil)

	c.Crawl(context.Background(), "q", 5)
	assert.Equal(t, []string{"https://a.example/", "https://b.example/"}, ex.urls())
}

func TestCrawl_IdentityPerFetch(t *testing.T) {
	search := &fakeSearch{urls: append([]string{"https://twitter.com/x"}, candidates(3, "https://site%d.example/")...)}
	ex := &fakeExtractor{}
	ids := &countingIdentities{}
	c := NewCrawler(Config{Pacer: instantPacer(), Identities: ids}, search, ex, nil)

	c.Crawl(context.Background(), "q", 5)

	require.Len(t, ex.calls, 3)
	assert.Equal(t, 3, ids.n, "no identity is drawn for blocked candidates")
	assert.Equal(t, "identity-1", ex.calls[0].Identity)
	assert.Equal(t, "identity-3", ex.calls[2].Identity)
}

func TestCrawl_CustomBlocklistAndMultiplier(t *testing.T) {
	search := &fakeSearch{urls: append([]string{"https://linkedin.com/in/x"}, candidates(10, "https://site%d.example/")...)}
	ex := &fakeExtractor{}
	c := NewCrawler(Config{
		Pacer:             instantPacer(),
		Blocklist:         blocklist.New([]string{}, nil),
		AttemptMultiplier: 3,
	}, search, ex, nil)

	c.Crawl(context.Background(), "q", 2)
	calls := ex.urls()
	require.Len(t, calls, 6)
	assert.Equal(t, "https://linkedin.com/in/x", calls[0], "an empty blocklist blocks nothing")
	assert.Equal(t, 6, search.lastLimit)
}

func TestCrawl_PacesEveryFetch(t *testing.T) {
	var waits int
	pacer := ratelimit.NewPacer(ratelimit.Config{Min: 1500 * time.Millisecond, Max: 3500 * time.Millisecond}).WithSleep(func(context.Context, time.Duration) error {
		waits++
		return nil
	})
	search := &fakeSearch{urls: append([]string{"https://instagram.com/x"}, candidates(3, "https://site%d.example/")...)}
	ex := &fakeExtractor{}
	c := NewCrawler(Config{Pacer: pacer}, search, ex, nil)

	c.Crawl(context.Background(), "q", 5)
	assert.Equal(t, 3, waits)
}

func TestCrawl_CancelledDuringPacing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pacer := ratelimit.NewPacer(ratelimit.Config{Min: time.Second, Max: time.Second}).WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})
	search := &fakeSearch{urls: candidates(5, "https://site%d.example/")}
	ex := &fakeExtractor{good: map[string]bool{"*": true}}
	c := NewCrawler(Config{Pacer: pacer}, search, ex, nil)

	results := c.Crawl(ctx, "q", 5)
	assert.Empty(t, results)
	assert.Empty(t, ex.calls)
}

func TestCrawl_RecordsAttempts(t *testing.T) {
	backend := &memoryBackend{}
	search := &fakeSearch{urls: []string{"https://pitchbook.com/x", "https://bad.example/", "https://good.example/"}}
	ex := &fakeExtractor{good: map[string]bool{"https://good.example/": true}}
	c := NewCrawler(Config{Pacer: instantPacer(), Backend: backend}, search, ex, nil)

	c.Crawl(context.Background(), "what is go", 5)

	require.Len(t, backend.attempts, 2, "blocked candidates are not attempts")
	bad, good := backend.attempts[0], backend.attempts[1]

	assert.Equal(t, "what is go", bad.Query)
	assert.Equal(t, "https://bad.example/", bad.URL)
	assert.Equal(t, "too_short", bad.Reason)
	assert.Equal(t, "raw", bad.Strategy)
	assert.NotEmpty(t, bad.Error)
	assert.NotEmpty(t, bad.ID)
	assert.NotEmpty(t, bad.Identity)

	assert.True(t, good.Accepted())
	assert.Equal(t, 250, good.ContentLength)
	assert.NotEqual(t, bad.ID, good.ID)
}

func TestCrawl_BackendErrorsDoNotAbort(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	backend := &memoryBackend{err: errors.New("disk full")}
	search := &fakeSearch{urls: candidates(2, "https://site%d.example/")}
	ex := &fakeExtractor{good: map[string]bool{"*": true}}
	c := NewCrawler(Config{Pacer: instantPacer(), Backend: backend}, search, ex, logger)

	assert.Len(t, c.Crawl(context.Background(), "q", 2), 2)
	assert.Contains(t, logs.String(), "failed to save attempt")
}
