// Package pipeline answers a query end to end: expand, crawl, combine,
// chunk, generate and synthesize.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/FranksOps/perspicacity/internal/corpus"
	"github.com/FranksOps/perspicacity/internal/crawler"
)

// NoResultsResponse is the answer when nothing could be crawled.
const NoResultsResponse = "No accessible results found. Please try a different search query."

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("query is empty")

// Crawler collects pages for a query.
type Crawler interface {
	Crawl(ctx context.Context, query string, numResults int) []crawler.Result
}

// Writer is the text-generation side of the pipeline.
type Writer interface {
	ExpandQuery(ctx context.Context, query string) string
	ProcessChunks(ctx context.Context, chunks []string, query string) []string
	Synthesize(ctx context.Context, responses []string, query string) string
}

// Answer is the pipeline's output for one query.
type Answer struct {
	Query          string   `json:"query"`
	ProcessedQuery string   `json:"processed_query"`
	Response       string   `json:"response"`
	Sources        []string `json:"sources"`
}

// Config tunes a Pipeline.
type Config struct {
	NumResults    int // 0 = the crawler's default
	MaxChunkWords int // 0 = corpus.DefaultMaxChunkWords
}

// Pipeline orchestrates the stages for a single query at a time.
type Pipeline struct {
	cfg     Config
	crawler Crawler
	writer  Writer
	logger  *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config, c Crawler, w Writer, logger *slog.Logger) (*Pipeline, error) {
	if c == nil {
		return nil, errors.New("crawler is nil")
	}
	if w == nil {
		return nil, errors.New("writer is nil")
	}
	if cfg.MaxChunkWords <= 0 {
		cfg.MaxChunkWords = corpus.DefaultMaxChunkWords
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, crawler: c, writer: w, logger: logger}, nil
}

// Run answers query. Per-page and per-search failures never surface as
// errors; an empty crawl yields NoResultsResponse with no sources.
func (p *Pipeline) Run(ctx context.Context, query string) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, ErrEmptyQuery
	}

	ans := Answer{Query: query, Sources: []string{}}

	ans.ProcessedQuery = p.writer.ExpandQuery(ctx, query)
	p.logger.Info("searching", "query", query, "processed_query", ans.ProcessedQuery)

	results := p.crawler.Crawl(ctx, ans.ProcessedQuery, p.cfg.NumResults)
	if len(results) == 0 {
		ans.Response = NoResultsResponse
		return ans, nil
	}

	for _, r := range results {
		ans.Sources = append(ans.Sources, r.URL)
	}

	combined := corpus.Combine(results)
	chunks := corpus.Chunk(combined, p.cfg.MaxChunkWords)
	p.logger.Debug("processing content", "query", query, "pages", len(results), "chunks", len(chunks))

	responses := p.writer.ProcessChunks(ctx, chunks, query)
	ans.Response = p.writer.Synthesize(ctx, responses, query)
	return ans, nil
}
