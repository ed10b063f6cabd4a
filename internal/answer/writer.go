package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	// NoContentResponse is returned by Synthesize when there is nothing to
	// synthesize.
	NoContentResponse = "Unable to generate response from the available content."
	// SynthesisErrorResponse is returned by Synthesize when generation fails.
	SynthesisErrorResponse = "Error generating final response."

	DefaultMinChunkWords = 30
	DefaultConcurrency   = 2
)

var (
	QueryParams = Params{MinTokens: 20, MaxTokens: 100}
	ChunkParams = Params{MinTokens: 50, MaxTokens: 250, Temperature: 0.7, TopK: 50, Beams: 4, Sample: true}
	FinalParams = Params{MinTokens: 100, MaxTokens: 400, Temperature: 0.7, TopK: 50, Beams: 4, Sample: true}
)

// WriterConfig tunes a Writer.
type WriterConfig struct {
	// MinChunkWords skips chunks shorter than this (0 = 30).
	MinChunkWords int
	// Concurrency bounds in-flight chunk generations (0 = 2).
	Concurrency int
}

// Writer applies the fixed prompt templates for query expansion, per-chunk
// transformation and final synthesis.
type Writer struct {
	gen      Generator
	queryGen Generator
	cfg      WriterConfig
	logger   *slog.Logger
}

// NewWriter creates a Writer. queryGen handles query expansion and defaults
// to gen when nil.
func NewWriter(gen, queryGen Generator, cfg WriterConfig, logger *slog.Logger) *Writer {
	if queryGen == nil {
		queryGen = gen
	}
	if cfg.MinChunkWords <= 0 {
		cfg.MinChunkWords = DefaultMinChunkWords
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{gen: gen, queryGen: queryGen, cfg: cfg, logger: logger}
}

// ExpandQuery rewrites query into a more detailed search query. The original
// query is returned if generation fails or comes back empty.
func (w *Writer) ExpandQuery(ctx context.Context, query string) string {
	prompt := "Convert this query into a detailed search query: " + query
	out, err := w.queryGen.Generate(ctx, prompt, QueryParams)
	if err != nil {
		w.logger.Warn("query expansion failed, using original query", "query", query, "err", err)
		return query
	}
	if out = strings.TrimSpace(out); out == "" {
		return query
	}
	return out
}

// ProcessChunk transforms one chunk to address query. Chunks under the
// minimum word count are skipped and generation errors are logged; both
// report false.
func (w *Writer) ProcessChunk(ctx context.Context, chunk, query string) (string, bool) {
	if len(strings.Fields(chunk)) < w.cfg.MinChunkWords {
		return "", false
	}

	prompt := fmt.Sprintf("Transform this text segment to address: \"%s\"\nText: %s\nProvide a clear and relevant response.", query, chunk)
	out, err := w.gen.Generate(ctx, prompt, ChunkParams)
	if err != nil {
		w.logger.Warn("error processing chunk", "query", query, "err", err)
		return "", false
	}
	if out = strings.TrimSpace(out); out == "" {
		return "", false
	}
	return out, true
}

// ProcessChunks runs ProcessChunk over chunks with bounded concurrency and
// returns the produced responses in chunk order.
func (w *Writer) ProcessChunks(ctx context.Context, chunks []string, query string) []string {
	slots := make([]string, len(chunks))
	ok := make([]bool, len(chunks))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			slots[i], ok[i] = w.ProcessChunk(gCtx, chunk, query)
			return nil
		})
	}
	_ = g.Wait()

	responses := make([]string, 0, len(chunks))
	for i := range chunks {
		if ok[i] {
			responses = append(responses, slots[i])
		}
	}
	return responses
}

// Synthesize combines chunk responses into the final answer.
func (w *Writer) Synthesize(ctx context.Context, responses []string, query string) string {
	if len(responses) == 0 {
		return NoContentResponse
	}

	prompt := fmt.Sprintf("Synthesize these segment responses into a coherent answer for: \"%s\"\nResponses: %s", query, strings.Join(responses, " "))
	out, err := w.gen.Generate(ctx, prompt, FinalParams)
	if err != nil {
		w.logger.Error("error in final synthesis", "query", query, "err", err)
		return SynthesisErrorResponse
	}
	if out = strings.TrimSpace(out); out == "" {
		return SynthesisErrorResponse
	}
	return out
}
