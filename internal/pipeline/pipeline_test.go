package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/perspicacity/internal/answer"
	"github.com/FranksOps/perspicacity/internal/crawler"
)

type fakeCrawler struct {
	results []crawler.Result
	query   string
	n       int
}

func (f *fakeCrawler) Crawl(_ context.Context, query string, n int) []crawler.Result {
	f.query, f.n = query, n
	return f.results
}

type fakeWriter struct {
	chunks    []string
	responses []string
}

func (f *fakeWriter) ExpandQuery(_ context.Context, q string) string {
	return "expanded " + q
}

func (f *fakeWriter) ProcessChunks(_ context.Context, chunks []string, _ string) []string {
	f.chunks = chunks
	out := make([]string, len(chunks))
	for i := range chunks {
		out[i] = "response"
	}
	return out
}

func (f *fakeWriter) Synthesize(_ context.Context, responses []string, q string) string {
	f.responses = responses
	return "final answer for " + q
}

func TestRun(t *testing.T) {
	c := &fakeCrawler{results: []crawler.Result{
		{URL: "https://a.example/", Content: "First  page.\nIt has text."},
		{URL: "https://b.example/", Content: "Second page."},
	}}
	w := &fakeWriter{}
	p, err := New(Config{NumResults: 3}, c, w, nil)
	require.NoError(t, err)

	ans, err := p.Run(context.Background(), "  what is go  ")
	require.NoError(t, err)

	assert.Equal(t, "what is go", ans.Query)
	assert.Equal(t, "expanded what is go", ans.ProcessedQuery)
	assert.Equal(t, "expanded what is go", c.query, "the crawl uses the processed query")
	assert.Equal(t, 3, c.n)
	assert.Equal(t, []string{"https://a.example/", "https://b.example/"}, ans.Sources)
	assert.Equal(t, "final answer for what is go", ans.Response)
	assert.Equal(t, []string{"First page. It has text. Second page."}, w.chunks)
	assert.Len(t, w.responses, 1)
}

func TestRun_NoResults(t *testing.T) {
	w := &fakeWriter{}
	p, err := New(Config{}, &fakeCrawler{results: []crawler.Result{}}, w, nil)
	require.NoError(t, err)

	ans, err := p.Run(context.Background(), "obscure")
	require.NoError(t, err)
	assert.Equal(t, NoResultsResponse, ans.Response)
	assert.NotNil(t, ans.Sources)
	assert.Empty(t, ans.Sources)
	assert.Nil(t, w.chunks, "no generation happens without results")
}

func TestRun_EmptyQuery(t *testing.T) {
	p, err := New(Config{}, &fakeCrawler{}, &fakeWriter{}, nil)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, nil, &fakeWriter{}, nil)
	assert.Error(t, err)
	_, err = New(Config{}, &fakeCrawler{}, nil, nil)
	assert.Error(t, err)
}

// generator answers every prompt with a fixed-length reply.
type generator struct{ prompts []string }

func (g *generator) Generate(_ context.Context, prompt string, _ answer.Params) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return "generated", nil
}

func TestRun_WithWriter(t *testing.T) {
	long := strings.Repeat("Go is a language with many words in it. ", 20)
	c := &fakeCrawler{results: []crawler.Result{{URL: "https://a.example/", Content: long}}}
	gen := &generator{}
	w := answer.NewWriter(gen, nil, answer.WriterConfig{Concurrency: 1}, nil)

	p, err := New(Config{MaxChunkWords: 50}, c, w, nil)
	require.NoError(t, err)

	ans, err := p.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "generated", ans.Response)
	assert.Equal(t, "generated", ans.ProcessedQuery)

	require.NotEmpty(t, gen.prompts)
	assert.True(t, strings.HasPrefix(gen.prompts[0], "Convert this query"))
	assert.True(t, strings.HasPrefix(gen.prompts[len(gen.prompts)-1], "Synthesize these segment responses"))
}
