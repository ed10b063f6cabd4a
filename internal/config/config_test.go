package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/perspicacity/internal/blocklist"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.MinContentLength)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Pacing.Min)
	assert.Equal(t, 3500*time.Millisecond, cfg.Pacing.Max)
	assert.Zero(t, cfg.Pacing.RPS)
	assert.Equal(t, 5, cfg.Crawl.NumResults)
	assert.Equal(t, 2, cfg.Crawl.AttemptMultiplier)
	assert.Equal(t, 450, cfg.Text.MaxChunkWords)
	assert.Equal(t, 30, cfg.Text.MinChunkWords)
	assert.Equal(t, 2*time.Second, cfg.Search.Pause)
	assert.Equal(t, "searxng", cfg.Search.Provider)
	assert.Equal(t, "none", cfg.Storage.Backend)
	assert.Equal(t, "go", cfg.Fingerprint)
	assert.ElementsMatch(t, blocklist.DefaultDomains, cfg.BlockedDomains)
	assert.GreaterOrEqual(t, len(cfg.UserAgents), 4)
	assert.Len(t, cfg.DefaultHeaders, 4)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perspicacity.yaml")
	yaml := `
min_content_length: 500
blocked_domains:
  - example.org
pacing:
  min: 100ms
  max: 250ms
crawl:
  num_results: 3
search:
  provider: file
  file: results.json
storage:
  backend: sqlite
  dsn: attempts.db
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.MinContentLength)
	assert.Equal(t, []string{"example.org"}, cfg.BlockedDomains)
	assert.Equal(t, 100*time.Millisecond, cfg.Pacing.Min)
	assert.Equal(t, 250*time.Millisecond, cfg.Pacing.Max)
	assert.Equal(t, 3, cfg.Crawl.NumResults)
	assert.Equal(t, 2, cfg.Crawl.AttemptMultiplier, "unset keys keep their defaults")
	assert.Equal(t, "file", cfg.Search.Provider)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PERSPICACITY_MIN_CONTENT_LENGTH", "300")
	t.Setenv("PERSPICACITY_CRAWL_NUM_RESULTS", "7")
	t.Setenv("PERSPICACITY_PACING_MAX", "5s")
	t.Setenv("PERSPICACITY_LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.MinContentLength)
	assert.Equal(t, 7, cfg.Crawl.NumResults)
	assert.Equal(t, 5*time.Second, cfg.Pacing.Max)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoad_Flags(t *testing.T) {
	t.Setenv("PERSPICACITY_CRAWL_NUM_RESULTS", "7")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("num-results", 5, "")
	flags.Int("metrics-port", 0, "")
	require.NoError(t, flags.Parse([]string{"--num-results", "9"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Crawl.NumResults, "explicit flags beat the environment")
	assert.Equal(t, 0, cfg.MetricsPort)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("", nil)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"pacing inverted", func(c *Config) { c.Pacing.Min, c.Pacing.Max = 2*time.Second, time.Second }},
		{"zero threshold", func(c *Config) { c.MinContentLength = 0 }},
		{"no results", func(c *Config) { c.Crawl.NumResults = 0 }},
		{"zero multiplier", func(c *Config) { c.Crawl.AttemptMultiplier = 0 }},
		{"zero chunk size", func(c *Config) { c.Text.MaxChunkWords = 0 }},
		{"zero chunk minimum", func(c *Config) { c.Text.MinChunkWords = 0 }},
		{"zero generation concurrency", func(c *Config) { c.Text.Concurrency = 0 }},
		{"unknown fingerprint", func(c *Config) { c.Fingerprint = "netscape" }},
		{"unknown provider", func(c *Config) { c.Search.Provider = "altavista" }},
		{"file provider without file", func(c *Config) { c.Search.Provider = "file"; c.Search.File = "" }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }},
		{"backend without dsn", func(c *Config) { c.Storage.Backend = "json"; c.Storage.DSN = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, valid().Validate())
}
