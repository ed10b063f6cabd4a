// Package config loads runtime settings from defaults, an optional YAML file,
// PERSPICACITY_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/FranksOps/perspicacity/internal/blocklist"
	"github.com/FranksOps/perspicacity/internal/fingerprint"
	"github.com/FranksOps/perspicacity/pkg/httpclient"
	"github.com/FranksOps/perspicacity/pkg/useragent"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "PERSPICACITY"

// Config is the full runtime configuration.
type Config struct {
	MinContentLength int               `mapstructure:"min_content_length"`
	RequestTimeout   time.Duration     `mapstructure:"request_timeout"`
	MaxRedirects     int               `mapstructure:"max_redirects"`
	BlockedDomains   []string          `mapstructure:"blocked_domains"`
	UserAgents       []string          `mapstructure:"user_agents"`
	DefaultHeaders   map[string]string `mapstructure:"default_headers"`
	Fingerprint      string            `mapstructure:"fingerprint"`
	ProxyFile        string            `mapstructure:"proxy_file"`
	RespectRobots    bool              `mapstructure:"respect_robots"`
	MetricsPort      int               `mapstructure:"metrics_port"`

	Pacing  PacingConfig  `mapstructure:"pacing"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Text    TextConfig    `mapstructure:"text"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Search  SearchConfig  `mapstructure:"search"`
	Storage StorageConfig `mapstructure:"storage"`
}

type PacingConfig struct {
	Min   time.Duration `mapstructure:"min"`
	Max   time.Duration `mapstructure:"max"`
	RPS   float64       `mapstructure:"rps"`
	Burst int           `mapstructure:"burst"`
}

type CrawlConfig struct {
	NumResults        int `mapstructure:"num_results"`
	AttemptMultiplier int `mapstructure:"attempt_multiplier"`
}

type TextConfig struct {
	MaxChunkWords int `mapstructure:"max_chunk_words"`
	MinChunkWords int `mapstructure:"min_chunk_words"`
	Concurrency   int `mapstructure:"concurrency"`
}

type LLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	// QueryModel handles query expansion ("" = Model).
	QueryModel string `mapstructure:"query_model"`
}

type SearchConfig struct {
	Provider   string        `mapstructure:"provider"` // searxng | file
	SearxngURL string        `mapstructure:"searxng_url"`
	APIKey     string        `mapstructure:"api_key"`
	File       string        `mapstructure:"file"`
	Pause      time.Duration `mapstructure:"pause"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"` // none | sqlite | postgres | json | csv
	DSN     string `mapstructure:"dsn"`
}

// SetDefaults registers every key with its default value. Keys must be
// registered for environment overrides to apply.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("min_content_length", 200)
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("max_redirects", 10)
	v.SetDefault("blocked_domains", blocklist.DefaultDomains)
	v.SetDefault("user_agents", useragent.DefaultPool)
	v.SetDefault("default_headers", httpclient.DefaultHeaders)
	v.SetDefault("fingerprint", string(fingerprint.ProfileGo))
	v.SetDefault("proxy_file", "")
	v.SetDefault("respect_robots", false)
	v.SetDefault("metrics_port", 0)

	v.SetDefault("pacing.min", 1500*time.Millisecond)
	v.SetDefault("pacing.max", 3500*time.Millisecond)
	v.SetDefault("pacing.rps", 0.0)
	v.SetDefault("pacing.burst", 1)

	v.SetDefault("crawl.num_results", 5)
	v.SetDefault("crawl.attempt_multiplier", 2)

	v.SetDefault("text.max_chunk_words", 450)
	v.SetDefault("text.min_chunk_words", 30)
	v.SetDefault("text.concurrency", 2)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.query_model", "")

	v.SetDefault("search.provider", "searxng")
	v.SetDefault("search.searxng_url", "http://localhost:8888")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.file", "")
	v.SetDefault("search.pause", 2*time.Second)

	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.dsn", "")
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"metrics-port":   "metrics_port",
	"num-results":    "crawl.num_results",
	"storage":        "storage.backend",
	"dsn":            "storage.dsn",
	"searxng-url":    "search.searxng_url",
	"search-file":    "search.file",
	"fingerprint":    "fingerprint",
	"proxy-file":     "proxy_file",
	"respect-robots": "respect_robots",
	"model":          "llm.model",
}

// Load reads configuration. path may be empty, in which case no file is read.
// flags may be nil; flags named in flagKeys that are present override every
// other source once explicitly set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.MinContentLength <= 0 {
		errs = append(errs, errors.New("min_content_length must be > 0"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be > 0"))
	}
	if c.Pacing.Min < 0 || c.Pacing.Max < 0 {
		errs = append(errs, errors.New("pacing bounds must be >= 0"))
	}
	if c.Pacing.Min > c.Pacing.Max {
		errs = append(errs, fmt.Errorf("pacing.min (%s) must not exceed pacing.max (%s)", c.Pacing.Min, c.Pacing.Max))
	}
	if c.Pacing.RPS < 0 {
		errs = append(errs, errors.New("pacing.rps must be >= 0"))
	}
	if c.Crawl.NumResults < 1 {
		errs = append(errs, errors.New("crawl.num_results must be >= 1"))
	}
	if c.Crawl.AttemptMultiplier < 1 {
		errs = append(errs, errors.New("crawl.attempt_multiplier must be >= 1"))
	}
	if c.Text.MaxChunkWords <= 0 {
		errs = append(errs, errors.New("text.max_chunk_words must be > 0"))
	}
	if c.Text.MinChunkWords <= 0 {
		errs = append(errs, errors.New("text.min_chunk_words must be > 0"))
	}
	if c.Text.Concurrency <= 0 {
		errs = append(errs, errors.New("text.concurrency must be > 0"))
	}
	if _, err := fingerprint.ParseProfile(c.Fingerprint); err != nil {
		errs = append(errs, err)
	}

	switch c.Search.Provider {
	case "searxng":
		if c.Search.SearxngURL == "" {
			errs = append(errs, errors.New("search.searxng_url must be set for the searxng provider"))
		}
	case "file":
		if c.Search.File == "" {
			errs = append(errs, errors.New("search.file must be set for the file provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown search.provider %q", c.Search.Provider))
	}

	switch c.Storage.Backend {
	case "", "none":
	case "sqlite", "postgres", "json", "csv":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn must be set for the %s backend", c.Storage.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
