package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/perspicacity/internal/answer"
	"github.com/FranksOps/perspicacity/internal/blocklist"
	"github.com/FranksOps/perspicacity/internal/config"
	"github.com/FranksOps/perspicacity/internal/crawler"
	"github.com/FranksOps/perspicacity/internal/extract"
	"github.com/FranksOps/perspicacity/internal/fingerprint"
	"github.com/FranksOps/perspicacity/internal/metrics"
	"github.com/FranksOps/perspicacity/internal/pipeline"
	"github.com/FranksOps/perspicacity/internal/serp"
	"github.com/FranksOps/perspicacity/internal/storage"
	"github.com/FranksOps/perspicacity/internal/storage/csvbackend"
	"github.com/FranksOps/perspicacity/internal/storage/jsonbackend"
	"github.com/FranksOps/perspicacity/internal/storage/postgres"
	"github.com/FranksOps/perspicacity/internal/storage/sqlite"
	"github.com/FranksOps/perspicacity/pkg/httpclient"
	"github.com/FranksOps/perspicacity/pkg/proxy"
	"github.com/FranksOps/perspicacity/pkg/ratelimit"
	"github.com/FranksOps/perspicacity/pkg/useragent"
)

// app holds the long-lived components built from a Config.
type app struct {
	pipeline *pipeline.Pipeline
	backend  storage.Backend
	metrics  *metrics.Server
	logger   *slog.Logger
}

// newApp wires every component. The caller must Close the result.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	profile, err := fingerprint.ParseProfile(cfg.Fingerprint)
	if err != nil {
		return nil, err
	}

	var pool *proxy.Pool
	if cfg.ProxyFile != "" {
		pool = proxy.NewPool(proxy.Config{})
		if err := pool.LoadFile(cfg.ProxyFile); err != nil {
			return nil, fmt.Errorf("load proxies: %w", err)
		}
		logger.Info("loaded proxies", "count", pool.Len())
	}

	selector := fingerprint.NewSelector(profile, fingerprint.Options{Proxy: httpclient.ProxyFromContext})
	session, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.RequestTimeout,
		MaxRedirects: cfg.MaxRedirects,
		Headers:      cfg.DefaultHeaders,
		Transport:    selector.For,
		ProxyPool:    pool,
		OnProxyFailure: func(u *url.URL) {
			metrics.RecordProxyFailure(u.String())
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	provider, err := newProvider(cfg.Search, cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	var robots *crawler.RobotsTxtAuditor
	if cfg.RespectRobots {
		robots = crawler.NewRobotsTxtAuditor(session, "", logger)
	}

	extractor := extract.New(extract.Config{
		MinContentLength: cfg.MinContentLength,
		Timeout:          cfg.RequestTimeout,
	}, session, logger)

	c := crawler.NewCrawler(crawler.Config{
		NumResults:        cfg.Crawl.NumResults,
		AttemptMultiplier: cfg.Crawl.AttemptMultiplier,
		Blocklist:         blocklist.New(cfg.BlockedDomains, logger),
		Identities:        useragent.NewPool(cfg.UserAgents),
		Pacer: ratelimit.NewPacer(ratelimit.Config{
			Min:               cfg.Pacing.Min,
			Max:               cfg.Pacing.Max,
			RequestsPerSecond: cfg.Pacing.RPS,
			Burst:             cfg.Pacing.Burst,
		}),
		Robots:  robots,
		Backend: backend,
	}, provider, extractor, logger)

	gen := answer.NewOpenAIGenerator(answer.OpenAIConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})
	var queryGen answer.Generator
	if cfg.LLM.QueryModel != "" && cfg.LLM.QueryModel != cfg.LLM.Model {
		queryGen = answer.NewOpenAIGenerator(answer.OpenAIConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.QueryModel,
		})
	}
	writer := answer.NewWriter(gen, queryGen, answer.WriterConfig{
		MinChunkWords: cfg.Text.MinChunkWords,
		Concurrency:   cfg.Text.Concurrency,
	}, logger)

	p, err := pipeline.New(pipeline.Config{
		NumResults:    cfg.Crawl.NumResults,
		MaxChunkWords: cfg.Text.MaxChunkWords,
	}, c, writer, logger)
	if err != nil {
		closeBackend(backend, logger)
		return nil, err
	}

	a := &app{pipeline: p, backend: backend, logger: logger}
	if cfg.MetricsPort > 0 {
		a.metrics = metrics.Start(cfg.MetricsPort, logger)
	}
	return a, nil
}

// Close releases the storage backend and stops the metrics server.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metrics.Stop(ctx); err != nil {
		a.logger.Warn("failed to stop metrics server", "err", err)
	}
	closeBackend(a.backend, a.logger)
}

func closeBackend(b storage.Backend, logger *slog.Logger) {
	if b == nil {
		return
	}
	if err := b.Close(); err != nil {
		logger.Warn("failed to close storage", "err", err)
	}
}

// newProvider builds the configured search provider.
func newProvider(cfg config.SearchConfig, timeout time.Duration) (serp.Provider, error) {
	switch cfg.Provider {
	case "searxng":
		return &serp.SearxNG{
			BaseURL:    cfg.SearxngURL,
			APIKey:     cfg.APIKey,
			Pause:      cfg.Pause,
			HTTPClient: &http.Client{Timeout: timeout},
		}, nil
	case "file":
		return &serp.FileProvider{Path: cfg.File}, nil
	}
	return nil, fmt.Errorf("unknown search provider %q", cfg.Provider)
}

// openBackend opens the configured storage backend. "none" yields a nil
// Backend and attempts are not recorded.
func openBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	var (
		b   storage.Backend
		err error
	)
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "sqlite":
		b, err = sqlite.New(cfg.DSN)
	case "postgres":
		b, err = postgres.New(ctx, cfg.DSN)
	case "json":
		b, err = jsonbackend.New(cfg.DSN)
	case "csv":
		b, err = csvbackend.New(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Backend, err)
	}
	return b, nil
}
