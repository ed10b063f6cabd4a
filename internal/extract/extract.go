// Package extract turns a single URL into readable page text.
//
// Extraction runs two strategies. The structured strategy downloads the page
// (following meta-refresh redirects, with caching disabled and images
// stripped) and runs a readability pass to isolate the main article. When that
// fails or yields too little text, the raw strategy issues a plain GET, drops
// non-content elements by tag name and concatenates every remaining text node.
// Content is only returned when its trimmed length meets the configured
// minimum; every other outcome is an Outcome with a failure Reason.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FranksOps/perspicacity/internal/bypass"
	"github.com/FranksOps/perspicacity/pkg/httpclient"
)

// DefaultMinContentLength is the minimum number of characters, after
// trimming, for a page to count as having content.
const DefaultMinContentLength = 200

// DefaultMaxRefreshHops bounds how many meta-refresh redirects are followed.
const DefaultMaxRefreshHops = 3

// Strategy names the extraction path that produced an Outcome.
type Strategy string

const (
	StrategyStructured Strategy = "structured"
	StrategyRaw        Strategy = "raw"
)

// Reason classifies an Outcome.
type Reason string

const (
	ReasonOK         Reason = "ok"
	ReasonTimeout    Reason = "timeout"
	ReasonDenied     Reason = "denied"
	ReasonHTTPStatus Reason = "http_status"
	ReasonNetwork    Reason = "network"
	ReasonParse      Reason = "parse_error"
	ReasonTooShort   Reason = "too_short"
)

// Outcome is the result of extracting one URL. Content is set only when
// Reason is ReasonOK.
type Outcome struct {
	URL          string
	Content      string
	Strategy     Strategy
	Reason       Reason
	StatusCode   int
	DetectionSrc string
	Err          error
}

// OK reports whether the outcome carries accepted content.
func (o Outcome) OK() bool {
	return o.Reason == ReasonOK
}

// Fetcher performs a GET under a given client identity. *httpclient.Session
// satisfies it.
type Fetcher interface {
	Get(ctx context.Context, rawURL, identity string, opts ...httpclient.RequestOption) (*httpclient.Page, error)
}

// Config holds the extractor's thresholds.
type Config struct {
	// MinContentLength is measured in characters (0 = 200).
	MinContentLength int
	// Timeout bounds each fetch (0 = the session's default).
	Timeout time.Duration
	// MaxRefreshHops bounds meta-refresh following (0 = 3, negative = none).
	MaxRefreshHops int
	// Detectors identify bot-protection vendors on denied pages
	// (nil = bypass.DefaultDetectors()).
	Detectors []bypass.Detector
}

// Extractor fetches pages and extracts their readable text.
type Extractor struct {
	cfg     Config
	fetcher Fetcher
	logger  *slog.Logger
}

// New creates an Extractor.
func New(cfg Config, fetcher Fetcher, logger *slog.Logger) *Extractor {
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = DefaultMinContentLength
	}
	if cfg.MaxRefreshHops == 0 {
		cfg.MaxRefreshHops = DefaultMaxRefreshHops
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, fetcher: fetcher, logger: logger}
}

// MinContentLength returns the effective acceptance threshold.
func (e *Extractor) MinContentLength() int {
	return e.cfg.MinContentLength
}

// Extract fetches rawURL under identity and returns its text. It never
// returns an error; failures are reported through the Outcome.
func (e *Extractor) Extract(ctx context.Context, rawURL, identity string) Outcome {
	structured := e.structured(ctx, rawURL, identity)
	if structured.OK() {
		return structured
	}
	e.logger.Debug("structured extraction insufficient, falling back to raw markup",
		"url", rawURL, "reason", structured.Reason, "err", structured.Err)

	if ctx.Err() != nil {
		return e.report(structured)
	}

	raw := e.raw(ctx, rawURL, identity)
	if !raw.OK() && structured.Reason == ReasonDenied && raw.Reason != ReasonDenied {
		// The denial is the more telling failure; keep its status and vendor.
		e.logger.Debug("raw fallback failed after denial", "url", rawURL, "reason", raw.Reason, "err", raw.Err)
		return e.report(structured)
	}
	return e.report(raw)
}

func (e *Extractor) accept(rawURL string, strategy Strategy, status int, text string) Outcome {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n < e.cfg.MinContentLength {
		return Outcome{
			URL:        rawURL,
			Strategy:   strategy,
			Reason:     ReasonTooShort,
			StatusCode: status,
			Err:        fmt.Errorf("extracted %d characters, need %d", n, e.cfg.MinContentLength),
		}
	}
	return Outcome{URL: rawURL, Content: text, Strategy: strategy, Reason: ReasonOK, StatusCode: status}
}

// failure converts a fetch error into an Outcome.
func (e *Extractor) failure(rawURL string, strategy Strategy, page *httpclient.Page, err error) Outcome {
	o := Outcome{URL: rawURL, Strategy: strategy, Reason: classify(err), Err: err}
	if page != nil {
		o.StatusCode = page.StatusCode
		if o.Reason == ReasonDenied || page.StatusCode == http.StatusServiceUnavailable {
			o.DetectionSrc = bypass.Analyze(page, e.cfg.Detectors)
		}
	}
	return o
}

// report emits the per-URL diagnostic for a final Outcome.
func (e *Extractor) report(o Outcome) Outcome {
	switch o.Reason {
	case ReasonOK:
	case ReasonDenied:
		attrs := []any{"url", o.URL, "status", o.StatusCode, "strategy", o.Strategy}
		if o.DetectionSrc != "" {
			attrs = append(attrs, "detection_src", o.DetectionSrc)
		}
		e.logger.Warn("access denied, consider adding the domain to blocked_domains", attrs...)
	case ReasonTooShort:
		e.logger.Debug("page content below threshold", "url", o.URL, "err", o.Err)
	default:
		e.logger.Warn("page extraction failed", "url", o.URL, "reason", o.Reason, "err", o.Err)
	}
	return o
}

func classify(err error) Reason {
	var status *httpclient.StatusError
	if errors.As(err, &status) {
		if status.Code == http.StatusForbidden {
			return ReasonDenied
		}
		return ReasonHTTPStatus
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if errors.Is(err, errParse) {
		return ReasonParse
	}
	return ReasonNetwork
}

var errParse = errors.New("parse failed")

func (e *Extractor) requestOptions(extra ...httpclient.RequestOption) []httpclient.RequestOption {
	var opts []httpclient.RequestOption
	if e.cfg.Timeout > 0 {
		opts = append(opts, httpclient.WithTimeout(e.cfg.Timeout))
	}
	return append(opts, extra...)
}
