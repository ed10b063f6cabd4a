package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/perspicacity/internal/storage"
)

func scrape(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(body)
}

func TestRecordAttempt(t *testing.T) {
	RecordAttempt("example.com", &storage.Attempt{
		Reason:        "ok",
		Strategy:      "structured",
		ContentLength: 420,
		Duration:      time.Second,
	})
	RecordAttempt("blocked.example", &storage.Attempt{
		Reason:       "denied",
		Strategy:     "raw",
		DetectionSrc: "Cloudflare",
		Duration:     200 * time.Millisecond,
	})
	RecordAttempt("ignored.example", nil)

	output := scrape(t)

	if !strings.Contains(output, `perspicacity_fetch_attempts_total{detection_src="",domain="example.com",reason="ok",strategy="structured"} 1`) {
		t.Errorf("expected ok attempt counter for example.com")
	}
	if !strings.Contains(output, `perspicacity_fetch_attempts_total{detection_src="Cloudflare",domain="blocked.example",reason="denied",strategy="raw"} 1`) {
		t.Errorf("expected denied attempt counter for blocked.example")
	}
	if !strings.Contains(output, "perspicacity_fetch_duration_seconds_bucket") {
		t.Errorf("expected perspicacity_fetch_duration_seconds metric")
	}
	if !strings.Contains(output, `perspicacity_content_runes_total{domain="example.com"} 420`) {
		t.Errorf("expected content counter for example.com")
	}
	if strings.Contains(output, `perspicacity_content_runes_total{domain="blocked.example"}`) {
		t.Errorf("rejected attempts must not count content")
	}
	if strings.Contains(output, "ignored.example") {
		t.Errorf("nil attempt must not be recorded")
	}
}

func TestRecordSkipAndCrawl(t *testing.T) {
	RecordSkip("blocked")
	RecordSkip("blocked")
	RecordCrawl(0, 5)
	RecordCrawl(3, 5)
	RecordCrawl(5, 5)
	RecordProxyFailure("http://proxy.local:8080")

	output := scrape(t)

	for _, want := range []string{
		`perspicacity_candidates_skipped_total{cause="blocked"} 2`,
		`perspicacity_crawls_total{outcome="empty"} 1`,
		`perspicacity_crawls_total{outcome="partial"} 1`,
		`perspicacity_crawls_total{outcome="filled"} 1`,
		`perspicacity_proxy_failures_total{proxy_url="http://proxy.local:8080"} 1`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestMetricsServer(t *testing.T) {
	srv := Start(18888, nil)
	defer srv.Stop(context.Background())

	var resp *http.Response
	var err error
	for i := 0; i < 20; i++ {
		resp, err = http.Get("http://localhost:18888/metrics")
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to reach metrics server: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestStopNil(t *testing.T) {
	var s *Server
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("expected nil server stop to succeed, got %v", err)
	}
}
