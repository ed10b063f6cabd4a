package serp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/perspicacity/pkg/ratelimit"
)

// DefaultPause is the delay between consecutive result pages.
const DefaultPause = 2 * time.Second

// maxPages bounds pagination when an instance keeps returning duplicates.
const maxPages = 5

// ErrMissingBaseURL is returned when a SearxNG provider has no instance URL.
var ErrMissingBaseURL = errors.New("missing searxng base url")

// SearxNG implements Provider against a SearxNG instance's JSON /search
// endpoint. Results are collected page by page until limit is reached.
type SearxNG struct {
	BaseURL    string
	APIKey     string // optional
	UserAgent  string // optional
	Pause      time.Duration
	HTTPClient *http.Client

	sleep ratelimit.SleepFunc
}

func (s *SearxNG) Name() string { return "searxng" }

func (s *SearxNG) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if s.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if limit <= 0 {
		limit = 10
	}

	pause := s.Pause
	if pause <= 0 {
		pause = DefaultPause
	}
	sleep := s.sleep
	if sleep == nil {
		sleep = ratelimit.Sleep
	}

	seen := make(map[string]struct{}, limit)
	out := make([]Result, 0, limit)
	for page := 1; page <= maxPages && len(out) < limit; page++ {
		if page > 1 {
			if err := sleep(ctx, pause); err != nil {
				return out, err
			}
		}

		hits, err := s.fetchPage(ctx, query, page)
		if err != nil {
			if page > 1 && len(out) > 0 {
				// Later pages are best effort; keep what we have.
				return out, nil
			}
			return nil, err
		}

		added := 0
		for _, r := range hits {
			if r.URL == "" {
				continue
			}
			if _, dup := seen[r.URL]; dup {
				continue
			}
			seen[r.URL] = struct{}{}
			out = append(out, r)
			added++
			if len(out) >= limit {
				break
			}
		}
		if added == 0 {
			break
		}
	}
	return out, nil
}

func (s *SearxNG) fetchPage(ctx context.Context, query string, page int) ([]Result, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse searxng base url: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/search") {
		u.Path = strings.TrimRight(u.Path, "/") + "/search"
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("language", "auto")
	q.Set("safesearch", "1")
	q.Set("categories", "general")
	if page > 1 {
		q.Set("pageno", strconv.Itoa(page))
	}
	if s.APIKey != "" {
		q.Set("apikey", s.APIKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build searxng request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	hc := s.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("searxng page %d: status %d", page, resp.StatusCode)
	}

	var sr searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode searxng page %d: %w", page, err)
	}

	out := make([]Result, 0, len(sr.Results))
	for _, r := range sr.Results {
		out = append(out, Result{
			Title:   strings.TrimSpace(r.Title),
			URL:     strings.TrimSpace(r.URL),
			Snippet: strings.TrimSpace(r.Content),
			Source:  s.Name(),
		})
	}
	return out, nil
}

type searxResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}
