package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/FranksOps/perspicacity/pkg/proxy"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// DefaultHeaders are sent with every request unless overridden.
var DefaultHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 10 << 20

// TransportFunc returns the RoundTripper to use for a request sent under the
// given identity. Implementations should cache transports so connection
// pools survive across requests.
type TransportFunc func(identity string) (http.RoundTripper, error)

// Config defines the setup for a Session.
type Config struct {
	// Timeout bounds each request unless overridden with WithTimeout (0 = 10s).
	Timeout      time.Duration
	MaxRedirects int
	// Headers replace DefaultHeaders when non-nil.
	Headers      map[string]string
	MaxBodyBytes int64
	Transport    TransportFunc
	ProxyPool    *proxy.Pool
	// OnProxyFailure is called when a request through a pooled proxy fails.
	OnProxyFailure func(proxyURL *url.URL)
}

// Session is a long-lived client: cookies, connection pools and default
// headers persist across requests. The client identity is not session state;
// it is passed to every call.
type Session struct {
	cfg     Config
	jar     http.CookieJar
	headers map[string]string
}

// Page is a fetched response with its body already read and decoded to UTF-8.
type Page struct {
	// URL is the final URL after redirects.
	URL        *url.URL
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// ErrUnsupportedScheme is returned for URLs that are not http or https.
var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// New creates a Session based on the provided configuration.
func New(cfg Config) (*Session, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 10
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Transport == nil {
		shared := http.DefaultTransport.(*http.Transport).Clone()
		shared.Proxy = ProxyFromContext
		cfg.Transport = func(string) (http.RoundTripper, error) { return shared, nil }
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	headers := cfg.Headers
	if headers == nil {
		headers = DefaultHeaders
	}
	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}

	return &Session{cfg: cfg, jar: jar, headers: copied}, nil
}

type requestOptions struct {
	timeout time.Duration
	headers map[string]string
}

// RequestOption tweaks a single request.
type RequestOption func(*requestOptions)

// WithTimeout overrides the session timeout for one request.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHeader adds or overrides a header for one request.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

// Get fetches rawURL presenting identity as the User-Agent. A non-2xx
// response returns both the Page and a *StatusError so callers can inspect
// block pages.
func (s *Session) Get(ctx context.Context, rawURL, identity string, opts ...RequestOption) (*Page, error) {
	if ctx == nil {
		return nil, errors.New("context cannot be nil")
	}

	ro := requestOptions{timeout: s.cfg.Timeout}
	for _, opt := range opts {
		opt(&ro)
	}

	ctx, cancel := context.WithTimeout(ctx, ro.timeout)
	defer cancel()

	var activeProxy *url.URL
	if s.cfg.ProxyPool != nil {
		if activeProxy = s.cfg.ProxyPool.Next(); activeProxy != nil {
			ctx = context.WithValue(ctx, proxyKey, activeProxy)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if scheme := strings.ToLower(req.URL.Scheme); scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, req.URL.Scheme)
	}

	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	if identity != "" {
		req.Header.Set("User-Agent", identity)
	}
	for k, v := range ro.headers {
		req.Header.Set(k, v)
	}

	client, err := s.client(identity)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		if activeProxy != nil {
			_ = s.cfg.ProxyPool.Report(activeProxy, false)
			if s.cfg.OnProxyFailure != nil {
				s.cfg.OnProxyFailure(activeProxy)
			}
		}
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = s.cfg.ProxyPool.Report(activeProxy, true)
	}

	body, err := readBody(resp, s.cfg.MaxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", rawURL, err)
	}

	page := &Page{
		URL:        resp.Request.URL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return page, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}
	return page, nil
}

func (s *Session) client(identity string) (*http.Client, error) {
	rt, err := s.cfg.Transport(identity)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	maxRedirects := s.cfg.MaxRedirects
	c := &http.Client{
		Transport: rt,
		Jar:       s.jar,
	}
	if maxRedirects > 0 {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		}
	} else {
		// Don't follow any redirects if max < 0
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return c, nil
}

// readBody reads at most limit bytes and transcodes textual bodies to UTF-8
// using the declared or sniffed charset.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "html") &&
		!strings.HasPrefix(strings.ToLower(contentType), "text/") {
		return raw, nil
	}

	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		// Unknown charset: hand back the raw bytes.
		return raw, nil
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return raw, nil
	}
	return decoded, nil
}

// ProxyFromContext is an http.Transport Proxy func that honours a proxy
// chosen by Session.Get, falling back to the environment.
func ProxyFromContext(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
		return u, nil
	}
	return http.ProxyFromEnvironment(req)
}
