// Package blocklist decides which candidate hosts are never fetched.
package blocklist

import (
	"log/slog"
	"net/url"
	"strings"
)

// DefaultDomains are hosts known to reliably reject or rate-limit automated
// fetches.
var DefaultDomains = []string{
	"cloudflare.com",
	"crunchbase.com",
	"pitchbook.com",
	"linkedin.com",
	"facebook.com",
	"instagram.com",
	"twitter.com",
}

// List matches hosts against a fixed set of blocked domains. An entry
// blocks every host that contains it as a substring, so "linkedin.com"
// blocks "uk.linkedin.com" and also "notlinkedin.com".
type List struct {
	entries []string
	logger  *slog.Logger
}

// New creates a List. A nil domains slice uses DefaultDomains; an empty
// non-nil slice blocks nothing.
func New(domains []string, logger *slog.Logger) *List {
	if domains == nil {
		domains = DefaultDomains
	}
	if logger == nil {
		logger = slog.Default()
	}

	entries := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			entries = append(entries, d)
		}
	}
	return &List{entries: entries, logger: logger}
}

// IsBlocked reports whether rawURL's host contains any blocked entry.
// A URL whose host cannot be parsed is logged and treated as not blocked.
func (l *List) IsBlocked(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		l.logger.Warn("cannot parse candidate url, treating as not blocked", "url", rawURL, "err", err)
		return false
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		l.logger.Warn("candidate url has no host, treating as not blocked", "url", rawURL)
		return false
	}

	for _, entry := range l.entries {
		if strings.Contains(host, entry) {
			return true
		}
	}
	return false
}

// Entries returns a copy of the blocked domains.
func (l *List) Entries() []string {
	copied := make([]string, len(l.entries))
	copy(copied, l.entries)
	return copied
}
