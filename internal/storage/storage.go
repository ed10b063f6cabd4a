package storage

import (
	"context"
	"time"
)

// Attempt records one fetch attempt made while answering a query. Skipped
// candidates (blocked, disallowed) are not attempts and are never stored.
type Attempt struct {
	ID            string        `json:"id"`
	Query         string        `json:"query"`
	URL           string        `json:"url"`
	Identity      string        `json:"identity"`
	Strategy      string        `json:"strategy"` // "structured" or "raw"
	Reason        string        `json:"reason"`   // "ok" when the page was accepted
	StatusCode    int           `json:"status_code"`
	DetectionSrc  string        `json:"detection_src,omitempty"` // e.g. "Cloudflare", "Akamai"
	ContentLength int           `json:"content_length"`
	Duration      time.Duration `json:"duration"`
	CreatedAt     time.Time     `json:"created_at"`
	Error         string        `json:"error,omitempty"`
}

// Accepted reports whether the attempt produced a result.
func (a *Attempt) Accepted() bool {
	return a.Reason == "ok"
}

// Filter allows querying for specific Attempts.
type Filter struct {
	Query  string
	URL    string
	Reason string
	Since  *time.Time
	Limit  int
	Offset int
}

// Matches reports whether a satisfies every field set on f. Limit and
// Offset are not considered.
func (f Filter) Matches(a *Attempt) bool {
	if f.Query != "" && a.Query != f.Query {
		return false
	}
	if f.URL != "" && a.URL != f.URL {
		return false
	}
	if f.Reason != "" && a.Reason != f.Reason {
		return false
	}
	if f.Since != nil && a.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Window applies newest-first ordering, Offset and Limit to attempts that
// are in insertion order. It is used by the file-based backends, which have
// no query engine to do it for them.
func (f Filter) Window(attempts []*Attempt) []*Attempt {
	out := make([]*Attempt, len(attempts))
	for i, a := range attempts {
		out[len(attempts)-1-i] = a
	}

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*Attempt{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

// Backend defines the interface for storing and querying attempts.
type Backend interface {
	Save(ctx context.Context, attempt *Attempt) error
	Query(ctx context.Context, filter Filter) ([]*Attempt, error)
	Close() error
}
