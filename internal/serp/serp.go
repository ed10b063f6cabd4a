// Package serp supplies candidate URLs for a query from a search provider.
package serp

import "context"

// Result is a single search hit. Only URL is required.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"-"` // provider name
}

// Provider abstracts a search engine that returns ranked candidate URLs for a
// query. The limit parameter caps the number of results returned.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	Name() string
}
