// Package corpus merges extracted pages into one text body and splits it
// into generation-sized chunks.
package corpus

import (
	"strings"

	"github.com/FranksOps/perspicacity/internal/crawler"
)

// PageSeparator marks the boundary between pages in a combined corpus.
const PageSeparator = "\n\n"

// Normalize collapses every whitespace run, including newlines and carriage
// returns, to a single space and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Combine normalizes each page and joins them with PageSeparator. Pages whose
// content is blank are dropped. An empty input yields "".
func Combine(results []crawler.Result) string {
	pages := make([]string, 0, len(results))
	for _, r := range results {
		if page := Normalize(r.Content); page != "" {
			pages = append(pages, page)
		}
	}
	return strings.TrimSpace(strings.Join(pages, PageSeparator))
}
