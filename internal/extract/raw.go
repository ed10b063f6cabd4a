package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// nonContent are removed before text nodes are collected.
const nonContent = "script, style, nav, header, footer, iframe, noscript"

// raw performs a plain GET and concatenates the page's visible text nodes.
func (e *Extractor) raw(ctx context.Context, rawURL, identity string) Outcome {
	page, err := e.fetcher.Get(ctx, rawURL, identity, e.requestOptions()...)
	if err != nil {
		return e.failure(rawURL, StrategyRaw, page, err)
	}

	text, err := VisibleText(page.Body)
	if err != nil {
		return e.failure(rawURL, StrategyRaw, page, fmt.Errorf("%w: %w", errParse, err))
	}
	return e.accept(rawURL, StrategyRaw, page.StatusCode, text)
}

// VisibleText parses markup, drops non-content elements and joins every
// remaining non-blank text node with single spaces.
func VisibleText(markup []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return "", err
	}
	doc.Find(nonContent).Remove()

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(parts, " "), nil
}
