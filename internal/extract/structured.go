package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/FranksOps/perspicacity/pkg/httpclient"
)

// structured downloads the page and runs readability over it.
func (e *Extractor) structured(ctx context.Context, rawURL, identity string) Outcome {
	opts := e.requestOptions(
		httpclient.WithHeader("Cache-Control", "no-cache"),
		httpclient.WithHeader("Pragma", "no-cache"),
	)

	target := rawURL
	hops := 0
	for {
		page, err := e.fetcher.Get(ctx, target, identity, opts...)
		if err != nil {
			return e.failure(rawURL, StrategyStructured, page, err)
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			return e.failure(rawURL, StrategyStructured, page, fmt.Errorf("%w: %w", errParse, err))
		}

		if hops < e.cfg.MaxRefreshHops {
			if next, ok := metaRefresh(doc, page.URL); ok && next != target {
				e.logger.Debug("following meta refresh", "url", rawURL, "to", next)
				target = next
				hops++
				continue
			}
		}

		text, err := readable(doc, page.URL)
		if err != nil {
			return e.failure(rawURL, StrategyStructured, page, fmt.Errorf("%w: %w", errParse, err))
		}
		return e.accept(rawURL, StrategyStructured, page.StatusCode, text)
	}
}

// readable strips images and returns the readability text of doc.
func readable(doc *goquery.Document, pageURL *url.URL) (string, error) {
	doc.Find("img, picture, source, svg").Remove()

	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	return article.TextContent, nil
}

// metaRefresh returns the absolute target of a <meta http-equiv="refresh">
// tag, if the document has one with a URL.
func metaRefresh(doc *goquery.Document, base *url.URL) (string, bool) {
	var target string
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("http-equiv", "")), "refresh") {
			return true
		}
		target = refreshURL(s.AttrOr("content", ""))
		return target == ""
	})
	if target == "" {
		return "", false
	}

	ref, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	return ref.String(), true
}

// refreshURL parses the URL out of a refresh content value such as
// `5; url='/next'`.
func refreshURL(content string) string {
	_, rest, found := strings.Cut(content, ";")
	if !found {
		return ""
	}
	rest = strings.TrimSpace(rest)
	if len(rest) < 4 || !strings.EqualFold(rest[:3], "url") {
		return ""
	}
	rest = strings.TrimSpace(rest[3:])
	rest, ok := strings.CutPrefix(rest, "=")
	if !ok {
		return ""
	}
	return strings.Trim(strings.TrimSpace(rest), `"'`)
}
