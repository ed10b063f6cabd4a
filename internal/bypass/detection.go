// Package bypass recognises the block and challenge pages served by common
// bot-protection vendors, so an access denial can name who denied it.
package bypass

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/FranksOps/perspicacity/pkg/httpclient"
)

// Detector examines a fetched page and reports the protection vendor that
// blocked or challenged the request, if any.
type Detector func(page *httpclient.Page) (source string, detected bool)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Analyze runs the page through detectors in order and returns the first
// vendor that matches, or "" when none do.
func Analyze(page *httpclient.Page, detectors []Detector) string {
	if page == nil {
		return ""
	}
	for _, d := range detectors {
		if source, detected := d(page); detected {
			return source
		}
	}
	return ""
}

func serverHeader(page *httpclient.Page) string {
	return strings.ToLower(page.Header.Get("Server"))
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(page *httpclient.Page) (string, bool) {
	// Status codes 403 or 503 are common for CF challenges
	if page.StatusCode != http.StatusForbidden && page.StatusCode != http.StatusServiceUnavailable {
		return "", false
	}
	if strings.Contains(serverHeader(page), "cloudflare") {
		return "Cloudflare", true
	}
	for _, sig := range [][]byte{
		[]byte("cf-browser-verification"),
		[]byte("cloudflare-nginx"),
		[]byte("cf-turnstile"),
		[]byte("Attention Required! | Cloudflare"),
	} {
		if bytes.Contains(page.Body, sig) {
			return "Cloudflare", true
		}
	}
	return "", false
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(page *httpclient.Page) (string, bool) {
	if page.StatusCode != http.StatusForbidden {
		return "", false
	}
	if strings.Contains(serverHeader(page), "akamai") {
		return "Akamai", true
	}
	// Akamai's generic block page carries a "Reference #" id.
	if bytes.Contains(page.Body, []byte("Reference #")) && bytes.Contains(page.Body, []byte("Access Denied")) {
		return "Akamai", true
	}
	return "", false
}

// detectDataDome looks for DataDome challenge/block signatures.
func detectDataDome(page *httpclient.Page) (string, bool) {
	if page.StatusCode != http.StatusForbidden {
		return "", false
	}
	if strings.Contains(serverHeader(page), "datadome") {
		return "DataDome", true
	}
	if page.Header.Get("X-DataDome") != "" || page.Header.Get("X-DataDome-Response") != "" {
		return "DataDome", true
	}
	if bytes.Contains(page.Body, []byte("geo.captcha-delivery.com")) || bytes.Contains(page.Body, []byte("datadome")) {
		return "DataDome", true
	}
	return "", false
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(page *httpclient.Page) (string, bool) {
	if page.StatusCode != http.StatusForbidden {
		return "", false
	}
	if page.Header.Get("X-Px-Captcha") != "" {
		return "PerimeterX", true
	}
	if bytes.Contains(page.Body, []byte("client.perimeterx.net")) ||
		bytes.Contains(page.Body, []byte("px-captcha")) ||
		bytes.Contains(page.Body, []byte("_pxBlock")) {
		return "PerimeterX", true
	}
	return "", false
}
