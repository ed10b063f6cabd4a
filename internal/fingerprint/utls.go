package fingerprint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
	// ProfileMatch picks the profile per request from the User-Agent, so the
	// TLS handshake agrees with the identity the request claims.
	ProfileMatch Profile = "match"
)

// ParseProfile validates a profile name from configuration.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom, ProfileMatch:
		return p, nil
	case "":
		return ProfileGo, nil
	}
	return "", fmt.Errorf("unknown fingerprint profile %q", s)
}

// ForUserAgent maps a browser User-Agent onto the TLS profile that browser
// would present. Unrecognized agents get the Go profile.
func ForUserAgent(ua string) Profile {
	switch {
	case strings.Contains(ua, "Firefox/"):
		return ProfileFirefox
	case strings.Contains(ua, "Chrome/"), strings.Contains(ua, "Chromium/"):
		return ProfileChrome
	case strings.Contains(ua, "Safari/") && strings.Contains(ua, "Version/"):
		return ProfileSafari
	}
	return ProfileGo
}

// Options tunes the transport returned by Transport.
type Options struct {
	// Proxy is installed as the transport's Proxy func when set.
	Proxy func(*http.Request) (*url.URL, error)
	// InsecureSkipVerify disables certificate verification (tests only).
	InsecureSkipVerify bool
}

// Transport returns an http.RoundTripper whose TLS ClientHello mimics the
// given profile. ProfileGo yields a plain clone of http.DefaultTransport.
// Browser profiles only advertise http/1.1 via ALPN because net/http cannot
// speak h2 over a connection it did not dial itself.
func Transport(p Profile, opts Options) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != nil {
		transport.Proxy = opts.Proxy
	}

	if p == ProfileGo {
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		return transport, nil
	}

	helloID, err := helloFor(p)
	if err != nil {
		return nil, err
	}

	dial := transport.DialContext
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr // fallback if no port
		}

		uConn := newHTTP1Client(tcpConn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}, helloID)
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("utls handshake failed: %w", err)
		}

		return uConn, nil
	}

	return transport, nil
}

func helloFor(p Profile) (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedNoALPN, nil
	}
	return utls.ClientHelloID{}, fmt.Errorf("unknown profile %q", p)
}

// newHTTP1Client builds a uTLS client for id with its ALPN list narrowed to
// http/1.1. Presets that cannot be expressed as a spec are used unchanged.
func newHTTP1Client(conn net.Conn, cfg *utls.Config, id utls.ClientHelloID) *utls.UConn {
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return utls.UClient(conn, cfg, id)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	uConn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uConn.ApplyPreset(&spec); err != nil {
		return utls.UClient(conn, cfg, id)
	}
	return uConn
}
