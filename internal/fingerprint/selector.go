package fingerprint

import (
	"net/http"
	"sync"
)

// Selector hands out one cached transport per TLS profile, so connection
// pools persist while the handshake follows the identity of each request.
type Selector struct {
	profile Profile
	opts    Options

	mu         sync.Mutex
	transports map[Profile]http.RoundTripper
}

// NewSelector creates a Selector. With ProfileMatch the profile is derived
// from each request's User-Agent; any other profile is used for everything.
func NewSelector(p Profile, opts Options) *Selector {
	if p == "" {
		p = ProfileGo
	}
	return &Selector{
		profile:    p,
		opts:       opts,
		transports: make(map[Profile]http.RoundTripper),
	}
}

// For returns the transport for a request sent under identity.
func (s *Selector) For(identity string) (http.RoundTripper, error) {
	p := s.profile
	if p == ProfileMatch {
		p = ForUserAgent(identity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rt, ok := s.transports[p]; ok {
		return rt, nil
	}
	rt, err := Transport(p, s.opts)
	if err != nil {
		return nil, err
	}
	s.transports[p] = rt
	return rt, nil
}
