package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Config describes how outbound requests are spaced.
type Config struct {
	// Min and Max bound the randomized delay applied before every request.
	Min time.Duration
	Max time.Duration
	// RequestsPerSecond caps the aggregate rate across every caller sharing
	// the Pacer (0 = no shared budget).
	RequestsPerSecond float64
	// Burst is the token bucket size for the shared budget (0 = 1).
	Burst int
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer spaces requests with a uniformly random delay drawn from [Min, Max],
// optionally behind a token bucket shared by all callers. A single Pacer must
// be shared between workers so the aggregate budget holds.
// It is safe for concurrent use by multiple goroutines.
type Pacer struct {
	min     time.Duration
	max     time.Duration
	limiter *rate.Limiter
	sleep   SleepFunc
}

// NewPacer creates a Pacer. Negative bounds are clamped to zero and the
// bounds are swapped if Min > Max.
func NewPacer(cfg Config) *Pacer {
	if cfg.Min < 0 {
		cfg.Min = 0
	}
	if cfg.Max < 0 {
		cfg.Max = 0
	}
	if cfg.Min > cfg.Max {
		cfg.Min, cfg.Max = cfg.Max, cfg.Min
	}

	p := &Pacer{
		min:   cfg.Min,
		max:   cfg.Max,
		sleep: Sleep,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return p
}

// WithSleep replaces the sleeper, mainly so tests do not block.
func (p *Pacer) WithSleep(fn SleepFunc) *Pacer {
	if fn != nil {
		p.sleep = fn
	}
	return p
}

// Delay draws the next pause from [Min, Max].
func (p *Pacer) Delay() time.Duration {
	if p.max <= p.min {
		return p.min
	}
	return p.min + rand.N(p.max-p.min+1)
}

// Wait blocks until the shared budget admits one more request and the
// randomized pause has elapsed, or until the context is canceled.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return p.sleep(ctx, p.Delay())
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
