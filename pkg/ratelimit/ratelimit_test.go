package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestPacer_DelayWithinBounds(t *testing.T) {
	p := NewPacer(Config{Min: 1500 * time.Millisecond, Max: 3500 * time.Millisecond})

	for i := 0; i < 1000; i++ {
		d := p.Delay()
		if d < 1500*time.Millisecond || d > 3500*time.Millisecond {
			t.Fatalf("delay %v outside [1.5s, 3.5s]", d)
		}
	}
}

func TestPacer_SwappedAndNegativeBounds(t *testing.T) {
	p := NewPacer(Config{Min: 20 * time.Millisecond, Max: 10 * time.Millisecond})
	for i := 0; i < 100; i++ {
		d := p.Delay()
		if d < 10*time.Millisecond || d > 20*time.Millisecond {
			t.Fatalf("delay %v outside swapped bounds", d)
		}
	}

	p = NewPacer(Config{Min: -time.Second, Max: -time.Second})
	if d := p.Delay(); d != 0 {
		t.Errorf("expected negative bounds to clamp to 0, got %v", d)
	}
}

func TestPacer_WaitUsesSleeper(t *testing.T) {
	var slept []time.Duration
	p := NewPacer(Config{Min: time.Second, Max: 2 * time.Second}).
		WithSleep(func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		})

	for i := 0; i < 3; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(slept) != 3 {
		t.Fatalf("expected 3 sleeps, got %d", len(slept))
	}
	for _, d := range slept {
		if d < time.Second || d > 2*time.Second {
			t.Errorf("sleep %v outside bounds", d)
		}
	}
}

func TestPacer_NoBlockWhenZero(t *testing.T) {
	p := NewPacer(Config{})

	start := time.Now()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("pacer with zero bounds should not block")
	}
}

func TestPacer_SharedBudget(t *testing.T) {
	p := NewPacer(Config{RequestsPerSecond: 10, Burst: 1}) // 100ms per token

	ctx := context.Background()
	// First token is available immediately.
	_ = p.Wait(ctx)

	start := time.Now()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	duration := time.Since(start)

	if duration < 50*time.Millisecond || duration > 250*time.Millisecond {
		t.Errorf("expected wait around 100ms, took %v", duration)
	}
}

func TestPacer_ContextCancellation(t *testing.T) {
	p := NewPacer(Config{Min: time.Second, Max: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Wait(ctx); err == nil {
		t.Fatalf("expected context canceled error")
	}
}
