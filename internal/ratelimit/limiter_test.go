package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWaitForHostEnforcesMinDelay(t *testing.T) {
	limiter := NewLimiter(Config{
		RequestsPerSecond: 1000,
		BurstSize:         100,
		MinDelay:          50 * time.Millisecond,
	})
	ctx := context.Background()

	if err := limiter.WaitForHost(ctx, "example.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := limiter.WaitForHost(ctx, "example.com"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("second visit to the same host returned after %v, want >= ~50ms", elapsed)
	}
}

func TestWaitForHostDifferentHostsNotDelayed(t *testing.T) {
	limiter := NewLimiter(Config{
		RequestsPerSecond: 1000,
		BurstSize:         100,
		MinDelay:          200 * time.Millisecond,
	})
	ctx := context.Background()

	if err := limiter.WaitForHost(ctx, "a.example.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := limiter.WaitForHost(ctx, "b.example.com"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("unrelated host was delayed %v", elapsed)
	}
}

func TestWaitForHostRespectsContext(t *testing.T) {
	limiter := NewLimiter(Config{
		RequestsPerSecond: 1000,
		BurstSize:         100,
		MinDelay:          time.Second,
	})

	if err := limiter.WaitForHost(context.Background(), "example.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.WaitForHost(ctx, "example.com"); err == nil {
		t.Fatal("expected context deadline to abort the per-host delay")
	}
}

func TestAllow(t *testing.T) {
	limiter := NewLimiter(Config{
		RequestsPerSecond: 1,
		BurstSize:         2,
		MinDelay:          time.Millisecond,
	})

	if !limiter.Allow() {
		t.Error("first request within burst should be allowed")
	}
	if !limiter.Allow() {
		t.Error("second request within burst should be allowed")
	}
	if limiter.Allow() {
		t.Error("third immediate request should exceed the burst")
	}
}

func TestGetStatsAndReset(t *testing.T) {
	limiter := NewLimiter(DefaultConfig())
	ctx := context.Background()

	_ = limiter.WaitForHost(ctx, "a.example.com")
	_ = limiter.WaitForHost(ctx, "b.example.com")

	stats := limiter.GetStats()
	if stats.TrackedHosts != 2 {
		t.Errorf("tracked hosts: want 2, got %d", stats.TrackedHosts)
	}
	if stats.BurstSize != 5 {
		t.Errorf("burst size: want 5, got %d", stats.BurstSize)
	}
	if stats.RequestDelay != 100*time.Millisecond {
		t.Errorf("request delay: want 100ms, got %v", stats.RequestDelay)
	}

	limiter.Reset()
	if got := limiter.GetStats().TrackedHosts; got != 0 {
		t.Errorf("tracked hosts after reset: want 0, got %d", got)
	}
}

func TestConservativeConfig(t *testing.T) {
	cfg := ConservativeConfig()
	if cfg.RequestsPerSecond >= DefaultConfig().RequestsPerSecond {
		t.Error("conservative rate should be below the default")
	}
	if cfg.MinDelay <= DefaultConfig().MinDelay {
		t.Error("conservative delay should exceed the default")
	}
}
