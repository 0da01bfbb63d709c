package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles outbound probe traffic so scanned hosts never see a
// burst that looks like abuse. A global token bucket caps total throughput;
// a per-host minimum delay spaces repeat visits to the same target.
type Limiter struct {
	limiter        *rate.Limiter
	requestDelay   time.Duration
	burstSize      int
	lastRequestMap map[string]time.Time
	mu             sync.Mutex
}

// Config contains rate limiting configuration.
type Config struct {
	// RequestsPerSecond limits global outbound request rate.
	RequestsPerSecond float64

	// BurstSize allows brief bursts above the rate limit.
	BurstSize int

	// MinDelay is the minimum delay between requests to the same host.
	MinDelay time.Duration
}

// DefaultConfig suits the passive scan workload: each scan touches a host a
// handful of times, so modest limits never become the bottleneck.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10.0,
		BurstSize:         5,
		MinDelay:          100 * time.Millisecond,
	}
}

// ConservativeConfig is for shared egress IPs where caution matters more
// than scan latency.
func ConservativeConfig() Config {
	return Config{
		RequestsPerSecond: 2.0,
		BurstSize:         1,
		MinDelay:          500 * time.Millisecond,
	}
}

func NewLimiter(config Config) *Limiter {
	return &Limiter{
		limiter:        rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstSize),
		requestDelay:   config.MinDelay,
		burstSize:      config.BurstSize,
		lastRequestMap: make(map[string]time.Time),
	}
}

// Wait blocks until the global limiter allows another request.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// WaitForHost blocks for the global limit, then enforces the per-host
// minimum delay.
func (l *Limiter) WaitForHost(ctx context.Context, host string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if lastReq, exists := l.lastRequestMap[host]; exists {
		elapsed := time.Since(lastReq)
		if elapsed < l.requestDelay {
			sleepDuration := l.requestDelay - elapsed
			select {
			case <-time.After(sleepDuration):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	l.lastRequestMap[host] = time.Now()
	return nil
}

// Allow checks if a request is allowed without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SetLimit updates the global rate limit dynamically.
func (l *Limiter) SetLimit(requestsPerSecond float64) {
	l.limiter.SetLimit(rate.Limit(requestsPerSecond))
}

// Reset clears per-host tracking state (useful for testing).
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastRequestMap = make(map[string]time.Time)
}

// GetStats returns current limiter statistics.
func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		TrackedHosts: len(l.lastRequestMap),
		BurstSize:    l.burstSize,
		RequestDelay: l.requestDelay,
	}
}

// Stats contains rate limiter statistics.
type Stats struct {
	TrackedHosts int
	BurstSize    int
	RequestDelay time.Duration
}
