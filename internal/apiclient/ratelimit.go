package apiclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a minimum interval between outbound requests of one
// Client. Concurrent callers are serialized by the underlying limiter.
type RateLimiter struct {
	mu            sync.Mutex
	limiter       *rate.Limiter
	minInterval   time.Duration
	lastRequestAt time.Time
}

// NewRateLimiter creates a limiter allowing one request per minInterval.
// A non-positive interval disables limiting.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &RateLimiter{
		limiter:     rate.NewLimiter(limit, 1),
		minInterval: minInterval,
	}
}

// Wait blocks until the next request may be sent and records its timestamp.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait canceled: %w", err)
	}
	r.mu.Lock()
	r.lastRequestAt = time.Now()
	r.mu.Unlock()
	return nil
}

// LastRequestAt returns when the last request was admitted.
func (r *RateLimiter) LastRequestAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRequestAt
}

// MinInterval returns the configured spacing.
func (r *RateLimiter) MinInterval() time.Duration {
	return r.minInterval
}
