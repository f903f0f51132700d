package algolia

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRate is the proactive request rate per second.
	DefaultRate = 10

	// DefaultBurst is the number of requests allowed back to back.
	DefaultBurst = 10

	// MinBackoff is the pause after the first 429 response.
	MinBackoff = time.Second

	// MaxBackoff caps the pause after repeated 429 responses.
	MaxBackoff = time.Minute
)

// RateLimiter combines proactive token bucket throttling with a reactive
// pause that doubles while the API keeps answering 429.
type RateLimiter struct {
	mu          sync.Mutex
	bucket      *rate.Limiter
	backoff     time.Duration
	pausedUntil time.Time
	now         func() time.Time
}

// NewRateLimiter creates a limiter allowing perSecond requests with the
// given burst. A non-positive perSecond disables proactive throttling.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		bucket: rate.NewLimiter(limit, burst),
		now:    time.Now,
	}
}

// Wait blocks until it's safe to make a request.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	pausedUntil := r.pausedUntil
	now := r.now()
	r.mu.Unlock()

	if now.Before(pausedUntil) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pausedUntil.Sub(now)):
		}
	}
	return nil
}

// Observe updates the reactive pause from a response status.
func (r *RateLimiter) Observe(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if status != http.StatusTooManyRequests {
		r.backoff = 0
		return
	}
	switch {
	case r.backoff == 0:
		r.backoff = MinBackoff
	case r.backoff < MaxBackoff:
		r.backoff = min(2*r.backoff, MaxBackoff)
	}
	r.pausedUntil = r.now().Add(r.backoff)
}

// PausedUntil returns the end of the current reactive pause.
func (r *RateLimiter) PausedUntil() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pausedUntil
}
