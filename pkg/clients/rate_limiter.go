package clients

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter limits the rate of outgoing requests.
type RateLimiter interface {
	// Allow reports whether a request may proceed now
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
}

// NewRateLimiter creates a token bucket limiter refilling at perSecond with
// the given burst. A non-positive rate returns nil (unlimited).
func NewRateLimiter(perSecond float64, burst int) RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
