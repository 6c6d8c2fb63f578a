package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces outgoing requests
type Limiter interface {
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
}

// New returns a limiter allowing rps requests per second with the given
// burst, shared by every caller. A non-positive rps disables pacing.
func New(rps float64, burst int) Limiter {
	if rps <= 0 {
		return Unlimited{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Shared{bucket: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Shared is one token bucket for all download attempts, whatever their host
type Shared struct {
	bucket *rate.Limiter
}

// Wait blocks until the bucket has a token
func (s *Shared) Wait(ctx context.Context) error {
	return s.bucket.Wait(ctx)
}

// Unlimited never delays a request
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
