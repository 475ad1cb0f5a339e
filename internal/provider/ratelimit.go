package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/felixgeelhaar/autoheal/internal/fixgen"
)

// RateLimited throttles calls to an underlying oracle.
type RateLimited struct {
	next    fixgen.Oracle
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute calls per minute with the given burst.
// A burst below 1 is treated as 1.
func NewRateLimited(next fixgen.Oracle, perMinute float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	every := time.Duration(float64(time.Minute) / perMinute)
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(every), burst),
	}
}

// Complete waits for a token and then delegates.
func (r *RateLimited) Complete(ctx context.Context, messages []fixgen.Message) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Complete(ctx, messages)
}
