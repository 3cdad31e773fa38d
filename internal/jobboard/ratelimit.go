package jobboard

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound requests globally and per domain
type RateLimiter struct {
	global    *rate.Limiter
	perDomain sync.Map // map[string]*rate.Limiter
}

// NewRateLimiter creates a limiter allowing globalRate requests per second
func NewRateLimiter(globalRate float64) *RateLimiter {
	if globalRate <= 0 {
		globalRate = 2
	}
	burst := int(globalRate * 2)
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{global: rate.NewLimiter(rate.Limit(globalRate), burst)}
}

// Wait blocks until both the global and the domain budget allow one request.
// crawlDelay only applies the first time a domain is seen.
func (rl *RateLimiter) Wait(ctx context.Context, domain string, crawlDelay time.Duration) error {
	if err := rl.global.Wait(ctx); err != nil {
		return err
	}
	return rl.domainLimiter(domain, crawlDelay).Wait(ctx)
}

func (rl *RateLimiter) domainLimiter(domain string, crawlDelay time.Duration) *rate.Limiter {
	if limiter, ok := rl.perDomain.Load(domain); ok {
		return limiter.(*rate.Limiter)
	}
	if crawlDelay <= 0 {
		crawlDelay = 500 * time.Millisecond
	}

	requestsPerSecond := 1.0 / crawlDelay.Seconds()
	if requestsPerSecond > 5.0 {
		requestsPerSecond = 5.0
	}
	if requestsPerSecond < 0.2 {
		requestsPerSecond = 0.2
	}

	actual, _ := rl.perDomain.LoadOrStore(domain, rate.NewLimiter(rate.Limit(requestsPerSecond), 1))
	return actual.(*rate.Limiter)
}
