package server

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds chat lines per connection: Burst lines every
// RefillInterval. A zero Burst disables throttling.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

func (c RateLimitConfig) enabled() bool {
	return c.Burst > 0 && c.RefillInterval > 0
}

// rateLimiter wraps rate.Limiter with an injectable clock. A nil limiter allows everything.
type rateLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
}

func newRateLimiter(cfg RateLimitConfig, now func() time.Time) *rateLimiter {
	if !cfg.enabled() {
		return &rateLimiter{now: now}
	}
	every := rate.Every(cfg.RefillInterval / time.Duration(cfg.Burst))
	return &rateLimiter{limiter: rate.NewLimiter(every, cfg.Burst), now: now}
}

func (rl *rateLimiter) allow() bool {
	if rl.limiter == nil {
		return true
	}
	return rl.limiter.AllowN(rl.now(), 1)
}
