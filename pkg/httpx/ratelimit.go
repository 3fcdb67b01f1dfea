package httpx

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// RefreshLimit bounds how often a client may hit the refresh endpoint. A
// misbehaving backend that keeps answering 401 after a successful refresh
// would otherwise have every request trigger another refresh.
var RefreshLimit = RateLimitConfig{
	RequestsPerWindow: 6,
	Window:            time.Minute,
	Burst:             3,
}

// Limiter builds a token-bucket limiter for the config. A zero config yields
// an unlimited limiter.
func (c RateLimitConfig) Limiter() *rate.Limiter {
	if c.RequestsPerWindow <= 0 || c.Window <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}

	burst := c.Burst
	if burst <= 0 {
		burst = 1
	}

	perSecond := float64(c.RequestsPerWindow) / c.Window.Seconds()
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
