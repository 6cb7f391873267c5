// SPDX-License-Identifier: MIT

package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	// RequestLimit is the maximum number of requests allowed in the window
	RequestLimit int
	// WindowSize is the time window for rate limiting
	WindowSize time.Duration
	// KeyFunc extracts the rate limit key from the request (e.g. IP address).
	// If nil, defaults to IP-based rate limiting.
	KeyFunc func(r *http.Request) (string, error)
}

// RateLimit creates a rate limiting middleware using the httprate library.
// It uses a sliding window counter algorithm for accurate rate limiting.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cfg.WindowSize.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)

			resp := `{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`
			_, _ = w.Write([]byte(resp))
		}),
	)
}

// APIRateLimit returns a rate limiter for general API endpoints.
// perMinute <= 0 falls back to a permissive default.
func APIRateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		perMinute = 120
	}
	return RateLimit(RateLimitConfig{
		RequestLimit: perMinute,
		WindowSize:   time.Minute,
	})
}

// CommandRateLimit returns a stricter limiter for playback command endpoints.
// Commands fan out to the upstream server, so they get a tighter budget than
// read-only requests.
func CommandRateLimit() func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{
		RequestLimit: 30,
		WindowSize:   time.Minute,
	})
}
