// SPDX-License-Identifier: MIT

package middleware

import (
	"github.com/go-chi/chi/v5"
)

// StackConfig configures the canonical HTTP ingress middleware stack.
// All servers go through ApplyStack to prevent drift in cross-cutting
// concerns.
type StackConfig struct {
	// Security headers
	EnableSecurityHeaders bool
	CSP                   string

	// Observability
	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool

	// Rate limiting
	RateLimitPerMinute int // 0 disables the global limiter
}

// NewRouter constructs a chi router with the canonical middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	// 1. Recoverer (outermost safety net)
	r.Use(Recoverer)
	// 2. RequestID (correlation early)
	r.Use(RequestID)
	// 3. Security headers
	if cfg.EnableSecurityHeaders {
		r.Use(SecurityHeaders(cfg.CSP))
	}
	// 4. Metrics (track all requests)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	// 5. Tracing (distributed tracing with OpenTelemetry)
	if cfg.TracingService != "" {
		r.Use(OTelHTTP(cfg.TracingService))
	}
	// 6. Logging (wraps handlers, captures full latency)
	if cfg.EnableLogging {
		r.Use(RequestLogger)
	}
	// 7. Rate limit (global protection)
	if cfg.RateLimitPerMinute > 0 {
		r.Use(APIRateLimit(cfg.RateLimitPerMinute))
	}
}
