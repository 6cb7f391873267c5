// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelHTTP wraps the handler with OpenTelemetry HTTP instrumentation.
// This automatically creates spans for all HTTP requests and propagates
// trace context.
func OTelHTTP(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithSpanOptions(
				trace.WithAttributes(
					semconv.ServiceName(serviceName),
				),
			),
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(spanNameFormatter),
		)
	}
}

// shouldTrace skips health and metrics endpoints to reduce noise.
func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/livez", "/metrics":
		return false
	}
	return true
}

// spanNameFormatter creates span names from HTTP requests.
// Format: "{service} {METHOD} {PATH}" without query values.
func spanNameFormatter(operation string, r *http.Request) string {
	route := r.URL.Path
	if r.URL.RawQuery != "" {
		return operation + " " + r.Method + " " + route + "?"
	}
	return operation + " " + r.Method + " " + route
}
