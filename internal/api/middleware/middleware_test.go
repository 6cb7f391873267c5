// SPDX-License-Identifier: MIT

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/embywatch/internal/log"
)

func TestRequestID_MintsWhenAbsent(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = log.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen == "" {
		t.Fatal("expected request ID on context")
	}
	if got := w.Header().Get(HeaderRequestID); got != seen {
		t.Errorf("response header %q does not match context ID %q", got, seen)
	}
}

func TestRequestID_EchoesProvided(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get(HeaderRequestID); got != "abc-123" {
		t.Errorf("expected provided ID to be echoed, got %q", got)
	}
}

func TestRecoverer_ConvertsPanicTo500(t *testing.T) {
	handler := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body, got %q: %v", w.Body.String(), err)
	}
	if body["error"] == "" {
		t.Error("expected error field in panic response")
	}
}

func TestRecoverer_PassesThroughNormally(t *testing.T) {
	handler := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", w.Code)
	}
}

func TestRequestLogger_PreservesStatusAndBody(t *testing.T) {
	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("expected status 418, got %d", w.Code)
	}
	if w.Body.String() != "short and stout" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}

func TestRateLimit_EnforcesLimit(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	limited := RateLimit(RateLimitConfig{
		RequestLimit: 3,
		WindowSize:   time.Minute,
	})(handler)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("request %d: expected status 200, got %d", i+1, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	w := httptest.NewRecorder()
	limited.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("4th request: expected status 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header in rate limit response")
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), "rate_limit_exceeded") {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}

func TestRateLimit_DifferentIPsIndependent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	limited := RateLimit(RateLimitConfig{
		RequestLimit: 1,
		WindowSize:   time.Minute,
	})(handler)

	first := httptest.NewRequest(http.MethodGet, "/test", nil)
	first.RemoteAddr = "192.168.1.1:12345"
	w := httptest.NewRecorder()
	limited.ServeHTTP(w, first)
	if w.Code != http.StatusOK {
		t.Fatalf("first IP: expected 200, got %d", w.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/test", nil)
	second.RemoteAddr = "192.168.1.2:12345"
	w = httptest.NewRecorder()
	limited.ServeHTTP(w, second)
	if w.Code != http.StatusOK {
		t.Errorf("second IP should not share the first IP's budget, got %d", w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Content-Security-Policy"); got != DefaultCSP {
		t.Errorf("unexpected CSP %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("unexpected X-Content-Type-Options %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("unexpected X-Frame-Options %q", got)
	}
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS must not be set on plain HTTP, got %q", got)
	}
}

func TestSecurityHeaders_HSTSBehindTLSProxy(t *testing.T) {
	handler := SecurityHeaders("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Strict-Transport-Security"); got == "" {
		t.Error("expected HSTS header when X-Forwarded-Proto is https")
	}
}

func TestApplyStack(t *testing.T) {
	r := NewRouter(StackConfig{
		EnableSecurityHeaders: true,
		EnableLogging:         true,
		RateLimitPerMinute:    100,
	})
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Header().Get(HeaderRequestID) == "" {
		t.Error("expected request ID header from stack")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers from stack")
	}
}
