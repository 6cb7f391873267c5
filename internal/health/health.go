// SPDX-License-Identifier: MIT

// Package health provides health and readiness check functionality for
// production deployments. It supports Docker HEALTHCHECK and Kubernetes
// probes with detailed component status.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuGH/embywatch/internal/log"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Uptime    int64                  `json:"uptime_seconds"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager manages health and readiness checks
type Manager struct {
	version   string
	startTime time.Time
	checkers  []Checker
}

// NewManager creates a new health check manager
func NewManager(version string) *Manager {
	return &Manager{
		version:   version,
		startTime: time.Now(),
		checkers:  make([]Checker, 0),
	}
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// Health performs a health check (liveness probe)
// Returns 200 if the process is alive, regardless of service state
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Uptime:    int64(time.Since(m.startTime).Seconds()),
		Timestamp: time.Now(),
	}

	// If verbose, include component checks
	if verbose && len(m.checkers) > 0 {
		resp.Checks = make(map[string]CheckResult)
		hasUnhealthy := false
		hasDegraded := false

		for _, checker := range m.checkers {
			result := checker.Check(ctx)
			resp.Checks[checker.Name()] = result

			switch result.Status {
			case StatusUnhealthy:
				hasUnhealthy = true
			case StatusDegraded:
				hasDegraded = true
			}
		}

		// Overall status based on components
		if hasUnhealthy {
			resp.Status = StatusUnhealthy
		} else if hasDegraded {
			resp.Status = StatusDegraded
		}
	}

	return resp
}

// Ready performs a readiness check (readiness probe)
// Returns 200 if services are initialized and ready to serve traffic
func (m *Manager) Ready(ctx context.Context, _ bool) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	if len(m.checkers) == 0 {
		// No checkers registered - consider ready
		return resp
	}

	resp.Checks = make(map[string]CheckResult)
	hasUnhealthy := false
	hasDegraded := false

	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		resp.Checks[checker.Name()] = result

		switch result.Status {
		case StatusUnhealthy:
			hasUnhealthy = true
			resp.Ready = false
		case StatusDegraded:
			hasDegraded = true
		}
	}

	// Overall status
	if hasUnhealthy {
		resp.Status = StatusUnhealthy
	} else if hasDegraded {
		resp.Status = StatusDegraded
	}

	return resp
}

// ServeHealth handles HTTP health check requests
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // Always 200 for liveness

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "health.encode_error").Msg("failed to encode health response")
	}

	logger.Debug().
		Str("event", "health.checked").
		Str("status", string(resp.Status)).
		Bool("verbose", verbose).
		Msg("health check performed")
}

// ServeReady handles HTTP readiness check requests
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Ready(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str("event", "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Bool("verbose", verbose).
		Msg("readiness check performed")
}

// staleFactor is how many missed poll intervals make data stale.
const staleFactor = 3

// PollStatus is the loop state a poll coordinator exposes to checks.
type PollStatus struct {
	HasData     bool
	LastSuccess time.Time
	LastError   error
	AuthLatched bool
	Interval    time.Duration
}

// PollChecker reports the state of one poll loop.
type PollChecker struct {
	name   string
	status func() PollStatus
}

// NewPollChecker creates a checker over a poll status snapshot function.
func NewPollChecker(name string, status func() PollStatus) *PollChecker {
	return &PollChecker{
		name:   name,
		status: status,
	}
}

func (c *PollChecker) Name() string {
	return c.name
}

func (c *PollChecker) Check(ctx context.Context) CheckResult {
	st := c.status()

	if st.AuthLatched {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   "authentication rejected by server",
			Message: "polling suspended until configuration reload",
		}
	}

	if !st.HasData {
		result := CheckResult{
			Status:  StatusUnhealthy,
			Message: "no successful fetch yet",
		}
		if st.LastError != nil {
			result.Error = st.LastError.Error()
		}
		return result
	}

	if st.Interval > 0 && time.Since(st.LastSuccess) > staleFactor*st.Interval {
		result := CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last successful fetch %s ago", time.Since(st.LastSuccess).Round(time.Second)),
		}
		if st.LastError != nil {
			result.Error = st.LastError.Error()
		}
		return result
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "up to date",
	}
}

// Pinger is implemented by cache backends that can probe their upstream.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// CacheChecker reports reachability of an external cache backend.
type CacheChecker struct {
	pinger Pinger
}

// NewCacheChecker creates a checker for the cache backend. A nil pinger
// means the in-memory backend, which has nothing to probe.
func NewCacheChecker(p Pinger) *CacheChecker {
	return &CacheChecker{pinger: p}
}

func (c *CacheChecker) Name() string {
	return "cache"
}

func (c *CacheChecker) Check(ctx context.Context) CheckResult {
	if c.pinger == nil {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "in-memory backend",
		}
	}
	if err := c.pinger.HealthCheck(ctx); err != nil {
		// A lost cache slows lookups down but the daemon keeps working.
		return CheckResult{
			Status: StatusDegraded,
			Error:  err.Error(),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "backend reachable",
	}
}
