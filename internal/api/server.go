// SPDX-License-Identifier: MIT

// Package api serves the daemon's HTTP surface: entity views, playback
// commands, statistics and health probes.
package api

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"

	mw "github.com/ManuGH/embywatch/internal/api/middleware"
	"github.com/ManuGH/embywatch/internal/bridge"
	"github.com/ManuGH/embywatch/internal/cache"
	"github.com/ManuGH/embywatch/internal/config"
	"github.com/ManuGH/embywatch/internal/emby"
	"github.com/ManuGH/embywatch/internal/health"
)

// SessionSource is the view of the session poll coordinator the API consumes.
type SessionSource interface {
	Snapshot() ([]emby.Session, time.Time, bool)
	RequestRefresh()
	LastError() error
	AuthLatched() bool
	Interval() time.Duration
}

// LibrarySource is the view of the library poll coordinator the API consumes.
type LibrarySource interface {
	Snapshot() (LibraryContent, time.Time, bool)
	RequestRefresh()
	LastError() error
	AuthLatched() bool
	Interval() time.Duration
}

// LibraryContent is one library poll result: recently added and upcoming
// items. It lives here so the daemon can build the fetch closure without a
// dependency cycle.
type LibraryContent struct {
	Movies   []emby.MovieSummary   `json:"movies"`
	Episodes []emby.EpisodeSummary `json:"episodes"`
	Upcoming []emby.EpisodeSummary `json:"upcoming"`
}

// StatsClient is the subset of the Emby facade the on-demand stats
// endpoints use.
type StatsClient interface {
	ServerStats(ctx context.Context) (*emby.ServerStats, error)
	Recordings(ctx context.Context) (*emby.RecordingsSnapshot, error)
	LibraryStatistics(ctx context.Context) (*emby.LibraryStats, error)
}

// Options collects the dependencies of the API server.
type Options struct {
	Holder   *config.Holder
	Engine   *bridge.Engine
	Sessions SessionSource
	Library  LibrarySource
	Stats    StatsClient
	Cache    cache.Cache
	Health   *health.Manager
	Version  string
}

// Server wires handlers, middleware and dependencies into one router.
type Server struct {
	holder    *config.Holder
	engine    *bridge.Engine
	sessions  SessionSource
	library   LibrarySource
	stats     StatsClient
	cache     cache.Cache
	health    *health.Manager
	version   string
	startTime time.Time
}

// NewServer creates the API server. All dependencies are required except
// Stats and Cache; without them the on-demand stats endpoints answer 503.
func NewServer(opts Options) *Server {
	c := opts.Cache
	if c == nil {
		c = cache.NewNoOpCache()
	}
	return &Server{
		holder:    opts.Holder,
		engine:    opts.Engine,
		sessions:  opts.Sessions,
		library:   opts.Library,
		stats:     opts.Stats,
		cache:     c,
		health:    opts.Health,
		version:   opts.Version,
		startTime: time.Now(),
	}
}

// Routes builds the router with the canonical middleware stack applied.
func (s *Server) Routes() *chi.Mux {
	cfg := s.holder.Get()

	tracingService := ""
	if cfg.OTELEnabled {
		tracingService = "embywatch"
	}

	r := mw.NewRouter(mw.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        tracingService,
		EnableLogging:         true,
		RateLimitPerMinute:    cfg.APIRateLimit,
	})

	if s.health != nil {
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/livez", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireToken)

		r.Get("/status", s.handleStatus)
		r.Get("/entities", s.handleEntities)
		r.Get("/entities/{id}", s.handleEntity)

		r.Group(func(r chi.Router) {
			r.Use(mw.CommandRateLimit())
			r.Post("/entities/{id}/play", s.handleCommand("play"))
			r.Post("/entities/{id}/pause", s.handleCommand("pause"))
			r.Post("/entities/{id}/stop", s.handleCommand("stop"))
			r.Post("/entities/{id}/seek", s.handleSeek)
			r.Post("/refresh", s.handleRefresh)
		})

		r.Get("/library/latest", s.handleLibraryLatest)

		r.Route("/stats", func(r chi.Router) {
			r.Get("/sessions", s.handleStatsSessions)
			r.Get("/bandwidth", s.handleStatsBandwidth)
			r.Get("/transcoding", s.handleStatsTranscoding)
			r.Get("/server", s.handleStatsServer)
			r.Get("/recordings", s.handleStatsRecordings)
			r.Get("/library", s.handleStatsLibrary)
		})
	})

	return r
}
