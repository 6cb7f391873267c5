// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ManuGH/embywatch/internal/cache"
	"github.com/ManuGH/embywatch/internal/log"
	"github.com/ManuGH/embywatch/internal/stats"
)

// SessionsStatsResponse is the sessions stats contract: the headline
// summary plus the users running more than one stream at once.
type SessionsStatsResponse struct {
	stats.SessionsSummary
	MultiSessionUsers []stats.UserSessions `json:"multi_session_users"`
}

// handleStatsSessions implements GET /api/v1/stats/sessions.
func (s *Server) handleStatsSessions(w http.ResponseWriter, r *http.Request) {
	sessions, _, ok := s.sessions.Snapshot()
	if !ok {
		writeServiceUnavailable(w, "sessions not fetched yet")
		return
	}
	writeJSON(w, http.StatusOK, SessionsStatsResponse{
		SessionsSummary:   stats.Summary(sessions),
		MultiSessionUsers: stats.MultiSessionUsers(sessions),
	})
}

// handleStatsBandwidth implements GET /api/v1/stats/bandwidth.
func (s *Server) handleStatsBandwidth(w http.ResponseWriter, r *http.Request) {
	sessions, _, ok := s.sessions.Snapshot()
	if !ok {
		writeServiceUnavailable(w, "sessions not fetched yet")
		return
	}
	writeJSON(w, http.StatusOK, stats.Bandwidth(sessions))
}

// handleStatsTranscoding implements GET /api/v1/stats/transcoding.
func (s *Server) handleStatsTranscoding(w http.ResponseWriter, r *http.Request) {
	sessions, _, ok := s.sessions.Snapshot()
	if !ok {
		writeServiceUnavailable(w, "sessions not fetched yet")
		return
	}
	writeJSON(w, http.StatusOK, stats.Transcoding(sessions))
}

// handleStatsServer implements GET /api/v1/stats/server. The aggregate is
// fetched on demand and cached briefly, so dashboards polling it do not
// hammer the upstream.
func (s *Server) handleStatsServer(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeServiceUnavailable(w, "stats backend unavailable")
		return
	}
	report, err := cachedFetch(r.Context(), s.cache, cache.KeyServerStats, cache.TTLServerStats,
		func(ctx context.Context) (stats.ServerReport, error) {
			raw, err := s.stats.ServerStats(ctx)
			if err != nil {
				return stats.ServerReport{}, err
			}
			return stats.Server(raw), nil
		})
	if err != nil {
		s.respondStatsError(w, r, "server", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleStatsRecordings implements GET /api/v1/stats/recordings.
func (s *Server) handleStatsRecordings(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeServiceUnavailable(w, "stats backend unavailable")
		return
	}
	report, err := cachedFetch(r.Context(), s.cache, cache.KeyRecordings, cache.TTLRecordings,
		func(ctx context.Context) (stats.RecordingsReport, error) {
			raw, err := s.stats.Recordings(ctx)
			if err != nil {
				return stats.RecordingsReport{}, err
			}
			return stats.Recordings(raw), nil
		})
	if err != nil {
		s.respondStatsError(w, r, "recordings", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleStatsLibrary implements GET /api/v1/stats/library.
func (s *Server) handleStatsLibrary(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeServiceUnavailable(w, "stats backend unavailable")
		return
	}
	report, err := cachedFetch(r.Context(), s.cache, cache.KeyLibrary, cache.TTLLibrary,
		func(ctx context.Context) (stats.LibraryReport, error) {
			raw, err := s.stats.LibraryStatistics(ctx)
			if err != nil {
				return stats.LibraryReport{}, err
			}
			return stats.Library(raw), nil
		})
	if err != nil {
		s.respondStatsError(w, r, "library", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// cachedFetch reads a report through the cache, fetching on a miss.
func cachedFetch[T any](ctx context.Context, c cache.Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if hit, ok := cache.Typed[T](c, key); ok {
		return hit, nil
	}

	fresh, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	c.Set(key, fresh, ttl)
	return fresh, nil
}

func (s *Server) respondStatsError(w http.ResponseWriter, r *http.Request, kind string, err error) {
	log.WithComponentFromContext(r.Context(), "api.v1").Error().
		Err(err).
		Str("event", "v1.stats.fetch_failed").
		Str("kind", kind).
		Msg("stats fetch failed")
	writeBadGateway(w, err)
}
