// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ManuGH/embywatch/internal/bridge"
	"github.com/ManuGH/embywatch/internal/cache"
	"github.com/ManuGH/embywatch/internal/log"
)

// StatusResponse defines the v1 status contract.
// This structure is STABLE and must not change in backwards-incompatible ways.
type StatusResponse struct {
	Status        string       `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Entities      EntityCounts `json:"entities"`
	Sessions      SourceStatus `json:"sessions"`
	Library       SourceStatus `json:"library"`
}

// EntityCounts summarizes the entity registry.
type EntityCounts struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Playing   int `json:"playing"`
}

// SourceStatus describes one poll coordinator's freshness.
type SourceStatus struct {
	HasData     bool      `json:"has_data"`
	LastSuccess time.Time `json:"last_success"`
	AgeSeconds  float64   `json:"age_seconds"`
	Interval    string    `json:"interval"`
	AuthLatched bool      `json:"auth_latched"`
	LastError   string    `json:"last_error,omitempty"`
}

// EntityView is the wire representation of one entity.
type EntityView struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	SessionID  string         `json:"session_id"`
	Available  bool           `json:"available"`
	State      string         `json:"state"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Attributes map[string]any `json:"attributes"`
}

// CommandResponse acknowledges a dispatched playback command. Commands are
// fire-and-forget: the effect shows up with the next poll.
type CommandResponse struct {
	Status   string `json:"status"`
	Command  string `json:"command"`
	EntityID string `json:"entity_id"`
}

// SeekRequest is the body of POST /entities/{id}/seek.
type SeekRequest struct {
	PositionSeconds *float64 `json:"position_seconds"`
}

// handleStatus implements GET /api/v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api.v1")

	total, available, playing := s.engine.Counts()

	_, sessTS, sessOK := s.sessions.Snapshot()
	_, libTS, libOK := s.library.Snapshot()

	resp := StatusResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Entities:      EntityCounts{Total: total, Available: available, Playing: playing},
		Sessions:      sourceStatus(sessTS, sessOK, s.sessions.LastError(), s.sessions.AuthLatched(), s.sessions.Interval()),
		Library:       sourceStatus(libTS, libOK, s.library.LastError(), s.library.AuthLatched(), s.library.Interval()),
	}

	writeJSON(w, http.StatusOK, resp)

	logger.Debug().
		Str("event", "v1.status.success").
		Int("entities", total).
		Int("playing", playing).
		Msg("status request handled")
}

func sourceStatus(ts time.Time, ok bool, lastErr error, latched bool, interval time.Duration) SourceStatus {
	st := SourceStatus{
		HasData:     ok,
		AuthLatched: latched,
		Interval:    interval.String(),
	}
	if ok {
		st.LastSuccess = ts.UTC()
		st.AgeSeconds = math.Round(time.Since(ts).Seconds()*10) / 10
	}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	return st
}

// handleEntities implements GET /api/v1/entities.
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	entities := s.engine.Entities()

	views := make([]EntityView, 0, len(entities))
	for i := range entities {
		views = append(views, entityView(&entities[i]))
	}

	writeJSON(w, http.StatusOK, views)
}

// handleEntity implements GET /api/v1/entities/{id}.
func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ent, ok := s.engine.Entity(id)
	if !ok {
		writeNotFound(w)
		return
	}

	writeJSON(w, http.StatusOK, entityView(&ent))
}

func entityView(e *bridge.Entity) EntityView {
	return EntityView{
		ID:         e.ID,
		Name:       e.Name,
		SessionID:  e.SessionID,
		Available:  e.Available,
		State:      string(e.Playback.State),
		UpdatedAt:  e.UpdatedAt.UTC(),
		Attributes: e.Attributes(),
	}
}

// handleCommand builds the handler for POST /api/v1/entities/{id}/{command}
// for the bodyless commands play, pause and stop.
func (s *Server) handleCommand(command string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		logger := log.WithComponentFromContext(r.Context(), "api.v1")

		var err error
		switch command {
		case "play":
			err = s.engine.Play(r.Context(), id)
		case "pause":
			err = s.engine.Pause(r.Context(), id)
		case "stop":
			err = s.engine.Stop(r.Context(), id)
		default:
			writeNotFound(w)
			return
		}

		s.respondCommand(w, logger, command, id, err)
	}
}

// handleSeek implements POST /api/v1/entities/{id}/seek.
func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := log.WithComponentFromContext(r.Context(), "api.v1")

	var body SeekRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.PositionSeconds == nil || *body.PositionSeconds < 0 {
		writeError(w, errors.New("position_seconds must be a non-negative number"))
		return
	}

	err := s.engine.Seek(r.Context(), id, *body.PositionSeconds)
	s.respondCommand(w, logger, "seek", id, err)
}

func (s *Server) respondCommand(w http.ResponseWriter, logger zerolog.Logger, command, id string, err error) {
	switch {
	case err == nil:
		logger.Info().
			Str("event", "v1.command.accepted").
			Str("command", command).
			Str("entity_id", id).
			Msg("command dispatched")
		writeJSON(w, http.StatusAccepted, CommandResponse{Status: "accepted", Command: command, EntityID: id})
	case errors.Is(err, bridge.ErrUnknownEntity):
		writeNotFound(w)
	case errors.Is(err, bridge.ErrEntityUnavailable):
		writeConflict(w, "entity unavailable")
	case errors.Is(err, bridge.ErrNoCommander):
		writeServiceUnavailable(w, "playback commands are disabled")
	default:
		logger.Error().
			Err(err).
			Str("event", "v1.command.failed").
			Str("command", command).
			Str("entity_id", id).
			Msg("upstream command failed")
		writeBadGateway(w, err)
	}
}

// RefreshResponse acknowledges a manual refresh trigger.
type RefreshResponse struct {
	Status string `json:"status"`
}

// handleRefresh implements POST /api/v1/refresh. It pokes both coordinators
// and drops the cached on-demand stats so the next reads are fresh.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api.v1")

	s.sessions.RequestRefresh()
	s.library.RequestRefresh()

	s.cache.Delete(cache.KeyServerStats)
	s.cache.Delete(cache.KeyRecordings)
	s.cache.Delete(cache.KeyLibrary)

	writeJSON(w, http.StatusAccepted, RefreshResponse{Status: "accepted"})

	logger.Info().
		Str("event", "v1.refresh.requested").
		Msg("manual refresh requested")
}

// LibraryResponse wraps the library poll snapshot with its freshness.
type LibraryResponse struct {
	UpdatedAt time.Time      `json:"updated_at"`
	Content   LibraryContent `json:"content"`
}

// handleLibraryLatest implements GET /api/v1/library/latest.
func (s *Server) handleLibraryLatest(w http.ResponseWriter, r *http.Request) {
	content, ts, ok := s.library.Snapshot()
	if !ok {
		writeServiceUnavailable(w, "library not fetched yet")
		return
	}

	writeJSON(w, http.StatusOK, LibraryResponse{UpdatedAt: ts.UTC(), Content: content})
}
