// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/ManuGH/embywatch/internal/auth"
	"github.com/ManuGH/embywatch/internal/log"
	"github.com/ManuGH/embywatch/internal/metrics"
)

// requireToken enforces API token authentication when a token is configured.
// An empty configured token leaves the API open; the startup checks warn
// loudly about that mode. The token is re-read per request so a config
// reload takes effect without a restart.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.holder.Get().APIToken
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		logger := log.WithComponentFromContext(r.Context(), "api.auth")

		reqToken := auth.ExtractToken(r)
		if reqToken == "" {
			logger.Warn().
				Str("event", "auth.missing_token").
				Str("path", r.URL.Path).
				Msg("authorization header missing")
			metrics.IncAuthFailure()
			writeUnauthorized(w)
			return
		}

		if !auth.AuthorizeToken(reqToken, token) {
			logger.Warn().
				Str("event", "auth.invalid_token").
				Str("path", r.URL.Path).
				Msg("invalid api token")
			metrics.IncAuthFailure()
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}
