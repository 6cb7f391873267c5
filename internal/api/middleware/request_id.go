// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ManuGH/embywatch/internal/log"
)

// HeaderRequestID carries the correlation ID between client and server.
const HeaderRequestID = "X-Request-ID"

// RequestID adds a unique ID to every request. An incoming ID is reused so
// callers can correlate across services; otherwise a fresh UUID is minted.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, reqID)
		ctx := log.ContextWithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
