// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ManuGH/embywatch/internal/log"
)

// RequestLogger emits one structured completion log per request. It sits
// inside RequestID so the correlation ID is already on the context.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger := log.WithComponentFromContext(r.Context(), "api")
		evt := logger.Info()
		switch {
		case ww.Status() >= 500:
			evt = logger.Error()
		case ww.Status() >= 400:
			evt = logger.Warn()
		}
		evt.
			Str("event", "http.request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("request completed")
	})
}
