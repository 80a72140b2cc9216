// Package middleware provides the request-correlation wrapper applied
// to every inbound request: request-ID assignment and a structured
// per-request access log.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ensemblehq/inference-proxy/internal/util"
)

type requestIDKey struct{}

// RequestIDFrom returns the request ID assigned by Logging, or "" if
// none was assigned (e.g. in a unit test calling the handler directly).
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Logging assigns a request ID, wraps the ResponseWriter to capture
// the status code, and logs one line per request on completion.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := util.GenerateRequestID()

			ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
			r = r.WithContext(ctx)

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			logger.Info("request handled",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"client_ip", util.GetClientIP(r, false, nil),
				"status", rw.status,
				"bytes", rw.bytesWritten,
				"duration", time.Since(start),
			)
		})
	}
}

// responseWriter captures the status code and byte count written
// while preserving http.Flusher so streaming handlers keep working
// through the middleware chain.
type responseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int
	wroteHeader  bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
