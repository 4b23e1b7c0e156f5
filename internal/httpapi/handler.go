package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

// NewHandler returns the production handler: mux, access log and metrics,
// gzip for clients that accept it.
//
// Tests can still use NewMux directly to avoid noisy logs unless needed.
func NewHandler(opt Options) http.Handler {
	return gzhttp.GzipHandler(withObservability(NewMux(opt)))
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}

		pattern := r.Pattern
		if pattern == "" {
			pattern = r.Method + " (unmatched)"
		}

		metricsIncRequest(pattern, status)

		// Never log the query string or bodies: links carry credentials.
		if r.URL.Path != "/healthz" && r.URL.Path != "/metrics" {
			slog.Info("http",
				"method", r.Method,
				"path", r.URL.Path,
				"pattern", pattern,
				"status", status,
				"dur", time.Since(start).Round(time.Millisecond),
				"bytes", sw.bytes,
			)
		}
	})
}
