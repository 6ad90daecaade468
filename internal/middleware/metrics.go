// Package middleware provides HTTP middleware for metrics collection.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kinloop/kinloop/internal/metrics"
)

// Swappable in tests.
var recordHTTPRequest = metrics.RecordHTTPRequest

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := normalizeEndpoint(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		recordHTTPRequest(r.Method, endpoint, status, duration)
	})
}

// normalizeEndpoint collapses path parameters so metrics do not explode into
// one label value per family.
func normalizeEndpoint(path string) string {
	if rest, ok := strings.CutPrefix(path, "/api/families/"); ok {
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 2 && parts[1] == "metrics":
			return "/api/families/:id/metrics"
		case len(parts) == 2 && parts[1] == "insight":
			return "/api/families/:id/insight"
		case len(parts) == 3 && parts[1] == "insight" && parts[2] == "recompute":
			return "/api/families/:id/insight/recompute"
		}
		return "/api/families/:id"
	}

	if strings.HasPrefix(path, "/api/jobs/") && !strings.HasSuffix(path, "/stats") && !strings.HasSuffix(path, "/history") {
		return "/api/jobs/:id"
	}

	return path
}
