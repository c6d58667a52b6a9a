package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// normalizePath converts paths with dynamic segments to route patterns to
// prevent cardinality explosion in metrics. This maps paths like
// /consents/CN-0001 to /consents/{id}.
func normalizePath(path string) string {
	staticRoutes := map[string]bool{
		"/":                     true,
		"/governance/proposals": true,
		"/consents":             true,
		"/access-requests":      true,
		"/records":              true,
		"/audit/events":         true,
		"/health":               true,
		"/ready":                true,
		"/metrics":              true,
	}

	if staticRoutes[path] {
		return path
	}

	// /governance/proposals/{id} and /governance/proposals/{id}/votes
	if strings.HasPrefix(path, "/governance/proposals/") {
		parts := strings.Split(path, "/")
		if len(parts) == 5 && parts[4] == "votes" {
			return "/governance/proposals/{id}/votes"
		}
		if len(parts) == 4 && parts[3] != "" {
			return "/governance/proposals/{id}"
		}
	}

	// /consents/{id}, /consents/{id}/revoke, /consents/{id}/active
	if strings.HasPrefix(path, "/consents/") {
		parts := strings.Split(path, "/")
		if len(parts) == 4 && (parts[3] == "revoke" || parts[3] == "active") {
			return "/consents/{id}/" + parts[3]
		}
		if len(parts) == 3 && parts[2] != "" {
			return "/consents/{id}"
		}
	}

	// /access-requests/{id} and /access-requests/{id}/decision
	if strings.HasPrefix(path, "/access-requests/") {
		parts := strings.Split(path, "/")
		if len(parts) == 4 && parts[3] == "decision" {
			return "/access-requests/{id}/decision"
		}
		if len(parts) == 3 && parts[2] != "" {
			return "/access-requests/{id}"
		}
	}

	// /records/{id} and /records/{id}/verify
	if strings.HasPrefix(path, "/records/") {
		parts := strings.Split(path, "/")
		if len(parts) == 4 && parts[3] == "verify" {
			return "/records/{id}/verify"
		}
		if len(parts) == 3 && parts[2] != "" {
			return "/records/{id}"
		}
	}

	// Fallback: return as-is for unknown patterns so new routes keep
	// reporting something.
	return path
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// newMetricsResponseWriter creates a new metricsResponseWriter with default 200 status.
func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics is a middleware that records HTTP request metrics.
// It captures duration, request/response sizes, and request counts.
// Health check endpoints (/health, /ready) are excluded from metrics to avoid cardinality issues.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()

			mrw := newMetricsResponseWriter(w)

			requestSize := int64(0)
			if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
				if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
					requestSize = size
				}
			}

			next.ServeHTTP(mrw, r)

			duration := time.Since(start).Seconds()
			normalizedPath := normalizePath(r.URL.Path)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizedPath,
				strconv.Itoa(mrw.statusCode),
				duration,
				requestSize,
				mrw.size,
			)
		})
	}
}
