package middleware

import (
	"net/http"
	"time"

	"github.com/tribegate/tribegate/internal/logger"
)

// AccessLog logs one line per request with status, size and latency.
// The request id comes from the context enrichment.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := NewStatusRecorder(w)

		next.ServeHTTP(rec, r)

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.StatusCode,
			"bytes", rec.Bytes,
			"duration", time.Since(start),
		}
		if ip := GetClientIP(r.Context()); ip != nil {
			args = append(args, "client_ip", *ip)
		}

		if rec.StatusCode >= http.StatusInternalServerError {
			logger.Error(r.Context(), "request completed", args...)
			return
		}
		logger.Info(r.Context(), "request completed", args...)
	})
}
