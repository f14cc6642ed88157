package middleware

import (
	"net/http"

	"github.com/rs/xid"

	"github.com/tribegate/tribegate/internal/logger"
)

// maxRequestIDLength bounds an upstream-supplied request id.
const maxRequestIDLength = 64

// RequestID tags each request with an id, reusing a sane upstream
// X-Request-ID, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = xid.New().String()
		}

		ctx := logger.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
