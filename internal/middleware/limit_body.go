package middleware

import (
	"net/http"
)

// MaxBodySize caps request bodies. The largest legitimate body is a note.
const MaxBodySize = 64 << 10

// LimitBody limits the size of request bodies
func LimitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
		}
		next.ServeHTTP(w, r)
	})
}
