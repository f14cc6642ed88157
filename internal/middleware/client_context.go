package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// ClientContextKey is the context key type for client information
type ClientContextKey string

const (
	// ClientIPKey is the context key for client IP
	ClientIPKey ClientContextKey = "client_ip"
	// UserAgentKey is the context key for user agent
	UserAgentKey ClientContextKey = "user_agent"
)

// ClientContext captures client IP and User-Agent for access logs and rate limiting
func ClientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if clientIP := getClientIP(r); clientIP != "" {
			ctx = context.WithValue(ctx, ClientIPKey, clientIP)
		}
		if userAgent := r.Header.Get("User-Agent"); userAgent != "" {
			ctx = context.WithValue(ctx, UserAgentKey, userAgent)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getClientIP extracts the client IP from the request
// Handles X-Forwarded-For, X-Real-IP headers for proxied requests
func getClientIP(r *http.Request) string {
	// X-Forwarded-For may be "client, proxy1, proxy2"; the first is the client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if net.ParseIP(r.RemoteAddr) != nil {
			return r.RemoteAddr
		}
		return ""
	}
	return ip
}

// GetClientIP retrieves the client IP from context
func GetClientIP(ctx context.Context) *string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return &ip
	}
	return nil
}

// GetUserAgent retrieves the user agent from context
func GetUserAgent(ctx context.Context) *string {
	if ua, ok := ctx.Value(UserAgentKey).(string); ok {
		return &ua
	}
	return nil
}
