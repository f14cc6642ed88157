package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tribegate/tribegate/internal/auth"
	"github.com/tribegate/tribegate/internal/logger"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
)

// ContextKey is a type for context keys
type ContextKey string

const (
	// AccountIDKey is the context key for the authenticated account id
	AccountIDKey ContextKey = "account_id"
	// SessionClaimsKey is the context key for the verified session claims
	SessionClaimsKey ContextKey = "session_claims"
)

// AuthMiddleware validates session tokens issued by auth.SessionManager.
type AuthMiddleware struct {
	sessions *auth.SessionManager
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(sessions *auth.SessionManager) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// Authenticate requires an "Authorization: Bearer <session>" header. The
// account id from a valid token is put on the context and on every log line
// of the request.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			writeError(w, apperrors.ErrUnauthorized)
			return
		}

		claims, err := m.sessions.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "Token expired"
			}
			logger.Debug(r.Context(), "session rejected", "error", err)
			writeError(w, apperrors.New(apperrors.ErrCodeUnauthorized, msg, http.StatusUnauthorized))
			return
		}

		accountID, _ := claims.AccountID()
		ctx := context.WithValue(r.Context(), AccountIDKey, accountID)
		ctx = context.WithValue(ctx, SessionClaimsKey, claims)
		ctx = logger.WithAccountID(ctx, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAccountID extracts the authenticated account id from the request context
func GetAccountID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(AccountIDKey).(int64)
	return id, ok
}

// GetSessionClaims extracts the verified session claims from the request context
func GetSessionClaims(ctx context.Context) (*auth.SessionClaims, bool) {
	claims, ok := ctx.Value(SessionClaimsKey).(*auth.SessionClaims)
	return claims, ok
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError writes an error response
func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	var body errorBody
	body.Error.Code = err.Code
	body.Error.Message = err.Message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	json.NewEncoder(w).Encode(body)
}
