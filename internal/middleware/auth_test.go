package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tribegate/tribegate/internal/auth"
	"github.com/tribegate/tribegate/internal/logger"
	"github.com/tribegate/tribegate/pkg/types"
)

func newSessions(t *testing.T) *auth.SessionManager {
	t.Helper()
	m, err := auth.NewSessionManager("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	return m
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body.Error.Code, body.Error.Message
}

func TestAuthenticate_ValidSession(t *testing.T) {
	sessions := newSessions(t)
	token, err := sessions.Issue(&types.Account{ID: 7, ExternalID: "d-7", Username: "seven"}, true)
	require.NoError(t, err)

	var gotID, logID int64
	var gotClaims *auth.SessionClaims
	handler := NewAuthMiddleware(sessions).Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = GetAccountID(r.Context())
		logID, _ = logger.GetAccountID(r.Context())
		gotClaims, _ = GetSessionClaims(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, int64(7), gotID)
	assert.Equal(t, int64(7), logID)
	require.NotNil(t, gotClaims)
	assert.True(t, gotClaims.IsSuperAdmin)
}

func TestAuthenticate_Rejections(t *testing.T) {
	sessions := newSessions(t)

	expired := newSessions(t)
	expired.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	stale, err := expired.Issue(&types.Account{ID: 7}, false)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing_header", "", "Authentication required"},
		{"wrong_scheme", "Basic dXNlcjpwYXNz", "Authentication required"},
		{"empty_token", "Bearer ", "Authentication required"},
		{"garbage_token", "Bearer not-a-jwt", "Invalid token"},
		{"expired_token", "Bearer " + stale, "Token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewAuthMiddleware(sessions).Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			code, message := decodeError(t, rr)
			assert.Equal(t, "unauthorized", code)
			assert.Equal(t, tt.message, message)
		})
	}
}
