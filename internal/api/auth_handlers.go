package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/tribegate/tribegate/internal/logger"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
)

type exchangeRequest struct {
	Code string `json:"code"`
}

type exchangeResponse struct {
	Token string `json:"token"`
}

// handleDiscordLogin redirects the browser to the provider with a fresh state.
func (s *Server) handleDiscordLogin(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.services.Login.Begin(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// handleDiscordCallback finishes the provider round trip and hands the
// frontend a one-time code. Erased identities land on the frontend's
// deleted page.
func (s *Server) handleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		logger.Info(r.Context(), "provider denied login", "error", providerErr)
		writeError(w, r, apperrors.BadRequest("Discord login was cancelled"))
		return
	}

	code, err := s.services.Login.Complete(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		if errors.Is(err, apperrors.ErrIdentityDeleted) {
			http.Redirect(w, r, s.frontendURL("/deleted"), http.StatusFound)
			return
		}
		writeError(w, r, err)
		return
	}

	http.Redirect(w, r, s.frontendURL("/auth/callback?code="+url.QueryEscape(code)), http.StatusFound)
}

// handleExchange trades a one-time code for a session token.
func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	token, err := s.services.Login.Exchange(r.Context(), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exchangeResponse{Token: token})
}

func (s *Server) frontendURL(path string) string {
	return strings.TrimRight(s.config.FrontendURL, "/") + path
}
