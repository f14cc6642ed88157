package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tribegate/tribegate/internal/app"
)

type grantAdminRequest struct {
	WalletID *string `json:"walletId"`
}

type noteRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roster, err := s.services.Roster.List(r.Context(), actorID(r), app.RosterRequest{
		Tribe:  q.Get("tribe"),
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
		Search: q.Get("search"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

func (s *Server) handleRosterMember(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "audit_page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	perPage, err := queryInt(r, "audit_per_page")
	if err != nil {
		writeError(w, r, err)
		return
	}

	detail, err := s.services.Roster.Member(r.Context(), actorID(r),
		r.URL.Query().Get("tribe"), chi.URLParam(r, "externalId"), page, perPage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleGrantAdmin(w http.ResponseWriter, r *http.Request) {
	var req grantAdminRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.WalletID != nil && *req.WalletID == "" {
		req.WalletID = nil
	}

	err := s.services.Roster.GrantAdmin(r.Context(), actorID(r),
		r.URL.Query().Get("tribe"), chi.URLParam(r, "externalId"), req.WalletID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Admin granted"})
}

func (s *Server) handleRevokeAdmin(w http.ResponseWriter, r *http.Request) {
	err := s.services.Roster.RevokeAdmin(r.Context(), actorID(r),
		r.URL.Query().Get("tribe"), chi.URLParam(r, "externalId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Admin revoked"})
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.services.Notes.List(r.Context(), actorID(r),
		r.URL.Query().Get("tribe"), chi.URLParam(r, "externalId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	note, err := s.services.Notes.Create(r.Context(), actorID(r),
		r.URL.Query().Get("tribe"), chi.URLParam(r, "externalId"), req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleEditNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	note, err := s.services.Notes.Edit(r.Context(), actorID(r), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}
