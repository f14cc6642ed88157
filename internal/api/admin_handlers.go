package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tribegate/tribegate/internal/app"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
	"github.com/tribegate/tribegate/pkg/types"
)

type updateUserRequest struct {
	Username *string `json:"username"`
	IsAdmin  *bool   `json:"isAdmin"`
}

type tribeRequest struct {
	Name string `json:"name"`
}

type addMemberRequest struct {
	UserID  accountID `json:"userId"`
	IsAdmin bool      `json:"isAdmin"`
}

// accountID accepts an account id as a JSON number or string; ids are
// rendered as strings.
type accountID int64

func (id *accountID) UnmarshalJSON(data []byte) error {
	n, err := strconv.ParseInt(string(bytes.Trim(data, `"`)), 10, 64)
	if err != nil {
		return apperrors.Validation("invalid user id")
	}
	*id = accountID(n)
	return nil
}

type usersResponse struct {
	Users   []*types.Account `json:"users"`
	Page    int              `json:"page"`
	PerPage int              `json:"perPage"`
}

type tribesResponse struct {
	Tribes []string `json:"tribes"`
}

// =============================================================================
// Users
// =============================================================================

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	perPage, err := queryInt(r, "per_page")
	if err != nil {
		writeError(w, r, err)
		return
	}

	users, err := s.services.Admin.ListUsers(r.Context(), actorID(r), page, perPage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usersResponse{Users: users, Page: max(page, 1), PerPage: perPage})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.services.Admin.UpdateUser(r.Context(), actorID(r), userID, app.UpdateUserRequest{
		Username: req.Username,
		IsAdmin:  req.IsAdmin,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// =============================================================================
// Tribes
// =============================================================================

func (s *Server) handleListTribes(w http.ResponseWriter, r *http.Request) {
	tribes, err := s.services.Admin.ListTribes(r.Context(), actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tribesResponse{Tribes: tribes})
}

func (s *Server) handleCreateTribe(w http.ResponseWriter, r *http.Request) {
	var req tribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	tribe, err := s.services.Admin.CreateTribe(r.Context(), actorID(r), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tribe)
}

func (s *Server) handleRenameTribe(w http.ResponseWriter, r *http.Request) {
	var req tribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.services.Admin.RenameTribe(r.Context(), actorID(r), chi.URLParam(r, "name"), req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Tribe renamed"})
}

func (s *Server) handleAddTribeMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.UserID <= 0 {
		writeError(w, r, apperrors.Validation("userId is required"))
		return
	}

	err := s.services.Admin.AddMember(r.Context(), actorID(r),
		chi.URLParam(r, "name"), r.URL.Query().Get("tribe"), int64(req.UserID), req.IsAdmin)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Member added"})
}

func (s *Server) handleRemoveTribeMember(w http.ResponseWriter, r *http.Request) {
	userID, err := parseAccountID(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = s.services.Admin.RemoveMember(r.Context(), actorID(r),
		chi.URLParam(r, "name"), r.URL.Query().Get("tribe"), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Member removed"})
}

// =============================================================================
// Wallets and audit
// =============================================================================

func (s *Server) handleForceDeleteWallet(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Wallets.ForceDeleteWallet(r.Context(), actorID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Wallet deleted"})
}

func (s *Server) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	var (
		q   app.AuditQuery
		err error
	)
	if q.ActorID, err = queryInt64Ptr(r, "actor"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.TargetID, err = queryInt64Ptr(r, "target"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.Offset, err = queryInt(r, "offset"); err != nil {
		writeError(w, r, err)
		return
	}
	q.Action = r.URL.Query().Get("action")

	page, err := s.services.Admin.QueryAudit(r.Context(), actorID(r), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
