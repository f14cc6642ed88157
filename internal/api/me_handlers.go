package api

import "net/http"

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	profile, err := s.services.Accounts.Me(r.Context(), actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleDeleteMe erases the caller. The session token stays
// cryptographically valid until expiry but resolves to an anonymized account.
func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Accounts.DeleteMe(r.Context(), actorID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Account deleted"})
}
