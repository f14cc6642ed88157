package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tribegate/tribegate/internal/app"
	"github.com/tribegate/tribegate/pkg/types"
)

type linkNonceRequest struct {
	Address string `json:"address"`
}

type linkNonceResponse struct {
	Nonce string `json:"nonce"`
}

type linkVerifyRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type linkVerifyResponse struct {
	Message string               `json:"message"`
	Wallet  *types.WalletBinding `json:"wallet"`
}

func (s *Server) handleLinkNonce(w http.ResponseWriter, r *http.Request) {
	var req linkNonceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	nonce, err := s.services.Wallets.IssueLinkNonce(r.Context(), actorID(r), req.Address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, linkNonceResponse{Nonce: nonce})
}

func (s *Server) handleLinkVerify(w http.ResponseWriter, r *http.Request) {
	var req linkVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	wallet, outcome, err := s.services.Wallets.LinkWallet(r.Context(), actorID(r), req.Address, req.Signature)
	if err != nil {
		writeError(w, r, err)
		return
	}

	msg := "Wallet linked"
	if outcome == app.LinkOutcomeRelinked {
		msg = "Wallet re-linked"
	}
	writeJSON(w, http.StatusOK, linkVerifyResponse{Message: msg, Wallet: wallet})
}

func (s *Server) handleUnlinkWallet(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Wallets.UnlinkWallet(r.Context(), actorID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Wallet unlinked"})
}
