package rest

import (
	"net/http"

	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/pkg/validate"
)

type registerAccountRequest struct {
	InvitationToken string `json:"invitation_token"`
	AccountID       string `json:"account_id"`
	AdminUserID     string `json:"admin_user_id"`
}

// RegisterAccount creates an account from an invitation token; this is
// the only unauthenticated mutation in the API.
func (h *Handlers) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req registerAccountRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, "parse", err)
		return
	}
	if req.InvitationToken == "" {
		respondError(w, r, "parse", ovterrors.InvalidArgumentf("invitation_token is required"))
		return
	}
	if !validate.AccountID(req.AccountID) || !validate.UserID(req.AdminUserID) {
		respondError(w, r, "parse", ovterrors.InvalidArgumentf("invalid account_id or admin_user_id"))
		return
	}
	key, err := h.svc.Keys.CreateAccountWithToken(r.Context(), req.InvitationToken, req.AccountID, req.AdminUserID)
	if err != nil {
		respondError(w, r, "register", err)
		return
	}
	respondOK(w, r, map[string]string{
		"account_id":    req.AccountID,
		"admin_user_id": req.AdminUserID,
		"admin_key":     key,
	})
}
