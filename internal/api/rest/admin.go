package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/ovuri"
	"github.com/openviking/openviking/internal/pkg/validate"
)

type createAccountRequest struct {
	AccountID   string `json:"account_id"`
	AdminUserID string `json:"admin_user_id"`
}

type registerUserRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type setRoleRequest struct {
	Role string `json:"role"`
}

type createTokenRequest struct {
	MaxUses   *int       `json:"max_uses"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// checkAccountAccess narrows ADMIN callers to their own account; ROOT
// passes anything.
func checkAccountAccess(rc identity.RequestContext, accountID string) error {
	if rc.IsAdmin() && rc.AccountID() != accountID {
		return ovterrors.PermissionDeniedf("ADMIN can only manage account %q", rc.AccountID())
	}
	return nil
}

func accountIDFrom(r *http.Request) (string, error) {
	accountID := mux.Vars(r)["accountId"]
	if !validate.AccountID(accountID) {
		return "", ovterrors.InvalidArgumentf("invalid account id %q", accountID)
	}
	return accountID, nil
}

// CreateAccount creates an account with its first ADMIN (ROOT only).
func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, "parse", err)
		return
	}
	if !validate.AccountID(req.AccountID) || !validate.UserID(req.AdminUserID) {
		respondError(w, r, "parse", ovterrors.InvalidArgumentf("invalid account_id or admin_user_id"))
		return
	}
	key, err := h.svc.Keys.CreateAccount(r.Context(), req.AccountID, req.AdminUserID)
	if err != nil {
		respondError(w, r, "admin", err)
		return
	}
	respondOK(w, r, map[string]string{
		"account_id":    req.AccountID,
		"admin_user_id": req.AdminUserID,
		"user_key":      key,
	})
}

// ListAccounts lists every account (ROOT only).
func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, h.svc.Keys.ListAccounts())
}

// DeleteAccount removes an account and cascades: FS subtree, vector
// records, key index, persisted registry.
func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFrom(r)
	if err != nil {
		respondError(w, r, "parse", err)
		return
	}
	if !h.svc.Keys.HasAccount(accountID) {
		respondError(w, r, "admin", ovterrors.NotFoundf("account %q does not exist", accountID))
		return
	}

	// (a) FS subtree. A synthetic ROOT-scoped path keeps this off the
	// caller's tenant prefix.
	rootCtx := identity.RequestContext{Role: identity.RoleRoot}
	if err := h.svc.FS.Rm(r.Context(), rootCtx, ovuri.Join("viking://", accountID), true); err != nil && !ovterrors.Is(err, ovterrors.NotFound) {
		respondError(w, r, "fs", err)
		return
	}
	// (b) vector records.
	if _, err := h.svc.Gateway.DeleteAccountData(r.Context(), accountID); err != nil {
		respondError(w, r, "vector", err)
		return
	}
	// (c)+(d) key index and persisted registry.
	if err := h.svc.Keys.DeleteAccount(r.Context(), accountID); err != nil {
		respondError(w, r, "admin", err)
		return
	}
	respondOK(w, r, map[string]bool{"deleted": true})
}

// SuspendAccount soft-freezes an account (ROOT only).
func (h *Handlers) SuspendAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFrom(r)
	if err != nil {
		respondError(w, r, "parse", err)
		return
	}
	if err := h.svc.Keys.SuspendAccount(r.Context(), accountID); err != nil {
		respondError(w, r, "admin", err)
		return
	}
	respondOK(w, r, map[string]bool{"suspended": true})
}

// ResumeAccount lifts a suspension (ROOT only).
func (h *Handlers) ResumeAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFrom(r)
	if err != nil {
		respondError(w, r, "parse", err)
		return
	}
	if err := h.svc.Keys.ResumeAccount(r.Context(), accountID); err != nil {
		respondError(w, r, "admin", err)
		return
	}
	respondOK(w, r, map[string]bool{"suspended": false})
}

// RegisterUser adds a user to an account (ROOT or same-account ADMIN).
func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFrom(r)
	if err != nil {
		respondError(w, r, "parse", err)
		return
	}
	rc, _ := identity.FromContext(r.Context())
	if err := checkAccountAccess(rc, accountID); err != nil {
		respondError(w, r, "admin", err)
		return
	}
	var req registerUserRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, "parse", err)
		return
	}
	if req.Role == "" {
		req.Role = string(identity.RoleUser)
	}
	if !validate.UserID(req.UserID) || !validate.Role(req.Role) {
		respondError(w, r, "parse", ovterrors.InvalidArgumentf("invalid user_id or role"))
		return
	}
	key, err := h.svc.Keys.RegisterUser(r.Context(), accountID, req.UserID, identity.Role(req.Role))
	if err != nil {
		respondError(w, r, "admin", err)
		return
	}
	respondOK(w, r, map[string]string{
		"account_id": accountID,
		"user_id":    req.UserID,
		"user_key":   key,
	})
}

// ListUsers lists the users of one account (ROOT or same-account ADMIN).
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFrom(r)
	if err != nil {
		respondError(w, r, "parse", err)
		return
	}
	rc, _ := identity.FromContext(r.Context())
	if err := checkAccountAccess(rc, accountID); err != nil {
		respondError(w, r, "admin", err)
		return
	}
	users, err := h.svc.Keys.ListUsers(accountID)
	if err != nil {
		respondError(w, r, "admin", err)
		return
	}
	respondOK(w, r, users)
}

// RemoveUser deletes a user (ROOT or same-account ADMIN).
func (h *Handlers) RemoveUser(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFrom(r)
	if err != nil {
		respondError(w, r, "parse", err)
		return
	}
	rc, _ := identity.FromContext(r.Context())
	if err := checkAccountAccess(rc, accountID); err != nil {
		respondError(w, r, "admin", err)
		return
	}
	userID := mux.Vars(r)["userId"]
	if err := h.svc.Keys.RemoveUser(r.Context(), accountID, userID); err != nil {
		respondError(w, r, "admin", err)
		return
	}
	respondOK(w, r, map[string]bool{"deleted": true})
}

// SetUserRole changes a user's role (ROOT only).
func (h *Handlers) SetUserRole(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFrom(r)
	if err != nil {
		respondError(w, r, "parse", err)
		return
	}
	var req setRoleRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, "parse", err)
		return
	}
	if !validate.Role(req.Role) {
		respondError(w, r, "parse", ovterrors.InvalidArgumentf("invalid role %q", req.Role))
		return
	}
	userID := mux.Vars(r)["userId"]
	if err := h.svc.Keys.SetRole(r.Context(), accountID, userID, identity.Role(req.Role)); err != nil {
		respondError(w, r, "admin", err)
		return
	}
	respondOK(w, r, map[string]string{"account_id": accountID, "user_id": userID, "role": req.Role})
}

// RegenerateKey rotates a user's key (ROOT or same-account ADMIN).
func (h *Handlers) RegenerateKey(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFrom(r)
	if err != nil {
		respondError(w, r, "parse", err)
		return
	}
	rc, _ := identity.FromContext(r.Context())
	if err := checkAccountAccess(rc, accountID); err != nil {
		respondError(w, r, "admin", err)
		return
	}
	userID := mux.Vars(r)["userId"]
	key, err := h.svc.Keys.RegenerateKey(r.Context(), accountID, userID)
	if err != nil {
		respondError(w, r, "admin", err)
		return
	}
	respondOK(w, r, map[string]string{"user_key": key})
}

// CreateInvitationToken mints a registration token (ROOT only).
func (h *Handlers) CreateInvitationToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, "parse", err)
		return
	}
	rc, _ := identity.FromContext(r.Context())
	createdBy := string(rc.Role)
	if rc.User.UserID != "" {
		createdBy = rc.User.UserID
	}
	token, err := h.svc.Keys.CreateInvitationToken(r.Context(), createdBy, req.MaxUses, req.ExpiresAt)
	if err != nil {
		respondError(w, r, "admin", err)
		return
	}
	respondOK(w, r, token)
}

// ListInvitationTokens lists outstanding tokens (ROOT only).
func (h *Handlers) ListInvitationTokens(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, h.svc.Keys.ListInvitationTokens())
}

// RevokeInvitationToken deletes a token (ROOT only).
func (h *Handlers) RevokeInvitationToken(w http.ResponseWriter, r *http.Request) {
	tokenID := mux.Vars(r)["tokenId"]
	if err := h.svc.Keys.RevokeInvitationToken(r.Context(), tokenID); err != nil {
		respondError(w, r, "admin", err)
		return
	}
	respondOK(w, r, map[string]bool{"revoked": true})
}

// AuditQuery returns the most recent admin audit records.
func (h *Handlers) AuditQuery(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	records, err := h.svc.Audit.Query(r.Context(), limit)
	if err != nil {
		respondError(w, r, "audit", err)
		return
	}
	respondOK(w, r, map[string]interface{}{"records": records})
}
