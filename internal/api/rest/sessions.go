package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/pkg/validate"
)

type addMessageRequest struct {
	Role      string   `json:"role"`
	Content   string   `json:"content"`
	ToolsUsed []string `json:"tools_used"`
}

type commitRequest struct {
	Trace bool `json:"trace"`
}

func sessionIDFrom(r *http.Request) (string, error) {
	sessionID := mux.Vars(r)["sessionId"]
	if !validate.SessionID(sessionID) {
		return "", ovterrors.InvalidArgumentf("invalid session id %q", sessionID)
	}
	return sessionID, nil
}

// CreateSession allocates a fresh session.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	rc, _ := identity.FromContext(r.Context())
	sessionID, err := h.svc.Sessions.Create(r.Context(), rc)
	if err != nil {
		respondError(w, r, "session", err)
		return
	}
	respondOK(w, r, map[string]string{"session_id": sessionID})
}

// ListSessions returns the caller's sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	rc, _ := identity.FromContext(r.Context())
	sessions, err := h.svc.Sessions.List(r.Context(), rc)
	if err != nil {
		respondError(w, r, "session", err)
		return
	}
	respondOK(w, r, map[string]interface{}{"sessions": sessions})
}

// GetSession returns the full session view: transcript plus commit state.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFrom(r)
	if err != nil {
		respondError(w, r, "parse", err)
		return
	}
	rc, _ := identity.FromContext(r.Context())
	session, err := h.svc.Sessions.Load(r.Context(), rc, sessionID)
	if err != nil {
		respondError(w, r, "session", err)
		return
	}
	respondOK(w, r, session)
}

// AddMessage appends one message to a session.
func (h *Handlers) AddMessage(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFrom(r)
	if err != nil {
		respondError(w, r, "parse", err)
		return
	}
	var req addMessageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, "parse", err)
		return
	}
	rc, _ := identity.FromContext(r.Context())
	err = h.svc.Sessions.AddMessage(r.Context(), rc, sessionID, models.SessionMessage{
		Role:      req.Role,
		Content:   req.Content,
		ToolsUsed: req.ToolsUsed,
	})
	if err != nil {
		respondError(w, r, "session", err)
		return
	}
	respondOK(w, r, map[string]interface{}{"appended": true})
}

// CommitSession freezes the session and runs memory extraction.
func (h *Handlers) CommitSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFrom(r)
	if err != nil {
		respondError(w, r, "parse", err)
		return
	}
	var req commitRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, "parse", err)
		return
	}
	r, _ = h.withCollector(r, "sessions.commit", req.Trace)

	rc, _ := identity.FromContext(r.Context())
	result, err := h.svc.Sessions.Commit(r.Context(), rc, sessionID)
	if err != nil {
		respondError(w, r, "memory", err)
		return
	}
	respondOK(w, r, result)
}

// DeleteSession removes the session and the memories it created.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFrom(r)
	if err != nil {
		respondError(w, r, "parse", err)
		return
	}
	rc, _ := identity.FromContext(r.Context())
	if err := h.svc.Sessions.Delete(r.Context(), rc, sessionID); err != nil {
		respondError(w, r, "session", err)
		return
	}
	respondOK(w, r, map[string]interface{}{"deleted": true})
}
