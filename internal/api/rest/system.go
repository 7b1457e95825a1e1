package rest

import (
	"net/http"
	"time"

	"github.com/openviking/openviking/internal/identity"
)

type waitRequest struct {
	Timeout float64 `json:"timeout"` // seconds; 0 = wait indefinitely
}

// Health is the liveness probe; unauthenticated.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready probes FS, vector DB, and key manager, returning 503 with the
// per-component status object when any check fails; unauthenticated.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	checks, allOK := h.svc.Ready(r.Context())
	status := http.StatusOK
	overall := "ok"
	if !allOK {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{"status": overall, "checks": checks})
}

// SystemStatus reports initialization state plus the caller's identity.
func (h *Handlers) SystemStatus(w http.ResponseWriter, r *http.Request) {
	rc, _ := identity.FromContext(r.Context())
	result := map[string]interface{}{
		"initialized": true,
		"role":        rc.Role,
	}
	if rc.User.UserID != "" {
		result["account_id"] = rc.AccountID()
		result["user_id"] = rc.User.UserID
	}
	if h.svc.Recorder != nil {
		result["recorder"] = h.svc.Recorder.GetStats()
	}
	respondOK(w, r, result)
}

// SystemWait blocks until background processing drains or the timeout
// expires; on expiry it returns the partial status.
func (h *Handlers) SystemWait(w http.ResponseWriter, r *http.Request) {
	var req waitRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, "parse", err)
		return
	}
	timeout := time.Duration(req.Timeout * float64(time.Second))
	status := h.svc.WaitProcessed(r.Context(), timeout)
	respondOK(w, r, status)
}
