package websocket

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openviking/openviking/internal/api/middleware"
	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/ovterrors"
)

// Handler upgrades /api/v1/system/stream requests. The stream carries
// trace summaries for every tenant, so it is gated to ROOT and ADMIN; the
// auth middleware has already bound the identity by the time we run.
type Handler struct {
	hub      *Hub
	ctx      context.Context
	upgrader websocket.Upgrader
}

// NewHandler creates the stream handler with an origin allowlist.
func NewHandler(ctx context.Context, hub *Hub, allowedOrigins []string) *Handler {
	originMap := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originMap[strings.ToLower(origin)] = true
	}

	return &Handler{
		hub: hub,
		ctx: ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Native clients without an Origin header; identity
					// gating below still applies.
					return true
				}
				allowed := originMap[strings.ToLower(origin)]
				if !allowed {
					log.Printf("websocket connection rejected from origin %s", origin)
				}
				return allowed
			},
		},
	}
}

// ServeWS authenticates by role and upgrades the connection.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	rc, ok := identity.FromContext(r.Context())
	if !ok || (!rc.IsRoot() && !rc.IsAdmin()) {
		middleware.WriteError(w, http.StatusForbidden, ovterrors.PermissionDenied, "stream requires ROOT or ADMIN")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	client := NewClient(h.ctx, h.hub, conn, uuid.NewString(), rc)
	h.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
