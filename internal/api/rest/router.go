package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/openviking/openviking/internal/api/middleware"
	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/service"
	"github.com/openviking/openviking/internal/trace"
)

// TraceStream receives finished trace summaries for live observability
// consumers; the websocket hub implements it.
type TraceStream interface {
	BroadcastTraceSummary(models.TraceSummary) error
}

// Handlers binds the service object to the HTTP surface.
type Handlers struct {
	svc            *service.Service
	traceMaxEvents int
	stream         TraceStream
}

// SetStream attaches the live trace feed; nil keeps tracing local to the
// response.
func (h *Handlers) SetStream(stream TraceStream) {
	h.stream = stream
}

// NewHandlers creates the handler set. traceMaxEvents bounds each
// request's trace collector.
func NewHandlers(svc *service.Service, traceMaxEvents int) *Handlers {
	if traceMaxEvents <= 0 {
		traceMaxEvents = trace.DefaultMaxEvents
	}
	return &Handlers{svc: svc, traceMaxEvents: traceMaxEvents}
}

// Register mounts every route on router. The auth middleware runs outside
// this router (assembled in cmd/server); admin routes add role gates here.
func (h *Handlers) Register(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.Ready).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/resources", h.AddResources).Methods(http.MethodPost)

	api.HandleFunc("/search/find", h.Find).Methods(http.MethodPost)
	api.HandleFunc("/search/search", h.Search).Methods(http.MethodPost)
	api.HandleFunc("/search/grep", h.Grep).Methods(http.MethodPost)
	api.HandleFunc("/search/glob", h.Glob).Methods(http.MethodPost)

	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", h.ListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionId}", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionId}", h.DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{sessionId}/messages", h.AddMessage).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/commit", h.CommitSession).Methods(http.MethodPost)

	api.HandleFunc("/register/account", h.RegisterAccount).Methods(http.MethodPost)

	api.HandleFunc("/system/status", h.SystemStatus).Methods(http.MethodGet)
	api.HandleFunc("/system/wait", h.SystemWait).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	rootOnly := middleware.RequireRole(identity.RoleRoot)
	rootOrAdmin := middleware.RequireRole(identity.RoleRoot, identity.RoleAdmin)

	admin.Handle("/accounts", rootOnly(http.HandlerFunc(h.CreateAccount))).Methods(http.MethodPost)
	admin.Handle("/accounts", rootOnly(http.HandlerFunc(h.ListAccounts))).Methods(http.MethodGet)
	admin.Handle("/accounts/{accountId}", rootOnly(http.HandlerFunc(h.DeleteAccount))).Methods(http.MethodDelete)
	admin.Handle("/accounts/{accountId}/suspend", rootOnly(http.HandlerFunc(h.SuspendAccount))).Methods(http.MethodPost)
	admin.Handle("/accounts/{accountId}/resume", rootOnly(http.HandlerFunc(h.ResumeAccount))).Methods(http.MethodPost)

	admin.Handle("/accounts/{accountId}/users", rootOrAdmin(http.HandlerFunc(h.RegisterUser))).Methods(http.MethodPost)
	admin.Handle("/accounts/{accountId}/users", rootOrAdmin(http.HandlerFunc(h.ListUsers))).Methods(http.MethodGet)
	admin.Handle("/accounts/{accountId}/users/{userId}", rootOrAdmin(http.HandlerFunc(h.RemoveUser))).Methods(http.MethodDelete)
	admin.Handle("/accounts/{accountId}/users/{userId}/role", rootOnly(http.HandlerFunc(h.SetUserRole))).Methods(http.MethodPut)
	admin.Handle("/accounts/{accountId}/users/{userId}/key", rootOrAdmin(http.HandlerFunc(h.RegenerateKey))).Methods(http.MethodPost)

	admin.Handle("/tokens", rootOnly(http.HandlerFunc(h.CreateInvitationToken))).Methods(http.MethodPost)
	admin.Handle("/tokens", rootOnly(http.HandlerFunc(h.ListInvitationTokens))).Methods(http.MethodGet)
	admin.Handle("/tokens/{tokenId}", rootOnly(http.HandlerFunc(h.RevokeInvitationToken))).Methods(http.MethodDelete)

	admin.Handle("/audit", rootOrAdmin(http.HandlerFunc(h.AuditQuery))).Methods(http.MethodGet)
}
