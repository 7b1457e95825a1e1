package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openviking/openviking/internal/identity"
)

func streamServer(t *testing.T, rc *identity.RequestContext) *httptest.Server {
	t.Helper()
	hub := newRunningHub(t)
	handler := NewHandler(context.Background(), hub, nil)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rc != nil {
			r = r.WithContext(identity.WithRequestContext(r.Context(), *rc))
		}
		handler.ServeWS(w, r)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestServeWS_RejectsUserRole(t *testing.T) {
	rc := identity.RequestContext{
		User: identity.UserIdentifier{AccountID: "acme", UserID: "alice"},
		Role: identity.RoleUser,
	}
	server := streamServer(t, &rc)
	defer server.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServeWS_RejectsAnonymous(t *testing.T) {
	server := streamServer(t, nil)
	defer server.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServeWS_AcceptsAdmin(t *testing.T) {
	rc := identity.RequestContext{
		User: identity.UserIdentifier{AccountID: "acme", UserID: "boss"},
		Role: identity.RoleAdmin,
	}
	server := streamServer(t, &rc)
	defer server.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
}
