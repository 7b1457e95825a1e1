package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/models"
)

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(context.Background())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

// testClient registers a bare client without a real connection; only the
// send channel matters for broadcast tests.
func addTestClient(t *testing.T, hub *Hub) *Client {
	t.Helper()
	client := &Client{
		send: make(chan []byte, 16),
		hub:  hub,
		rc:   identity.RequestContext{Role: identity.RoleRoot},
	}
	clientCtx, cancel := context.WithCancel(context.Background())
	client.ctx, client.cancel = clientCtx, cancel
	hub.register <- client

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)
	return client
}

func TestHubBroadcastTraceEvent(t *testing.T) {
	hub := newRunningHub(t)
	client := addTestClient(t, hub)

	event := models.TraceEvent{Stage: "vector", Name: "roots_search", Status: "ok"}
	require.NoError(t, hub.BroadcastTraceEvent("search.search", "tr_1", event))

	select {
	case data := <-client.send:
		var msg StreamMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "trace_event", msg.Type)
		assert.Equal(t, "search.search", msg.Operation)
		assert.Equal(t, "tr_1", msg.TraceID)
		require.NotNil(t, msg.Event)
		assert.Equal(t, "roots_search", msg.Event.Name)
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestHubBroadcastTraceSummary(t *testing.T) {
	hub := newRunningHub(t)
	client := addTestClient(t, hub)

	summary := models.TraceSummary{TraceID: "tr_2", Operation: "sessions.commit", Status: "ok"}
	require.NoError(t, hub.BroadcastTraceSummary(summary))

	select {
	case data := <-client.send:
		var msg StreamMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "trace_summary", msg.Type)
		require.NotNil(t, msg.Summary)
		assert.Equal(t, "tr_2", msg.Summary.TraceID)
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestHubUnregisterOnStop(t *testing.T) {
	hub := NewHub(context.Background())
	go hub.Run()
	addTestClient(t, hub)

	hub.Stop()
	assert.Equal(t, 0, hub.GetClientCount())
}
