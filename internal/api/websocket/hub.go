// Package websocket implements the /api/v1/system/stream live event
// feed: connected observability clients (ROOT/ADMIN only) receive the
// trace summary of each request as it finishes, multiplexed through one hub.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/pkg/metrics"
)

// StreamMessage is one frame pushed to stream clients.
type StreamMessage struct {
	Type      string            `json:"type"` // "trace_event" | "trace_summary"
	Operation string            `json:"operation,omitempty"`
	TraceID   string            `json:"trace_id,omitempty"`
	Event     *models.TraceEvent `json:"event,omitempty"`
	Summary   *models.TraceSummary `json:"summary,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Hub maintains active WebSocket connections and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub bound to ctx; call Run in a goroutine.
func NewHub(ctx context.Context) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		ctx:        hubCtx,
		cancel:     cancel,
	}
}

// Run pumps registrations and broadcasts until the context ends.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			metrics.WebSocketConnectionsActive.Set(float64(len(h.clients)))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			metrics.WebSocketConnectionsActive.Set(float64(len(h.clients)))
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client buffer full, drop the connection.
					close(client.send)
					delete(h.clients, client)
				}
			}
			metrics.WebSocketConnectionsActive.Set(float64(len(h.clients)))
			h.mu.Unlock()
		}
	}
}

// Stop closes every connection and ends Run.
func (h *Hub) Stop() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// BroadcastTraceEvent pushes one trace event to every stream client.
func (h *Hub) BroadcastTraceEvent(operation, traceID string, event models.TraceEvent) error {
	return h.send(StreamMessage{
		Type:      "trace_event",
		Operation: operation,
		TraceID:   traceID,
		Event:     &event,
		Timestamp: time.Now().UTC(),
	})
}

// BroadcastTraceSummary pushes a finished request's summary.
func (h *Hub) BroadcastTraceSummary(summary models.TraceSummary) error {
	return h.send(StreamMessage{
		Type:      "trace_summary",
		Operation: summary.Operation,
		TraceID:   summary.TraceID,
		Summary:   &summary,
		Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) send(msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
