package notify

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event kinds broadcast to connected UI sessions.
const (
	EventThreadUpdated   = "thread_updated"
	EventPendingMessages = "pending_messages"
	EventTyping          = "typing"
)

// Event is the JSON payload broadcast over the notification socket.
type Event struct {
	Kind     string `json:"kind"`
	ThreadID int64  `json:"threadId,omitempty"`
}

// Client wraps one WebSocket connection to a UI session.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// Hub broadcasts inbound pipeline events to connected UI sessions.
// It serves a single account, so all sessions receive every event; the
// per-hub limit only guards against runaway reconnect loops.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	maxSessions int
}

// NewHub creates a Hub with the given session limit.
func NewHub(maxSessions int) *Hub {
	if maxSessions <= 0 {
		maxSessions = 10
	}
	return &Hub{
		clients:     make(map[*Client]struct{}),
		maxSessions: maxSessions,
	}
}

// Register adds a WebSocket connection. If the session limit is
// exceeded, the new connection is closed and nil is returned.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.maxSessions {
		log.Printf("notify: session limit (%d) exceeded, closing new connection", h.maxSessions)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many sessions"),
			time.Time{},
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	h.clients[client] = struct{}{}
	return client
}

// Unregister removes a client and closes its connection.
func (h *Hub) Unregister(client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()

	_ = client.conn.Close()
}

// ActiveSessions returns the number of connected sessions.
func (h *Hub) ActiveSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ThreadUpdated tells every session that a conversation changed.
func (h *Hub) ThreadUpdated(threadID int64) {
	h.broadcast(Event{Kind: EventThreadUpdated, ThreadID: threadID})
}

// PendingMessages tells every session that envelopes are waiting for
// key material to arrive.
func (h *Hub) PendingMessages() {
	h.broadcast(Event{Kind: EventPendingMessages})
}

// TypingChanged tells every session that the typist set of a thread
// changed.
func (h *Hub) TypingChanged(threadID int64) {
	h.broadcast(Event{Kind: EventTyping, ThreadID: threadID})
}

func (h *Hub) broadcast(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("notify: failed to encode %s event: %v", event.Kind, err)
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, payload)
		client.mu.Unlock()
		if err != nil {
			log.Printf("notify: failed to write %s event: %v", event.Kind, err)
			// Best-effort cleanup: unregister this client.
			go h.Unregister(client)
		}
	}
}
