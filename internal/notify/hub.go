package notify

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Hub maintains the set of connected clients and fans events out to them.
// A client subscribed with user id 0 receives every event; otherwise only
// events addressed to its user.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify delivers the event to every matching client. Marshal failures are
// logged and dropped; a slow client loses the event rather than blocking.
func (h *Hub) Notify(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.userID != 0 && c.userID != event.UserID {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop the event rather than block
		}
	}
}
