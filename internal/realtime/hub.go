// Package realtime runs authenticated websocket sessions: room and personal
// broadcast groups, presence, and the chat event handlers.
package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oggyb/muzz-connect/internal/metrics"
)

// Hub tracks live clients and their broadcast groups. A group key is a room
// id or a personal channel (room.Personal).
//
// Broadcasts take the hub lock exclusively, so every client receives frames
// in the order the broadcasts were issued.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
	groups  map[string]map[string]*Client
	log     *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]*Client),
		log:     log.With("component", "realtime_hub"),
	}
}

// Register adds c to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.id] = c
	metrics.WsConnections.Inc()
}

// Unregister removes c from every group and closes its send queue.
// Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	for key := range c.groups {
		h.leaveLocked(key, c)
	}
	c.closeSend()
	metrics.WsConnections.Dec()
}

// Join adds c to the group key.
func (h *Hub) Join(key string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; !ok {
		return
	}
	members := h.groups[key]
	if members == nil {
		members = make(map[string]*Client)
		h.groups[key] = members
	}
	members[c.id] = c
	c.groups[key] = struct{}{}
}

// Leave removes c from the group key.
func (h *Hub) Leave(key string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(key, c)
}

func (h *Hub) leaveLocked(key string, c *Client) {
	delete(c.groups, key)
	members := h.groups[key]
	if members == nil {
		return
	}
	delete(members, c.id)
	if len(members) == 0 {
		delete(h.groups, key)
	}
}

// Broadcast enqueues frame for every member of key except `except`
// (which may be nil) and returns how many clients received it.
func (h *Hub) Broadcast(key string, frame []byte, except *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, c := range h.groups[key] {
		if c == except {
			continue
		}
		if h.deliverLocked(c, frame) {
			n++
		}
	}
	return n
}

// BroadcastAll enqueues frame for every connected client except `except`.
func (h *Hub) BroadcastAll(frame []byte, except *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, c := range h.clients {
		if c == except {
			continue
		}
		if h.deliverLocked(c, frame) {
			n++
		}
	}
	return n
}

// Send enqueues frame for a single client.
func (h *Hub) Send(c *Client, frame []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; !ok {
		return false
	}
	return h.deliverLocked(c, frame)
}

// deliverLocked drops a client whose send buffer is full.
func (h *Hub) deliverLocked(c *Client, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		h.log.Warn("dropping slow client", "user", c.userID, "conn", c.id)
		h.removeLocked(c)
		return false
	}
}

// BroadcastOutside enqueues frame for every member of key that is not also
// a member of other. Membership is checked per connection.
func (h *Hub) BroadcastOutside(key, other string, frame []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, c := range h.groups[key] {
		if _, in := c.groups[other]; in {
			continue
		}
		if h.deliverLocked(c, frame) {
			n++
		}
	}
	return n
}

// Serve blocks until ctx is done, then disconnects every client.
// It satisfies suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.removeLocked(c)
	}
	h.log.Info("realtime hub stopped")
	return ctx.Err()
}

func (h *Hub) String() string { return "realtime-hub" }
