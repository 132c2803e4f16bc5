package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message is a notification pushed to the listeners of one session room.
type Message struct {
	Type   string         `json:"type"`
	PIN    string         `json:"pin"`
	Reason string         `json:"reason,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

const (
	TypeSessionEnded  = "session_ended"
	TypeListenerCount = "listener_count"

	// Sent by listeners.
	TypeLeave = "leave"
	TypePing  = "ping"
	TypePong  = "pong"
)

// Hub groups live listener connections into rooms keyed by session PIN.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds a client to its PIN's room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.pin]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.pin] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from its room and closes its send channel.
// It is a no-op for a client that was already removed.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	h.remove(c)
	h.mu.Unlock()
}

func (h *Hub) remove(c *Client) {
	room, ok := h.rooms[c.pin]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.pin)
	}
}

// Broadcast sends a message to every client in the room for pin.
func (h *Hub) Broadcast(pin string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[pin] {
		select {
		case c.send <- data:
		default:
			// buffer full, drop
		}
	}
}

// Disband tells every client in the room that the session is over, then
// closes their connections. It returns the number of clients removed.
func (h *Hub) Disband(pin, reason string) int {
	data, err := json.Marshal(Message{Type: TypeSessionEnded, PIN: pin, Reason: reason})
	if err != nil {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[pin]
	n := 0
	for c := range room {
		select {
		case c.send <- data:
		default:
		}
		h.remove(c)
		n++
	}
	if n > 0 {
		h.logger.Info("room disbanded", "pin", pin, "clients", n, "reason", reason)
	}
	return n
}

// ClientCount returns the number of clients across all rooms.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// RoomSize returns the number of clients connected under pin.
func (h *Hub) RoomSize(pin string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[pin])
}
