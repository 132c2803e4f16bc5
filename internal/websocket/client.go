package websocket

import (
	"context"
	"encoding/json"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Client is one listener's WebSocket connection inside a session room.
type Client struct {
	hub        *Hub
	conn       *ws.Conn
	send       chan []byte
	pin        string
	listenerID string
}

// NewClient creates a Client for listenerID in the room for pin.
func NewClient(hub *Hub, conn *ws.Conn, pin, listenerID string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		pin:        pin,
		listenerID: listenerID,
	}
}

// ListenerID returns the listener this connection belongs to.
func (c *Client) ListenerID() string { return c.listenerID }

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		c.writePump(ctx)
		cancel()
	}()
	c.readPump(ctx)
}

// readPump handles listener control frames until the connection fails or
// the listener asks to leave. Frames that are not control messages are
// ignored.
func (c *Client) readPump(ctx context.Context) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != ws.MessageText {
			continue
		}
		var ctl Message
		if json.Unmarshal(data, &ctl) != nil {
			continue
		}
		switch ctl.Type {
		case TypeLeave:
			c.conn.Close(ws.StatusNormalClosure, "left")
			return
		case TypePing:
			c.enqueue(Message{Type: TypePong, PIN: c.pin})
		}
	}
}

// enqueue queues msg for this client only, dropping it when the buffer is full.
func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.rooms[c.pin][c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump drains the send channel and pings periodically. When the hub
// closes the channel the connection is closed normally.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				if c.conn != nil {
					c.conn.Close(ws.StatusNormalClosure, "session ended")
				}
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
