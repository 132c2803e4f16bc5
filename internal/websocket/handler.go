package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	ws "github.com/coder/websocket"
)

// Presence checks that a listener may attach to a room and releases the
// listener when its connection drops.
type Presence interface {
	Verify(ctx context.Context, pin, listenerID string) error
	Release(ctx context.Context, listenerID string) error
}

// HandleWebSocket upgrades GET /ws/{pin}?listener_id=... and runs the
// connection as a member of the session room. A dropped connection
// releases the listener's seat.
func HandleWebSocket(hub *Hub, presence Presence, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pin := strings.ToUpper(strings.TrimSpace(r.PathValue("pin")))
		listenerID := r.URL.Query().Get("listener_id")
		if pin == "" || listenerID == "" {
			http.Error(w, "pin and listener_id are required", http.StatusBadRequest)
			return
		}
		if err := presence.Verify(r.Context(), pin, listenerID); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, pin, listenerID)
		client.Run(r.Context())

		if err := presence.Release(context.WithoutCancel(r.Context()), listenerID); err != nil {
			logger.Warn("release listener", "listener_id", listenerID, "error", err)
		}
	}
}
