package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/airlink/internal/notify"
)

type NotifyHandler struct {
	notifier *notify.Notifier
	logger   *slog.Logger
}

func NewNotifyHandler(n *notify.Notifier, logger *slog.Logger) *NotifyHandler {
	return &NotifyHandler{notifier: n, logger: logger}
}

// Config reports which notification channels are configured.
func (h *NotifyHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.notifier.Status())
}

type notifyTestRequest struct {
	Title   string         `json:"title"`
	Payload map[string]any `json:"payload"`
}

// Test sends a notification on every configured channel and reports which
// accepted it.
func (h *NotifyHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req notifyTestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		req.Title = "Test Notification"
	}
	if req.Payload == nil {
		req.Payload = map[string]any{"message": "test"}
	}
	sent := h.notifier.Notify(r.Context(), req.Title, req.Payload)
	writeJSON(w, http.StatusOK, map[string]any{"sent": sent})
}
