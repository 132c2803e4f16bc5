// Package notify fans admin notifications out to the log, an email address
// and a plain JSON webhook. Every channel is optional and a failing channel
// never affects the others or the caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	subjectPrefix  = "[AirLink] "
	channelTimeout = 10 * time.Second
)

type Config struct {
	Email      EmailConfig
	WebhookURL string
}

// Sent reports which channels accepted a notification.
type Sent struct {
	Console bool `json:"console"`
	Email   bool `json:"email"`
	Webhook bool `json:"webhook"`
}

// Status reports which channels are configured.
type Status struct {
	Email   bool `json:"email"`
	Webhook bool `json:"webhook"`
}

type Notifier struct {
	email      *EmailClient
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Notifier)

func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) {
		n.httpClient = c
		n.email.httpClient = c
	}
}

func New(cfg Config, logger *slog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		email:      NewEmailClient(cfg.Email),
		webhookURL: cfg.WebhookURL,
		httpClient: &http.Client{Timeout: channelTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Status returns the configured channels. A nil Notifier has none.
func (n *Notifier) Status() Status {
	if n == nil {
		return Status{}
	}
	return Status{Email: n.email.Configured(), Webhook: n.webhookURL != ""}
}

// Notify sends title and payload on every configured channel. It is a no-op
// on a nil Notifier.
func (n *Notifier) Notify(ctx context.Context, title string, payload map[string]any) Sent {
	var sent Sent
	if n == nil {
		return sent
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), channelTimeout)
	defer cancel()

	n.logger.Info("admin notification", "title", title, "payload", payload)
	sent.Console = true

	if n.email.Configured() {
		text, _ := json.MarshalIndent(payload, "", "  ")
		if err := n.email.Send(ctx, subjectPrefix+title, string(text)); err != nil {
			n.logger.Warn("notify email", "title", title, "error", err)
		} else {
			sent.Email = true
		}
	}

	if n.webhookURL != "" {
		if err := n.postWebhook(ctx, title, payload); err != nil {
			n.logger.Warn("notify webhook", "title", title, "error", err)
		} else {
			sent.Webhook = true
		}
	}
	return sent
}

func (n *Notifier) postWebhook(ctx context.Context, title string, payload map[string]any) error {
	body, err := json.Marshal(map[string]any{"title": title, "payload": payload})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification webhook: status %d", resp.StatusCode)
	}
	return nil
}
