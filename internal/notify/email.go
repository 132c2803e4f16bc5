package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultPostmarkURL = "https://api.postmarkapp.com/email"

// EmailConfig configures the Postmark channel.
type EmailConfig struct {
	ServerToken string
	From        string
	To          string
	// BaseURL overrides the Postmark endpoint.
	BaseURL string
}

// EmailClient sends admin notifications through Postmark.
type EmailClient struct {
	cfg        EmailConfig
	httpClient *http.Client
}

type EmailOption func(*EmailClient)

func WithEmailHTTPClient(c *http.Client) EmailOption {
	return func(cl *EmailClient) {
		cl.httpClient = c
	}
}

func NewEmailClient(cfg EmailConfig, opts ...EmailOption) *EmailClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultPostmarkURL
	}
	c := &EmailClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the token and both addresses are set.
func (c *EmailClient) Configured() bool {
	return c != nil && c.cfg.ServerToken != "" && c.cfg.From != "" && c.cfg.To != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	TextBody string `json:"TextBody"`
}

// Send delivers a plain-text message to the configured admin address.
func (c *EmailClient) Send(ctx context.Context, subject, text string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured")
	}

	body, err := json.Marshal(postmarkEmail{
		From:     c.cfg.From,
		To:       c.cfg.To,
		Subject:  subject,
		TextBody: text,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.cfg.ServerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}
	return nil
}
