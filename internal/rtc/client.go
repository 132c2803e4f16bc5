// Package rtc talks to the realtime audio provider's REST API.
package rtc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.agora.io/dev/v1/kicking-rule"

// Config holds provider credentials.
type Config struct {
	AppID          string
	CustomerID     string
	CustomerSecret string
	BaseURL        string
	// BanSeconds is how long a disbanded channel refuses new joins.
	BanSeconds int
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.BanSeconds <= 0 {
		cfg.BanSeconds = 60
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if all credentials are set.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.AppID != "" && c.cfg.CustomerID != "" && c.cfg.CustomerSecret != ""
}

type kickingRule struct {
	AppID      string   `json:"appid"`
	CName      string   `json:"cname"`
	Time       int      `json:"time"`
	Privileges []string `json:"privileges"`
}

// DisbandChannel removes everyone from the channel and blocks rejoining for
// the configured ban window.
func (c *Client) DisbandChannel(ctx context.Context, channel string) error {
	if !c.Configured() {
		return fmt.Errorf("rtc client not configured: missing credentials")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return fmt.Errorf("channel name is required")
	}

	body, err := json.Marshal(kickingRule{
		AppID:      c.cfg.AppID,
		CName:      channel,
		Time:       c.cfg.BanSeconds,
		Privileges: []string{"join_channel"},
	})
	if err != nil {
		return fmt.Errorf("marshal kicking rule: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.CustomerID, c.cfg.CustomerSecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return fmt.Errorf("rtc returned status %d: %s", resp.StatusCode, msg)
	}
	return nil
}
