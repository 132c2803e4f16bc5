package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrNotConfigured is returned by Send when no target URL is set.
var ErrNotConfigured = errors.New("webhook url not configured")

// Config holds outbound webhook settings.
type Config struct {
	URL             string
	Secret          string
	Algorithm       string
	SignatureHeader string
	TimestampHeader string
	EventHeader     string
	Timeout         time.Duration
	MaxRetries      int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
}

// Sender posts signed events to a single admin endpoint.
type Sender struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Sender.
type Option func(*Sender)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) { s.httpClient = c }
}

// WithLogger sets the logger used for per-attempt failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

// WithClock overrides the time source used for the timestamp header.
func WithClock(now func() time.Time) Option {
	return func(s *Sender) { s.now = now }
}

// NewSender fills defaults and validates the digest algorithm.
func NewSender(cfg Config, opts ...Option) (*Sender, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = DefaultAlgorithm
	}
	if !ValidAlgorithm(cfg.Algorithm) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, cfg.Algorithm)
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = DefaultSignatureHeader
	}
	if cfg.TimestampHeader == "" {
		cfg.TimestampHeader = DefaultTimestampHeader
	}
	if cfg.EventHeader == "" {
		cfg.EventHeader = DefaultEventHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 8 * time.Second
	}

	s := &Sender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Configured reports whether a target URL is set.
func (s *Sender) Configured() bool {
	return s != nil && s.cfg.URL != ""
}

// URL returns the target endpoint.
func (s *Sender) URL() string {
	if s == nil {
		return ""
	}
	return s.cfg.URL
}

type envelope struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// Body returns the compact JSON body sent for an event.
func Body(eventType string, payload json.RawMessage) ([]byte, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(envelope{EventType: eventType, Payload: payload}); err != nil {
		return nil, fmt.Errorf("encode webhook body: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Send delivers one event, retrying with capped exponential backoff until
// MaxRetries attempts have been made. Any 2xx response is success.
func (s *Sender) Send(ctx context.Context, eventType string, payload json.RawMessage) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	body, err := Body(eventType, payload)
	if err != nil {
		return err
	}

	b := retry.NewExponential(s.cfg.BaseBackoff)
	b = retry.WithCappedDuration(s.cfg.MaxBackoff, b)
	b = retry.WithMaxRetries(uint64(s.cfg.MaxRetries-1), b)

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := s.post(ctx, eventType, body); err != nil {
			s.logger.Warn("webhook attempt failed", "event_type", eventType, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (s *Sender) post(ctx context.Context, eventType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	ts := s.now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(s.cfg.EventHeader, eventType)
	req.Header.Set(s.cfg.TimestampHeader, strconv.FormatInt(ts, 10))
	if s.cfg.Secret != "" {
		sig, err := Sign(s.cfg.Secret, s.cfg.Algorithm, ts, body)
		if err != nil {
			return err
		}
		req.Header.Set(s.cfg.SignatureHeader, sig)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
