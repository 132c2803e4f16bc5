package webhook

import (
	"crypto/hmac"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingTimestamp  = errors.New("missing timestamp")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
	ErrStaleTimestamp    = errors.New("stale or future timestamp")
	ErrMissingSignature  = errors.New("missing signature")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrNoSecret          = errors.New("inbound webhook secret not configured")
)

const (
	legacyTimestampHeader = "X-Timestamp"
	legacySignatureHeader = "X-Signature"
)

// VerifierConfig holds inbound verification settings.
type VerifierConfig struct {
	Secret          string
	Algorithm       string
	SignatureHeader string
	TimestampHeader string
	EventHeader     string
	MaxAge          time.Duration
}

// Verifier checks the timestamp and HMAC of inbound webhook requests.
type Verifier struct {
	cfg VerifierConfig
	now func() time.Time
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
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
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 300 * time.Second
	}
	return &Verifier{cfg: cfg, now: time.Now}, nil
}

// Configured reports whether a secret is set.
func (v *Verifier) Configured() bool {
	return v.cfg.Secret != ""
}

// SetClock overrides the time source. Used in tests.
func (v *Verifier) SetClock(now func() time.Time) {
	v.now = now
}

// Verify authenticates body against the request headers and returns the
// event type, taken from the event header or else from the body.
//
// Besides the configured headers it accepts a combined "t=<ts>,v1=<hex>"
// signature value, a "v1=" prefixed signature, and the legacy X-Timestamp
// and X-Signature header names.
//
// Without a configured secret every request is rejected with ErrNoSecret.
func (v *Verifier) Verify(body []byte, h http.Header) (string, error) {
	if v.cfg.Secret == "" {
		return "", ErrNoSecret
	}
	rawSig := firstHeader(h, v.cfg.SignatureHeader, legacySignatureHeader)
	rawTS := firstHeader(h, v.cfg.TimestampHeader, legacyTimestampHeader)

	sig := rawSig
	if strings.Contains(rawSig, "=") {
		ts, s := parseCombined(rawSig)
		if ts != "" && rawTS == "" {
			rawTS = ts
		}
		sig = s
	}

	if rawTS == "" {
		return "", ErrMissingTimestamp
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(rawTS), 10, 64)
	if err != nil {
		return "", ErrInvalidTimestamp
	}
	skew := v.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(v.cfg.MaxAge/time.Second) {
		return "", ErrStaleTimestamp
	}

	if sig == "" {
		return "", ErrMissingSignature
	}
	want, err := Sign(v.cfg.Secret, v.cfg.Algorithm, ts, body)
	if err != nil {
		return "", err
	}
	if !hmac.Equal([]byte(strings.ToLower(sig)), []byte(want)) {
		return "", ErrSignatureMismatch
	}

	if et := h.Get(v.cfg.EventHeader); et != "" {
		return et, nil
	}
	var env struct {
		EventType string `json:"event_type"`
	}
	json.Unmarshal(body, &env)
	return env.EventType, nil
}

func firstHeader(h http.Header, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(h.Get(n)); v != "" {
			return v
		}
	}
	return ""
}

// parseCombined splits "t=<ts>,v1=<sig>" or "v1=<sig>".
func parseCombined(v string) (ts, sig string) {
	for _, part := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			sig = val
		}
	}
	return ts, sig
}
