// Package config loads service settings from the environment. Variables use
// the AIRLINK_ prefix; a few unprefixed names from older deployments are
// still honoured when the prefixed one is unset.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/dukerupert/airlink/internal/notify"
	"github.com/dukerupert/airlink/internal/webhook"
)

const prefix = "airlink"

const (
	MinSweepInterval = 15 * time.Second
	MinRetryInterval = 5 * time.Second
)

type Config struct {
	Addr      string `envconfig:"ADDR" default:":8080"`
	DBPath    string `envconfig:"DB_PATH" default:"airlink.db"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// AdminKey guards the administrative routes. Empty disables the check.
	AdminKey string `envconfig:"ADMIN_API_KEY"`

	SchedulerEnabled bool          `envconfig:"SCHEDULER_ENABLED" default:"true"`
	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"60s"`
	RetryInterval    time.Duration `envconfig:"RETRY_INTERVAL" default:"60s"`
	RetryLimit       int           `envconfig:"RETRY_LIMIT" default:"200"`

	JoinRateLimit  int           `envconfig:"JOIN_RATE_LIMIT" default:"30"`
	JoinRateWindow time.Duration `envconfig:"JOIN_RATE_WINDOW" default:"1m"`

	WebhookURL        string        `envconfig:"WEBHOOK_URL"`
	WebhookSecret     string        `envconfig:"WEBHOOK_SECRET"`
	WebhookTimeout    time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"5s"`
	WebhookMaxRetries int           `envconfig:"WEBHOOK_MAX_RETRIES" default:"5"`

	HMACSecret string        `envconfig:"HMAC_SECRET"`
	HMACHeader string        `envconfig:"HMAC_HEADER" default:"X-Webhook-Signature"`
	HMACAlgo   string        `envconfig:"HMAC_ALGO" default:"sha256"`
	HMACMaxAge time.Duration `envconfig:"HMAC_MAX_AGE" default:"300s"`

	RTCAppID          string `envconfig:"RTC_APP_ID"`
	RTCCustomerID     string `envconfig:"RTC_CUSTOMER_ID"`
	RTCCustomerSecret string `envconfig:"RTC_CUSTOMER_SECRET"`
	RTCBaseURL        string `envconfig:"RTC_BASE_URL"`

	PostmarkToken    string `envconfig:"POSTMARK_TOKEN"`
	NotifyEmailFrom  string `envconfig:"NOTIFY_EMAIL_FROM"`
	NotifyEmailTo    string `envconfig:"NOTIFY_EMAIL_TO"`
	NotifyWebhookURL string `envconfig:"NOTIFY_WEBHOOK_URL"`
}

// legacy lists older unprefixed names for a Config field, tried in order
// when the AIRLINK_ variable is unset.
var legacy = []struct {
	name    string
	aliases []string
	set     func(c *Config, v string) error
}{
	{"ADMIN_API_KEY", []string{"ADMIN_API_KEY", "ADMIN_KEY"}, str(func(c *Config) *string { return &c.AdminKey })},
	{"SCHEDULER_ENABLED", []string{"SCHEDULER_ENABLED"}, boolean(func(c *Config) *bool { return &c.SchedulerEnabled })},
	{"RETRY_INTERVAL", []string{"RETRY_INTERVAL_SECONDS"}, seconds(func(c *Config) *time.Duration { return &c.RetryInterval })},
	{"RETRY_LIMIT", []string{"RETRY_LIMIT"}, integer(func(c *Config) *int { return &c.RetryLimit })},
	{"WEBHOOK_URL", []string{"ADMIN_WEBHOOK_URL"}, str(func(c *Config) *string { return &c.WebhookURL })},
	{"WEBHOOK_SECRET", []string{"ADMIN_WEBHOOK_SECRET"}, str(func(c *Config) *string { return &c.WebhookSecret })},
	{"WEBHOOK_TIMEOUT", []string{"ADMIN_WEBHOOK_TIMEOUT_SECONDS"}, seconds(func(c *Config) *time.Duration { return &c.WebhookTimeout })},
	{"WEBHOOK_MAX_RETRIES", []string{"ADMIN_WEBHOOK_MAX_RETRIES"}, integer(func(c *Config) *int { return &c.WebhookMaxRetries })},
	{"HMAC_SECRET", []string{"WEBHOOK_HMAC_SECRET"}, str(func(c *Config) *string { return &c.HMACSecret })},
	{"HMAC_HEADER", []string{"WEBHOOK_HMAC_HEADER"}, str(func(c *Config) *string { return &c.HMACHeader })},
	{"HMAC_ALGO", []string{"WEBHOOK_HMAC_ALGO"}, str(func(c *Config) *string { return &c.HMACAlgo })},
	{"HMAC_MAX_AGE", []string{"WEBHOOK_HMAC_MAX_AGE"}, seconds(func(c *Config) *time.Duration { return &c.HMACMaxAge })},
	{"RTC_APP_ID", []string{"AGORA_APP_ID"}, str(func(c *Config) *string { return &c.RTCAppID })},
	{"RTC_CUSTOMER_ID", []string{"AGORA_CUSTOMER_ID"}, str(func(c *Config) *string { return &c.RTCCustomerID })},
	{"RTC_CUSTOMER_SECRET", []string{"AGORA_CUSTOMER_SECRET"}, str(func(c *Config) *string { return &c.RTCCustomerSecret })},
	{"POSTMARK_TOKEN", []string{"POSTMARK_SERVER_TOKEN"}, str(func(c *Config) *string { return &c.PostmarkToken })},
	{"NOTIFY_EMAIL_FROM", []string{"SMTP_FROM"}, str(func(c *Config) *string { return &c.NotifyEmailFrom })},
	{"NOTIFY_EMAIL_TO", []string{"SMTP_TO"}, str(func(c *Config) *string { return &c.NotifyEmailTo })},
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func boolean(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func integer(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func seconds(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = time.Duration(n) * time.Second
		return nil
	}
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.applyLegacy(); err != nil {
		return nil, err
	}

	cfg.HMACAlgo = strings.ToLower(strings.TrimSpace(cfg.HMACAlgo))
	if !webhook.ValidAlgorithm(cfg.HMACAlgo) {
		return nil, fmt.Errorf("%w: %q (want one of %s)", webhook.ErrUnsupportedAlgorithm, cfg.HMACAlgo, strings.Join(webhook.Algorithms(), ", "))
	}

	cfg.clamp()
	return &cfg, nil
}

func (c *Config) applyLegacy() error {
	for _, l := range legacy {
		if _, ok := os.LookupEnv(strings.ToUpper(prefix) + "_" + l.name); ok {
			continue
		}
		for _, alias := range l.aliases {
			v, ok := os.LookupEnv(alias)
			if !ok || v == "" {
				continue
			}
			if err := l.set(c, v); err != nil {
				return fmt.Errorf("parse %s: %w", alias, err)
			}
			break
		}
	}
	return nil
}

func (c *Config) clamp() {
	if c.SweepInterval < MinSweepInterval {
		c.SweepInterval = MinSweepInterval
	}
	if c.RetryInterval < MinRetryInterval {
		c.RetryInterval = MinRetryInterval
	}
	if c.RetryLimit < 1 {
		c.RetryLimit = 1
	}
	if c.WebhookMaxRetries < 1 {
		c.WebhookMaxRetries = 1
	}
	if c.JoinRateLimit < 1 {
		c.JoinRateLimit = 1
	}
	if c.JoinRateWindow <= 0 {
		c.JoinRateWindow = time.Minute
	}
}

// Sender returns the outbound webhook settings.
func (c *Config) Sender() webhook.Config {
	return webhook.Config{
		URL:             c.WebhookURL,
		Secret:          c.hmacSecret(),
		Algorithm:       c.HMACAlgo,
		SignatureHeader: c.HMACHeader,
		Timeout:         c.WebhookTimeout,
		MaxRetries:      c.WebhookMaxRetries,
	}
}

// Verifier returns the inbound webhook settings.
func (c *Config) Verifier() webhook.VerifierConfig {
	return webhook.VerifierConfig{
		Secret:          c.hmacSecret(),
		Algorithm:       c.HMACAlgo,
		SignatureHeader: c.HMACHeader,
		MaxAge:          c.HMACMaxAge,
	}
}

// hmacSecret is the signing key shared by both directions: the HMAC secret,
// else the webhook secret.
func (c *Config) hmacSecret() string {
	if c.HMACSecret != "" {
		return c.HMACSecret
	}
	return c.WebhookSecret
}

// Notify returns the admin notification settings.
func (c *Config) Notify() notify.Config {
	return notify.Config{
		Email: notify.EmailConfig{
			ServerToken: c.PostmarkToken,
			From:        c.NotifyEmailFrom,
			To:          c.NotifyEmailTo,
		},
		WebhookURL: c.NotifyWebhookURL,
	}
}
