package model

import (
	"encoding/json"
	"time"
)

type EventStatus string

const (
	EventQueued EventStatus = "queued"
	EventSent   EventStatus = "sent"
	EventFailed EventStatus = "failed"
)

// OutboxEvent is a lifecycle event awaiting signed webhook delivery.
type OutboxEvent struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	Status      EventStatus     `json:"status"`
	Retries     int             `json:"retries"`
	LastError   *string         `json:"last_error"`
	CreatedAt   time.Time       `json:"created_at"`
	DeliveredAt *time.Time      `json:"delivered_at"`
}

// AuditEvent is an append-only record of something that happened.
type AuditEvent struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	SessionID   *string         `json:"session_id,omitempty"`
	LicenseCode *string         `json:"license_code,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
