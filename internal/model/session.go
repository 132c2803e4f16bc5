package model

import "time"

type Session struct {
	ID           string     `json:"id"`
	LicenseID    string     `json:"license_id"`
	PIN          string     `json:"pin"`
	StartedAt    time.Time  `json:"started_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	EndedAt      *time.Time `json:"ended_at"`
	EndReason    *string    `json:"end_reason"`
	MaxListeners int        `json:"max_listeners"`
	IsActive     bool       `json:"is_active"`
}

// Ended reports whether the session already went through termination.
func (s *Session) Ended() bool {
	return !s.IsActive && s.EndedAt != nil
}

// Expired reports whether now is at or past the session's expiry.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type Listener struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	DisplayName *string    `json:"display_name"`
	JoinedAt    time.Time  `json:"joined_at"`
	LeftAt      *time.Time `json:"left_at"`
	IsConnected bool       `json:"is_connected"`
}
