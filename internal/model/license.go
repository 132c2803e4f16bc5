package model

import "time"

// AllowedMaxListeners is the fixed set of capacities a session may be started with.
var AllowedMaxListeners = []int{10, 25, 35, 100}

// IsAllowedMaxListeners reports whether n is one of AllowedMaxListeners.
func IsAllowedMaxListeners(n int) bool {
	for _, v := range AllowedMaxListeners {
		if v == n {
			return true
		}
	}
	return false
}

type License struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	DurationMinutes int        `json:"duration_minutes"`
	MaxListeners    int        `json:"max_listeners"`
	IsActive        bool       `json:"is_active"`
	ActivatedAt     *time.Time `json:"activated_at"`
	ConsumedAt      *time.Time `json:"consumed_at"`
	RevokedAt       *time.Time `json:"revoked_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Used reports whether the license was activated once and is now spent.
func (l *License) Used() bool {
	return (l.ActivatedAt != nil && !l.IsActive) || l.RevokedAt != nil
}

// Elapsed returns the time since activation, or zero if never activated.
func (l *License) Elapsed(now time.Time) time.Duration {
	if l.ActivatedAt == nil {
		return 0
	}
	d := now.Sub(*l.ActivatedAt)
	if d < 0 {
		return 0
	}
	return d
}

// RemainingMinutes returns max(0, duration - elapsed) in whole minutes.
func (l *License) RemainingMinutes(now time.Time) int {
	left := time.Duration(l.DurationMinutes)*time.Minute - l.Elapsed(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Minute)
}
