// Package clock holds the UTC time helpers shared by the session core.
package clock

import "time"

// Func returns the current time. Components take one so tests can move time.
type Func func() time.Time

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}
