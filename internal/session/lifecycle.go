// Package session keeps generated images available for a fixed window and
// purges them once it closes.
package session

import (
	"fmt"
	"time"
)

const (
	// TTL is how long generated images stay downloadable.
	TTL = 3 * time.Minute
	// PollInterval is how often consumers re-evaluate expiry.
	PollInterval = time.Second
)

// State is the lifecycle state of a session.
type State string

const (
	StateActive  State = "active"
	StateExpired State = "expired"
)

// IsExpired reports whether a session created at createdAt has outlived ttl
// at now.
func IsExpired(now, createdAt time.Time, ttl time.Duration) bool {
	return now.Sub(createdAt) >= ttl
}

// Remaining is the time left before expiry, clamped to [0, ttl].
func Remaining(now, createdAt time.Time, ttl time.Duration) time.Duration {
	elapsed := now.Sub(createdAt)
	if elapsed < 0 {
		elapsed = 0
	}
	left := ttl - elapsed
	if left < 0 {
		return 0
	}
	return left
}

// FormatRemaining renders d as m:ss, truncating partial seconds.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
