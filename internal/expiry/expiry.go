package expiry

import (
	"fmt"
	"strconv"
	"time"
)

var defaultLoc = time.UTC

// SetDefaultLocation sets the location timestamps are normalized to (fallback UTC).
func SetDefaultLocation(loc *time.Location) {
	if loc != nil {
		defaultLoc = loc
	}
}

// Now returns the current time in the default location.
func Now() time.Time {
	return time.Now().In(defaultLoc)
}

// ExpiresAt returns the instant an authorization issued at 'issued' lapses.
// A non-positive ttl means it never lapses and the zero time is returned.
func ExpiresAt(issued time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return issued.In(defaultLoc).Add(ttl)
}

// IsExpired reports whether 'at' is strictly after expiresAt. The expiry
// instant itself is still valid; a zero expiresAt never expires.
func IsExpired(expiresAt, at time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return at.After(expiresAt)
}

// Remaining returns the time left before expiresAt, clamped to zero.
// It returns -1 when expiresAt is zero.
func Remaining(expiresAt, at time.Time) time.Duration {
	if expiresAt.IsZero() {
		return -1
	}
	if d := expiresAt.Sub(at); d > 0 {
		return d
	}
	return 0
}

// ParseTTL parses a TTL such as "15m" or "0". A bare integer is read as seconds.
func ParseTTL(in string) (time.Duration, error) {
	if in == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(in); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("ttl must not be negative")
		}
		return d, nil
	}
	secs, err := strconv.ParseInt(in, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ttl must be a duration like 15m or whole seconds")
	}
	if secs < 0 {
		return 0, fmt.Errorf("ttl must not be negative")
	}
	return time.Duration(secs) * time.Second, nil
}
