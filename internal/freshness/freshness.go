// Package freshness classifies device observations by age.
//
// Classification is always computed from a caller-supplied "now" and is never
// stored, so a value read later cannot carry a stale verdict.
package freshness

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultCurrentThreshold is how long a device stays "current" after its last sighting.
	DefaultCurrentThreshold = 60 * time.Second

	// DefaultMaxAgeThreshold is the age after which a device is considered expired.
	DefaultMaxAgeThreshold = 15 * time.Minute
)

// ErrInvalidThresholds is returned when a policy is built from thresholds
// that would allow an entry to be both current and expired.
var ErrInvalidThresholds = errors.New("invalid freshness thresholds")

// Classification is the derived, time-relative state of one entry.
type Classification struct {
	Current bool
	Expired bool
}

// Policy holds the two thresholds. The zero value is not valid; use NewPolicy
// or DefaultPolicy.
type Policy struct {
	current time.Duration
	maxAge  time.Duration
}

// NewPolicy validates the thresholds and returns a policy.
// current must be positive and not exceed maxAge.
func NewPolicy(current, maxAge time.Duration) (Policy, error) {
	if current <= 0 {
		return Policy{}, fmt.Errorf("%w: current threshold must be positive, got %s", ErrInvalidThresholds, current)
	}
	if current > maxAge {
		return Policy{}, fmt.Errorf("%w: current threshold %s exceeds max age %s", ErrInvalidThresholds, current, maxAge)
	}
	return Policy{current: current, maxAge: maxAge}, nil
}

// DefaultPolicy returns the 60s / 15m policy.
func DefaultPolicy() Policy {
	return Policy{current: DefaultCurrentThreshold, maxAge: DefaultMaxAgeThreshold}
}

// CurrentThreshold returns the configured "current" window.
func (p Policy) CurrentThreshold() time.Duration { return p.current }

// MaxAgeThreshold returns the configured expiry age.
func (p Policy) MaxAgeThreshold() time.Duration { return p.maxAge }

// IsCurrent reports whether lastSeen lies strictly within the current window.
func (p Policy) IsCurrent(lastSeen, now time.Time) bool {
	return IsCurrent(lastSeen, now, p.current)
}

// IsExpired reports whether lastSeen is strictly older than the max age.
func (p Policy) IsExpired(lastSeen, now time.Time) bool {
	return IsExpired(lastSeen, now, p.maxAge)
}

// Classify computes both flags for lastSeen relative to now.
func (p Policy) Classify(lastSeen, now time.Time) Classification {
	return Classification{
		Current: p.IsCurrent(lastSeen, now),
		Expired: p.IsExpired(lastSeen, now),
	}
}

// IsCurrent reports (now - lastSeen) < threshold.
func IsCurrent(lastSeen, now time.Time, threshold time.Duration) bool {
	return now.Sub(lastSeen) < threshold
}

// IsExpired reports (now - lastSeen) > threshold.
func IsExpired(lastSeen, now time.Time, threshold time.Duration) bool {
	return now.Sub(lastSeen) > threshold
}
