// Package claim provides short-lived exclusive claims on listings so two
// jobs never act on the same listing at once. Claims expire on their own if
// the holder dies.
package claim

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL bounds how long a crashed holder can block a listing.
const DefaultTTL = 5 * time.Minute

var (
	// ErrAlreadyClaimed is returned when another holder owns the key.
	ErrAlreadyClaimed = errors.New("already claimed")
	// ErrNotHeld is returned when releasing a claim that expired or was taken over.
	ErrNotHeld = errors.New("claim not held")
)

// Claim is proof of ownership returned by TryClaim.
type Claim struct {
	Key   string
	Token string
}

// Locker hands out claims.
type Locker interface {
	// TryClaim takes key for ttl without blocking.
	TryClaim(ctx context.Context, key string, ttl time.Duration) (*Claim, error)
	// Release gives the claim back if it is still held by c.
	Release(ctx context.Context, c *Claim) error
}

// ListingKey is the claim key for a listing.
func ListingKey(listingID string) string {
	return "listing:" + listingID
}

// JobKey is the claim key that keeps one run of a job at a time.
func JobKey(jobName string) string {
	return "job:" + jobName
}
