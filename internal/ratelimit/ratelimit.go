// Package ratelimit provides request limiting keyed by caller identity.
package ratelimit

import (
	"context"
	"time"
)

// Limiter answers whether a keyed request may proceed, and when to retry
// if not. An infrastructure error means "allow": a broken counter must
// not lock the doors.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}
