// Package domain defines quota snapshots and the rate limit monitor ports
package domain

import (
	"context"
	"time"
)

// Sample is one quota observation reported by a client or backend
type Sample struct {
	Remaining  int           `json:"remaining" validate:"gte=0"`
	Limit      int           `json:"limit" validate:"gte=0"`
	Reset      time.Time     `json:"reset"`
	RetryAfter time.Duration `json:"retry_after"`
}

// Snapshot is the last known quota of a scope
type Snapshot struct {
	Scope      string     `json:"scope"`
	Remaining  int        `json:"remaining"`
	Limit      int        `json:"limit"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
	RetryUntil *time.Time `json:"retry_until,omitempty"`
	ObservedAt time.Time  `json:"observed_at"`
}

// Decision says whether a scope may issue calls now
type Decision struct {
	Scope        string     `json:"scope"`
	Proceed      bool       `json:"proceed"`
	BackoffUntil *time.Time `json:"backoff_until,omitempty"`
	Remaining    *int       `json:"remaining,omitempty"`
	Reason       string     `json:"reason"`
}

// Decision reasons
const (
	ReasonUnknown    = "unknown_scope"
	ReasonStale      = "stale_snapshot"
	ReasonRetryAfter = "retry_after"
	ReasonReserve    = "below_reserve"
	ReasonHeadroom   = "headroom"
)

// Advisor answers admission questions for the router
type Advisor interface {
	Decide(ctx context.Context, scope string) (Decision, error)
}

// ServicePort is the monitor surface used by backends and clients
type ServicePort interface {
	Advisor
	Observe(ctx context.Context, scope string, s Sample) (Snapshot, error)
	// Wait paces a local call and blocks through short backoffs
	Wait(ctx context.Context, scope string) error
	Snapshots(ctx context.Context) ([]Snapshot, error)
}
