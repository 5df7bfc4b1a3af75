// Package domain defines capture lifecycle events and the ledger ports
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names a lifecycle transition
type Kind string

const (
	Submitted      Kind = "submitted"
	Coalesced      Kind = "coalesced"
	Dispatched     Kind = "dispatched"
	DispatchFailed Kind = "dispatch_failed"
	Completed      Kind = "completed"
	Failed         Kind = "failed"
	Retried        Kind = "retried"
	Reconciled     Kind = "reconciled"
	DeadLettered   Kind = "dead_lettered"
	RollbackTrip   Kind = "rollback_tripped"
)

// Event is one ledger row
type Event struct {
	TS       time.Time `json:"ts"`
	JobID    uuid.UUID `json:"job_id"`
	Feature  string    `json:"feature"`
	Backend  string    `json:"backend"`
	JobType  string    `json:"job_type"`
	RepoID   int64     `json:"repo_id"`
	Kind     Kind      `json:"event"`
	Category string    `json:"category,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// SummaryRow counts events of one kind on one backend
type SummaryRow struct {
	Kind    Kind   `json:"event"`
	Backend string `json:"backend"`
	Count   uint64 `json:"count"`
}

// Recorder is the write side; recording never fails the caller
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// ServicePort adds the operator read side
type ServicePort interface {
	Recorder
	Summary(ctx context.Context, since time.Time) ([]SummaryRow, error)
	Enabled() bool
}

// Nop discards events
type Nop struct{}

// Record discards e
func (Nop) Record(context.Context, Event) {}
