// Package domain defines the error-spike guard states and trips
package domain

import (
	"context"
	"time"
)

// State is the guard state of a feature
type State string

const (
	Normal  State = "normal"
	Tripped State = "tripped"
)

// Reason and Actor are written to rollout history on every automatic stop
const (
	Reason = "auto-rollback: error spike"
	Actor  = "system"
)

// Trip records one automatic emergency stop
type Trip struct {
	Feature string    `json:"feature"`
	Errors  int       `json:"errors"`
	Since   time.Time `json:"since"`
	At      time.Time `json:"at"`
}

// ServicePort is the guard surface
type ServicePort interface {
	Check(ctx context.Context) ([]Trip, error)
	State(ctx context.Context, feature string) (State, error)
}
