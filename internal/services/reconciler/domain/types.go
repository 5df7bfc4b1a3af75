// Package domain defines the stuck-job sweep report and port
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	"progcap/internal/core/route"
	jobsdomain "progcap/internal/services/jobs/domain"
)

// Error texts written on reconciled jobs
const (
	ErrTimedOut        = "timed out"
	ErrNotAcknowledged = "dispatch not acknowledged"
)

// Report summarizes one sweep
type Report struct {
	StartedAt  time.Time             `json:"started_at"`
	Cutoff     time.Time             `json:"cutoff"`
	Reconciled []uuid.UUID           `json:"reconciled"`
	ByBackend  map[route.Backend]int `json:"by_backend"`
	Skipped    int                   `json:"skipped"`
	Errors     int                   `json:"errors"`
	Stats      []jobsdomain.StatRow  `json:"stats"`
}

// ServicePort runs sweeps on demand
type ServicePort interface {
	Sweep(ctx context.Context) (Report, error)
}
