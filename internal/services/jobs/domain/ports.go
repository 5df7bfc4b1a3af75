package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ServicePort is the job store surface used by the router, backends and operators
type ServicePort interface {
	// Create inserts a pending job; when an identical key is already active the
	// existing job is returned with coalesced=true
	Create(ctx context.Context, in NewJob) (job Job, coalesced bool, err error)
	Get(ctx context.Context, id uuid.UUID) (Job, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) (Job, error)
	Complete(ctx context.Context, id uuid.UUID) (Job, error)
	Fail(ctx context.Context, id uuid.UUID, in FailInput) (Job, error)
	List(ctx context.Context, f Filter) ([]Job, error)
	Stats(ctx context.Context, since time.Time) ([]StatRow, error)
}
