// Package domain defines capture submissions and the hybrid router ports
package domain

import (
	"context"

	"github.com/google/uuid"

	"progcap/internal/core/classify"
	"progcap/internal/core/route"
	"progcap/internal/core/window"
	dldomain "progcap/internal/services/deadletter/domain"
	jobsdomain "progcap/internal/services/jobs/domain"
)

// Request asks for one capture by repository id or owner/name; the id wins when both are set
type Request struct {
	JobType  jobsdomain.Type `json:"job_type" validate:"required"`
	RepoID   int64           `json:"repository_id" validate:"omitempty,gt=0"`
	RepoName string          `json:"repository" validate:"omitempty,max=200"`
	Window   window.Window   `json:"window"`
}

// Result is what a submitter sees; failure categories stay operator side
type Result struct {
	JobID      uuid.UUID         `json:"job_id"`
	Status     jobsdomain.Status `json:"status"`
	Backend    route.Backend     `json:"backend"`
	Reason     route.Reason      `json:"reason"`
	Coalesced  bool              `json:"coalesced"`
	Error      string            `json:"error,omitempty"`
	RetryJobID *uuid.UUID        `json:"retry_job_id,omitempty"`
}

// Outcome is the follow-up of a failure; at most one of Retry and DeadLetter is set
type Outcome struct {
	Job        jobsdomain.Job  `json:"job"`
	Retry      *Result         `json:"retry,omitempty"`
	DeadLetter *dldomain.Entry `json:"dead_letter,omitempty"`
}

// FollowUp decides what happens to a job that just failed
type FollowUp interface {
	AfterFailure(ctx context.Context, j jobsdomain.Job) (Outcome, error)
}

// ServicePort is the router surface used by submitters, backends and operators
type ServicePort interface {
	FollowUp
	Submit(ctx context.Context, req Request) (Result, error)
	// Fail classifies a backend reported failure, fails the job and follows up
	Fail(ctx context.Context, jobID uuid.UUID, f classify.Failure) (Outcome, error)
	Complete(ctx context.Context, jobID uuid.UUID) (jobsdomain.Job, error)
}
