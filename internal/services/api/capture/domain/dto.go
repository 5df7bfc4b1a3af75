// Package domain holds the submitter facing views of capture jobs
package domain

import (
	"time"

	"github.com/google/uuid"

	"progcap/internal/core/route"
	"progcap/internal/core/window"
	jobsdomain "progcap/internal/services/jobs/domain"
)

// JobView is a job as a submitter sees it; failure categories and metadata stay operator side
type JobView struct {
	ID          uuid.UUID             `json:"id"`
	JobType     jobsdomain.Type       `json:"job_type"`
	Repository  jobsdomain.Repository `json:"repository"`
	Backend     route.Backend         `json:"backend"`
	Status      jobsdomain.Status     `json:"status"`
	Window      window.Window         `json:"window"`
	Attempt     int                   `json:"attempt"`
	RetryOf     *uuid.UUID            `json:"retry_of,omitempty"`
	Error       *string               `json:"error,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

// ViewOf builds the submitter view
func ViewOf(j jobsdomain.Job) JobView {
	return JobView{
		ID:          j.ID,
		JobType:     j.Type,
		Repository:  j.Repo,
		Backend:     j.Backend,
		Status:      j.Status,
		Window:      j.Window,
		Attempt:     j.Attempt,
		RetryOf:     j.RetryOf,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
