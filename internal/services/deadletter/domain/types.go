// Package domain defines dead letter entries and the queue ports
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	"progcap/internal/core/classify"
	jobsdomain "progcap/internal/services/jobs/domain"
)

// Entry quarantines one failed job that automatic retry will not fix
// History holds every attempt of the retry chain, oldest first
type Entry struct {
	ID                         uuid.UUID              `json:"id"`
	OriginalJobID              uuid.UUID              `json:"original_job_id"`
	RootJobID                  uuid.UUID              `json:"root_job_id"`
	JobType                    jobsdomain.Type        `json:"job_type"`
	RepoID                     int64                  `json:"repo_id"`
	Category                   classify.Category      `json:"error_category"`
	History                    []jobsdomain.ChainLink `json:"error_history"`
	RequiresManualIntervention bool                   `json:"requires_manual_intervention"`
	CreatedAt                  time.Time              `json:"created_at"`
	ResolvedAt                 *time.Time             `json:"resolved_at,omitempty"`
	ResolvedBy                 *string                `json:"resolved_by,omitempty"`
	ResolutionNote             *string                `json:"resolution_note,omitempty"`
}

// Filter narrows List; Unresolved keeps entries with no resolution
type Filter struct {
	Category   classify.Category
	Unresolved bool
	Limit      int
	Offset     int
}

// CategoryCount is the number of unresolved entries in one category
type CategoryCount struct {
	Category classify.Category `json:"category"`
	Count    int64             `json:"count"`
}

// ServicePort is the queue surface used by the router and operators
type ServicePort interface {
	Classify(f classify.Failure) classify.Category
	// Enqueue quarantines a failed job; repeating it returns the existing entry with created=false
	Enqueue(ctx context.Context, jobID uuid.UUID) (e Entry, created bool, err error)
	List(ctx context.Context, f Filter) ([]Entry, error)
	Get(ctx context.Context, id uuid.UUID) (Entry, error)
	Resolve(ctx context.Context, id uuid.UUID, actor, note string) (Entry, error)
	Counts(ctx context.Context) ([]CategoryCount, error)
}
