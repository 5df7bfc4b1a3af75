// Package domain defines per job progress records
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is the progress of one job
// Total is nil until the backend has enumerated its work
type Record struct {
	JobID       uuid.UUID `json:"job_id"`
	Total       *int      `json:"total_items"`
	Processed   int       `json:"processed_items"`
	Failed      int       `json:"failed_items"`
	CurrentItem string    `json:"current_item"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Done is processed plus failed
func (r Record) Done() int { return r.Processed + r.Failed }

// Delta is one progress increment
type Delta struct {
	Processed   int    `json:"processed_delta"`
	Failed      int    `json:"failed_delta"`
	CurrentItem string `json:"current_item"`
}

// Snapshot is a record plus the offset a restarted backend resumes from
type Snapshot struct {
	Record
	ResumeOffset int      `json:"resume_offset"`
	Percent      *float64 `json:"percent,omitempty"`
}

// SnapshotOf derives the resume point and percentage of r
func SnapshotOf(r Record) Snapshot {
	s := Snapshot{Record: r, ResumeOffset: r.Done()}
	if r.Total != nil && *r.Total > 0 {
		p := float64(r.Done()) * 100 / float64(*r.Total)
		s.Percent = &p
	}
	return s
}

// ServicePort is the progress surface used by backends, the reconciler and status queries
type ServicePort interface {
	Start(ctx context.Context, jobID uuid.UUID, total *int) (Record, error)
	SetTotal(ctx context.Context, jobID uuid.UUID, total int) (Record, error)
	Advance(ctx context.Context, jobID uuid.UUID, d Delta) (Record, error)
	Snapshot(ctx context.Context, jobID uuid.UUID) (Snapshot, error)
	Delete(ctx context.Context, jobID uuid.UUID) error
}
