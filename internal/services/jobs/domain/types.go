// Package domain defines capture job types and the job store ports
package domain

import (
	"time"

	"github.com/google/uuid"

	"progcap/internal/core/classify"
	"progcap/internal/core/route"
	"progcap/internal/core/window"
)

// Status is a job lifecycle state
type Status string

const (
	Pending    Status = "pending"
	Processing Status = "processing"
	Completed  Status = "completed"
	Failed     Status = "failed"
)

// Terminal reports whether no further transition is allowed
func (s Status) Terminal() bool { return s == Completed || s == Failed }

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case Pending, Processing, Completed, Failed:
		return true
	}
	return false
}

// Type is what a job captures
type Type string

const (
	TypePRDetails      Type = "pr_details"
	TypeReviews        Type = "reviews"
	TypeComments       Type = "comments"
	TypeCommits        Type = "commits"
	TypeHistoricalSync Type = "historical_sync"
)

// Types lists the known job types
var Types = []Type{TypePRDetails, TypeReviews, TypeComments, TypeCommits, TypeHistoricalSync}

// Valid reports whether t is a known job type
func (t Type) Valid() bool {
	for _, k := range Types {
		if t == k {
			return true
		}
	}
	return false
}

// Repository identifies the capture target
type Repository struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Metadata keys written by the engine
const (
	MetaRepoName              = "repositoryName"
	MetaWindow                = "window"
	MetaRetryCount            = "retryCount"
	MetaRetryOf               = "retryOf"
	MetaInCohort              = "inCohort"
	MetaRouteReason           = "routeReason"
	MetaOriginalDurationHours = "originalDurationHours"
)

// Job is one unit of orchestrated capture work
type Job struct {
	ID            uuid.UUID          `json:"id"`
	Type          Type               `json:"job_type"`
	Repo          Repository         `json:"repository"`
	Backend       route.Backend      `json:"backend"`
	Status        Status             `json:"status"`
	Feature       string             `json:"feature"`
	InCohort      bool               `json:"in_cohort"`
	WindowKey     string             `json:"window_key"`
	Window        window.Window      `json:"window"`
	Attempt       int                `json:"attempt"`
	RetryOf       *uuid.UUID         `json:"retry_of,omitempty"`
	RootJobID     uuid.UUID          `json:"root_job_id"`
	Error         *string            `json:"error,omitempty"`
	ErrorCategory *classify.Category `json:"error_category,omitempty"`
	Metadata      map[string]any     `json:"metadata"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
}

// Category returns the failure category or Unknown when unset
func (j Job) Category() classify.Category {
	if j.ErrorCategory == nil {
		return classify.Unknown
	}
	return *j.ErrorCategory
}

// NewJob is the input to Create
type NewJob struct {
	Type      Type
	Repo      Repository
	Backend   route.Backend
	Feature   string
	InCohort  bool
	Window    window.Window
	Attempt   int
	RetryOf   *uuid.UUID
	RootJobID *uuid.UUID
	Metadata  map[string]any
}

// FailInput describes a terminal failure
type FailInput struct {
	Error    string
	Category classify.Category
	Metadata map[string]any
}

// Filter narrows List
type Filter struct {
	Status  Status
	Backend route.Backend
	Type    Type
	RepoID  int64
	Limit   int
	Offset  int
}

// StatRow is a count of jobs by backend and status
type StatRow struct {
	Backend route.Backend `json:"backend"`
	Status  Status        `json:"status"`
	Count   int64         `json:"count"`
}

// ChainLink is one failed attempt in a retry chain
type ChainLink struct {
	JobID       uuid.UUID         `json:"job_id"`
	Attempt     int               `json:"attempt"`
	Error       string            `json:"error"`
	Category    classify.Category `json:"category"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}
