// Package domain holds request bodies for the operator endpoints
package domain

import (
	"progcap/internal/core/classify"
	"progcap/internal/core/cohort"
)

// Change carries the audit fields every rollout mutation records
type Change struct {
	Reason string `json:"reason" validate:"required,max=500"`
	Actor  string `json:"actor" validate:"required,max=100"`
}

// PercentageRequest sets the cohort percentage
type PercentageRequest struct {
	Percentage *int `json:"percentage" validate:"required,gte=0,lte=100"`
	Change
}

// EmergencyStopRequest sets or clears the kill switch
type EmergencyStopRequest struct {
	Stop *bool `json:"stop" validate:"required"`
	Change
}

// StrategyRequest changes how cohort membership is computed
type StrategyRequest struct {
	Strategy cohort.Strategy `json:"strategy" validate:"required,oneof=hash random"`
	Change
}

// ResolveRequest closes a dead letter entry
type ResolveRequest struct {
	Actor string `json:"actor" validate:"required,max=100"`
	Note  string `json:"note" validate:"max=2000"`
}

// FailRequest forces a live job to fail; Category defaults to unknown
type FailRequest struct {
	Reason   string            `json:"reason" validate:"required,max=2000"`
	Category classify.Category `json:"category,omitempty" validate:"omitempty,oneof=timeout validation external_api rate_limit unknown"`
	Actor    string            `json:"actor" validate:"required,max=100"`
}

// Failure converts the request for classification
func (f FailRequest) Failure() classify.Failure {
	kind := f.Category
	if kind == "" {
		kind = classify.Unknown
	}
	return classify.Failure{Kind: string(kind), Message: "forced by " + f.Actor + ": " + f.Reason}
}

// LargeRequest flags a repository as large
type LargeRequest struct {
	Large *bool `json:"large" validate:"required"`
}
