// Package domain holds request bodies for the backend callback endpoints
package domain

import (
	"time"

	"progcap/internal/core/classify"
	rldomain "progcap/internal/services/ratelimit/domain"
)

// StartRequest marks a job processing; Total is optional until the backend has enumerated its work
type StartRequest struct {
	Total *int `json:"total_items,omitempty" validate:"omitempty,gte=0"`
}

// TotalRequest sets the item total
type TotalRequest struct {
	Total int `json:"total_items" validate:"gte=0"`
}

// AdvanceRequest is one progress increment
type AdvanceRequest struct {
	Processed   int    `json:"processed_delta" validate:"gte=0"`
	Failed      int    `json:"failed_delta" validate:"gte=0"`
	CurrentItem string `json:"current_item" validate:"max=500"`
}

// FailRequest reports a terminal failure in the backend's own words
type FailRequest struct {
	HTTPStatus int    `json:"http_status,omitempty" validate:"omitempty,gte=100,lte=599"`
	Kind       string `json:"kind,omitempty" validate:"max=100"`
	Message    string `json:"message" validate:"required,max=2000"`
}

// Failure converts the request for classification
func (f FailRequest) Failure() classify.Failure {
	return classify.Failure{HTTPStatus: f.HTTPStatus, Kind: f.Kind, Message: f.Message}
}

// SampleRequest is a quota observation as sent over HTTP
type SampleRequest struct {
	Remaining         int       `json:"remaining" validate:"gte=0"`
	Limit             int       `json:"limit" validate:"gte=0"`
	Reset             time.Time `json:"reset"`
	RetryAfterSeconds int       `json:"retry_after_seconds" validate:"gte=0"`
}

// Sample converts the request for the monitor
func (s SampleRequest) Sample() rldomain.Sample {
	return rldomain.Sample{
		Remaining:  s.Remaining,
		Limit:      s.Limit,
		Reset:      s.Reset,
		RetryAfter: time.Duration(s.RetryAfterSeconds) * time.Second,
	}
}
