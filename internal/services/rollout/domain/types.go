// Package domain defines rollout configuration, its audit history and the controller ports
package domain

import (
	"context"
	"time"

	"progcap/internal/core/cohort"
)

// Config is the rollout state of one feature
type Config struct {
	Feature       string          `json:"feature"`
	Percentage    int             `json:"percentage"`
	Strategy      cohort.Strategy `json:"strategy"`
	EmergencyStop bool            `json:"emergency_stop"`
	StopClearedAt *time.Time      `json:"stop_cleared_at,omitempty"`
	Version       int64           `json:"version"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Default is the state of a feature nobody has configured yet
func Default(feature string) Config {
	return Config{Feature: feature, Strategy: cohort.Hash}
}

// Effective is the percentage routing must use; an emergency stop forces 0
func (c Config) Effective() int {
	if c.EmergencyStop {
		return 0
	}
	return c.Percentage
}

// HistoryEntry records one configuration change; rows are never updated or deleted
type HistoryEntry struct {
	ID                 int64           `json:"id"`
	Feature            string          `json:"feature"`
	PreviousPercentage int             `json:"previous_percentage"`
	NewPercentage      int             `json:"new_percentage"`
	PreviousStop       bool            `json:"previous_stop"`
	NewStop            bool            `json:"new_stop"`
	PreviousStrategy   cohort.Strategy `json:"previous_strategy"`
	NewStrategy        cohort.Strategy `json:"new_strategy"`
	Reason             string          `json:"reason"`
	Actor              string          `json:"actor"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Change describes who changes a feature and why
type Change struct {
	Reason string
	Actor  string
}

// Reader reads rollout state for routing
type Reader interface {
	GetConfig(ctx context.Context, feature string) (Config, error)
}

// StopSetter is the narrow write capability granted to the error-spike guard
type StopSetter interface {
	SetEmergencyStop(ctx context.Context, feature string, stop bool, reason, actor string) (Config, error)
}

// ServicePort is the full controller surface used by operators
type ServicePort interface {
	Reader
	StopSetter
	List(ctx context.Context) ([]Config, error)
	SetPercentage(ctx context.Context, feature string, pct int, reason, actor string) (Config, error)
	SetStrategy(ctx context.Context, feature string, s cohort.Strategy, reason, actor string) (Config, error)
	History(ctx context.Context, feature string, limit int) ([]HistoryEntry, error)
}
