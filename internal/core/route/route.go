// Package route holds the pure backend selection rule for capture jobs
package route

import "time"

// Backend is an execution strategy
type Backend string

const (
	// Realtime is the low-latency recent-window backend
	Realtime Backend = "realtime"
	// Bulk is the historical backfill backend
	Bulk Backend = "bulk"
)

// Valid reports whether b names a known backend
func (b Backend) Valid() bool { return b == Realtime || b == Bulk }

// Reason explains a routing decision
type Reason string

// Reasons, in rule order
const (
	ReasonEmergencyStop   Reason = "emergency_stop"
	ReasonNotInCohort     Reason = "not_in_cohort"
	ReasonMonitorDown     Reason = "ratelimit_unavailable"
	ReasonStaleWindow     Reason = "stale_window"
	ReasonBatchSize       Reason = "batch_size"
	ReasonLargeRepo       Reason = "large_repo"
	ReasonRealtimeBackoff Reason = "realtime_throttled"
	ReasonFreshWindow     Reason = "fresh_window"
)

// Input is everything the rule looks at
type Input struct {
	EmergencyStop bool
	InCohort      bool

	WindowAge time.Duration
	ItemCount int
	Large     bool

	Freshness time.Duration
	BatchSize int
	Default   Backend

	RealtimeThrottled bool
	MonitorDown       bool
}

// Decision is the chosen backend and why
type Decision struct {
	Backend Backend `json:"backend"`
	Reason  Reason  `json:"reason"`
}

// Decide applies the routing rules in order; the first match wins
func Decide(in Input) Decision {
	def := in.Default
	if !def.Valid() {
		def = Realtime
	}
	switch {
	case in.EmergencyStop:
		return Decision{def, ReasonEmergencyStop}
	case !in.InCohort:
		return Decision{def, ReasonNotInCohort}
	case in.MonitorDown:
		return Decision{def, ReasonMonitorDown}
	case in.Freshness > 0 && in.WindowAge > in.Freshness:
		return Decision{Bulk, ReasonStaleWindow}
	case in.BatchSize > 0 && in.ItemCount > in.BatchSize:
		return Decision{Bulk, ReasonBatchSize}
	case in.Large:
		return Decision{Bulk, ReasonLargeRepo}
	case in.RealtimeThrottled:
		return Decision{Bulk, ReasonRealtimeBackoff}
	}
	return Decision{Realtime, ReasonFreshWindow}
}
