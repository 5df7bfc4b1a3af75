// Package http provides the operator endpoints for rollout control, dead letters and job triage
package http

import (
	stdhttp "net/http"
	"time"

	"progcap/internal/modkit/httpkit"
	perr "progcap/internal/platform/errors"
	dldomain "progcap/internal/services/deadletter/domain"
	jobsdomain "progcap/internal/services/jobs/domain"
	rldomain "progcap/internal/services/ratelimit/domain"
	recdomain "progcap/internal/services/reconciler/domain"
	reposdomain "progcap/internal/services/repos/domain"
	rolloutdomain "progcap/internal/services/rollout/domain"
	routerdomain "progcap/internal/services/router/domain"
	guarddomain "progcap/internal/services/spikeguard/domain"
	timelinedomain "progcap/internal/services/timeline/domain"
)

// Deps are the ports the handlers call; Reconciler and Guard may be nil when
// those workers run in another process
type Deps struct {
	Rollout    rolloutdomain.ServicePort
	DLQ        dldomain.ServicePort
	Jobs       jobsdomain.ServicePort
	Router     routerdomain.ServicePort
	Repos      reposdomain.ServicePort
	Quota      rldomain.ServicePort
	Events     timelinedomain.ServicePort
	Reconciler recdomain.ServicePort
	Guard      guarddomain.ServicePort
}

type handlers struct {
	d   Deps
	now func() time.Time
}

// Register mounts the operator routes
func Register(r httpkit.Router, d Deps) {
	h := &handlers{d: d, now: time.Now}

	h.rolloutRoutes(r)
	h.deadLetterRoutes(r)
	h.jobRoutes(r)

	httpkit.Post(r, "/reconcile", h.reconcile)
	httpkit.Get(r, "/guard/{feature}", h.guard)
	httpkit.Get(r, "/events/summary", h.events)
	httpkit.Get(r, "/ratelimit", h.quotas)
}

// since reads ?since=<duration> as a lookback from now
func (h *handlers) since(r *stdhttp.Request, def time.Duration) (time.Time, error) {
	d, err := httpkit.QueryDuration(r, "since", def)
	if err != nil {
		return time.Time{}, err
	}
	if d <= 0 {
		return time.Time{}, perr.WithField(perr.InvalidArgf("since must be positive"), "since")
	}
	return h.now().Add(-d), nil
}

// swagger:route POST /operator/reconcile Operator operatorReconcile
// @Summary Run a stuck job sweep now
// @Tags Operator
// @Produce json
// @Success 200 {object} recdomain.Report "ok"
// @Failure 503 {object} httpkit.Envelope "reconciler not running in this process"
// @Router /operator/reconcile [post]
func (h *handlers) reconcile(r *stdhttp.Request) (any, error) {
	if h.d.Reconciler == nil {
		return nil, perr.Unavailablef("reconciler is not enabled in this process")
	}
	return h.d.Reconciler.Sweep(r.Context())
}

// GuardView is the error spike guard state of a feature
type GuardView struct {
	Feature string            `json:"feature"`
	State   guarddomain.State `json:"state"`
}

// swagger:route GET /operator/guard/{feature} Operator operatorGuard
// @Summary Get the error spike guard state
// @Tags Operator
// @Produce json
// @Param feature path string true "Feature"
// @Success 200 {object} GuardView "ok"
// @Router /operator/guard/{feature} [get]
func (h *handlers) guard(r *stdhttp.Request) (any, error) {
	if h.d.Guard == nil {
		return nil, perr.Unavailablef("error spike guard is not enabled in this process")
	}
	feature, err := httpkit.MustParam(r, "feature")
	if err != nil {
		return nil, err
	}
	st, err := h.d.Guard.State(r.Context(), feature)
	if err != nil {
		return nil, err
	}
	return GuardView{Feature: feature, State: st}, nil
}

// swagger:route GET /operator/events/summary Operator operatorEvents
// @Summary Count lifecycle events by kind and backend
// @Tags Operator
// @Produce json
// @Param since query string false "Lookback window, default 24h"
// @Success 200 {array} timelinedomain.SummaryRow "ok"
// @Failure 503 {object} httpkit.Envelope "event ledger disabled"
// @Router /operator/events/summary [get]
func (h *handlers) events(r *stdhttp.Request) (any, error) {
	if h.d.Events == nil || !h.d.Events.Enabled() {
		return nil, perr.Unavailablef("event ledger is not configured")
	}
	since, err := h.since(r, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	return h.d.Events.Summary(r.Context(), since)
}

// swagger:route GET /operator/ratelimit Operator operatorQuotas
// @Summary List the last known quota of every scope
// @Tags Operator
// @Produce json
// @Success 200 {array} rldomain.Snapshot "ok"
// @Router /operator/ratelimit [get]
func (h *handlers) quotas(r *stdhttp.Request) (any, error) {
	return h.d.Quota.Snapshots(r.Context())
}
