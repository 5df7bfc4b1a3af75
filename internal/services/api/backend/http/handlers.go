// Package http provides the callback endpoints execution backends report through
package http

import (
	stdhttp "net/http"

	"progcap/internal/modkit/httpkit"
	"progcap/internal/services/api/backend/domain"
	progressdomain "progcap/internal/services/progress/domain"
	rldomain "progcap/internal/services/ratelimit/domain"
	routerdomain "progcap/internal/services/router/domain"
)

// Deps are the ports the handlers call
type Deps struct {
	Router   routerdomain.ServicePort
	Progress progressdomain.ServicePort
	Quota    rldomain.ServicePort
}

type handlers struct{ d Deps }

// Register mounts the backend routes
func Register(r httpkit.Router, d Deps) {
	h := &handlers{d: d}
	httpkit.PostJSON[domain.StartRequest](r, "/jobs/{id}/start", h.start)
	httpkit.PostJSON[domain.TotalRequest](r, "/jobs/{id}/total", h.total)
	httpkit.PostJSON[domain.AdvanceRequest](r, "/jobs/{id}/advance", h.advance)
	httpkit.Post(r, "/jobs/{id}/complete", h.complete)
	httpkit.PostJSON[domain.FailRequest](r, "/jobs/{id}/fail", h.fail)

	httpkit.Get(r, "/ratelimit/{scope}", h.decide)
	httpkit.PostJSON[domain.SampleRequest](r, "/ratelimit/{scope}", h.observe)
}

// swagger:route POST /backend/jobs/{id}/start Backend backendStart
// @Summary Start progress tracking for a job
// @Description Creates the progress record; repeating it keeps counters and fills a missing total.
// @Tags Backend
// @Accept json
// @Produce json
// @Param id path string true "Job id"
// @Param payload body domain.StartRequest true "Optional total"
// @Success 200 {object} progressdomain.Record "ok"
// @Failure 404 {object} httpkit.Envelope "job not found"
// @Router /backend/jobs/{id}/start [post]
func (h *handlers) start(r *stdhttp.Request, in domain.StartRequest) (any, error) {
	id, err := httpkit.UUIDParam(r, "id")
	if err != nil {
		return nil, err
	}
	return h.d.Progress.Start(r.Context(), id, in.Total)
}

// swagger:route POST /backend/jobs/{id}/total Backend backendTotal
// @Summary Set the total item count
// @Tags Backend
// @Accept json
// @Produce json
// @Param id path string true "Job id"
// @Param payload body domain.TotalRequest true "Total"
// @Success 200 {object} progressdomain.Record "ok"
// @Router /backend/jobs/{id}/total [post]
func (h *handlers) total(r *stdhttp.Request, in domain.TotalRequest) (any, error) {
	id, err := httpkit.UUIDParam(r, "id")
	if err != nil {
		return nil, err
	}
	return h.d.Progress.SetTotal(r.Context(), id, in.Total)
}

// swagger:route POST /backend/jobs/{id}/advance Backend backendAdvance
// @Summary Record processed and failed items
// @Tags Backend
// @Accept json
// @Produce json
// @Param id path string true "Job id"
// @Param payload body domain.AdvanceRequest true "Increment"
// @Success 200 {object} progressdomain.Record "ok"
// @Failure 404 {object} httpkit.Envelope "progress not started"
// @Router /backend/jobs/{id}/advance [post]
func (h *handlers) advance(r *stdhttp.Request, in domain.AdvanceRequest) (any, error) {
	id, err := httpkit.UUIDParam(r, "id")
	if err != nil {
		return nil, err
	}
	return h.d.Progress.Advance(r.Context(), id, progressdomain.Delta{
		Processed:   in.Processed,
		Failed:      in.Failed,
		CurrentItem: in.CurrentItem,
	})
}

// swagger:route POST /backend/jobs/{id}/complete Backend backendComplete
// @Summary Mark a job completed
// @Tags Backend
// @Produce json
// @Param id path string true "Job id"
// @Success 200 {object} jobsdomain.Job "ok"
// @Failure 409 {object} httpkit.Envelope "job already terminal"
// @Router /backend/jobs/{id}/complete [post]
func (h *handlers) complete(r *stdhttp.Request) (any, error) {
	id, err := httpkit.UUIDParam(r, "id")
	if err != nil {
		return nil, err
	}
	return h.d.Router.Complete(r.Context(), id)
}

// swagger:route POST /backend/jobs/{id}/fail Backend backendFail
// @Summary Report a job failure
// @Description Classifies the failure, then either schedules a retry or moves the job to the dead letter queue.
// @Tags Backend
// @Accept json
// @Produce json
// @Param id path string true "Job id"
// @Param payload body domain.FailRequest true "Failure"
// @Success 200 {object} routerdomain.Outcome "ok"
// @Failure 409 {object} httpkit.Envelope "job already terminal"
// @Router /backend/jobs/{id}/fail [post]
func (h *handlers) fail(r *stdhttp.Request, in domain.FailRequest) (any, error) {
	id, err := httpkit.UUIDParam(r, "id")
	if err != nil {
		return nil, err
	}
	return h.d.Router.Fail(r.Context(), id, in.Failure())
}

// swagger:route GET /backend/ratelimit/{scope} Backend backendDecide
// @Summary Ask whether a quota scope may issue calls
// @Tags Backend
// @Produce json
// @Param scope path string true "Quota scope"
// @Success 200 {object} rldomain.Decision "ok"
// @Router /backend/ratelimit/{scope} [get]
func (h *handlers) decide(r *stdhttp.Request) (any, error) {
	scope, err := httpkit.MustParam(r, "scope")
	if err != nil {
		return nil, err
	}
	return h.d.Quota.Decide(r.Context(), scope)
}

// swagger:route POST /backend/ratelimit/{scope} Backend backendObserve
// @Summary Report a quota observation
// @Tags Backend
// @Accept json
// @Produce json
// @Param scope path string true "Quota scope"
// @Param payload body domain.SampleRequest true "Observation"
// @Success 200 {object} rldomain.Snapshot "ok"
// @Router /backend/ratelimit/{scope} [post]
func (h *handlers) observe(r *stdhttp.Request, in domain.SampleRequest) (any, error) {
	scope, err := httpkit.MustParam(r, "scope")
	if err != nil {
		return nil, err
	}
	return h.d.Quota.Observe(r.Context(), scope, in.Sample())
}
