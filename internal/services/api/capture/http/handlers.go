// Package http provides the submission and status endpoints
package http

import (
	stdhttp "net/http"

	"progcap/internal/modkit/httpkit"
	"progcap/internal/services/api/capture/domain"
	jobsdomain "progcap/internal/services/jobs/domain"
	progressdomain "progcap/internal/services/progress/domain"
	routerdomain "progcap/internal/services/router/domain"
)

// Deps are the ports the handlers call
type Deps struct {
	Router   routerdomain.ServicePort
	Jobs     jobsdomain.ServicePort
	Progress progressdomain.ServicePort
}

type handlers struct{ d Deps }

// Register mounts the capture routes
func Register(r httpkit.Router, d Deps) {
	h := &handlers{d: d}
	httpkit.PostJSON[routerdomain.Request](r, "/jobs", h.submit)
	httpkit.Get(r, "/jobs/{id}", h.job)
	httpkit.Get(r, "/jobs/{id}/progress", h.progress)
}

// swagger:route POST /capture/jobs Capture captureSubmit
// @Summary Submit a capture job
// @Description Routes the job to the realtime or bulk backend and dispatches it. An identical in-flight request returns the existing job with coalesced=true.
// @Tags Capture
// @Accept json
// @Produce json
// @Param payload body routerdomain.Request true "Submission"
// @Success 201 {object} routerdomain.Result "created"
// @Success 200 {object} routerdomain.Result "coalesced"
// @Failure 400 {object} httpkit.Envelope "invalid request"
// @Failure 503 {object} httpkit.Envelope "job store unavailable"
// @Router /capture/jobs [post]
func (h *handlers) submit(r *stdhttp.Request, in routerdomain.Request) (any, error) {
	res, err := h.d.Router.Submit(r.Context(), in)
	if err != nil {
		return nil, err
	}
	if res.Coalesced {
		return httpkit.OK(res), nil
	}
	return httpkit.Created(res), nil
}

// swagger:route GET /capture/jobs/{id} Capture captureJob
// @Summary Get a capture job
// @Tags Capture
// @Produce json
// @Param id path string true "Job id"
// @Success 200 {object} domain.JobView "ok"
// @Failure 404 {object} httpkit.Envelope "not found"
// @Router /capture/jobs/{id} [get]
func (h *handlers) job(r *stdhttp.Request) (any, error) {
	id, err := httpkit.UUIDParam(r, "id")
	if err != nil {
		return nil, err
	}
	j, err := h.d.Jobs.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return domain.ViewOf(j), nil
}

// swagger:route GET /capture/jobs/{id}/progress Capture captureProgress
// @Summary Get job progress
// @Tags Capture
// @Produce json
// @Param id path string true "Job id"
// @Success 200 {object} progressdomain.Snapshot "ok"
// @Failure 404 {object} httpkit.Envelope "no progress recorded"
// @Router /capture/jobs/{id}/progress [get]
func (h *handlers) progress(r *stdhttp.Request) (any, error) {
	id, err := httpkit.UUIDParam(r, "id")
	if err != nil {
		return nil, err
	}
	return h.d.Progress.Snapshot(r.Context(), id)
}
