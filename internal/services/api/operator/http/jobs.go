package http

import (
	stdhttp "net/http"
	"strconv"
	"time"

	"progcap/internal/core/route"
	"progcap/internal/modkit/httpkit"
	perr "progcap/internal/platform/errors"
	"progcap/internal/services/api/operator/domain"
	jobsdomain "progcap/internal/services/jobs/domain"
)

func (h *handlers) jobRoutes(r httpkit.Router) {
	httpkit.Get(r, "/jobs", h.jobs)
	httpkit.Get(r, "/jobs/stats", h.stats)
	httpkit.PostJSON[domain.FailRequest](r, "/jobs/{id}/fail", h.forceFail)
	httpkit.PostJSON[domain.LargeRequest](r, "/repositories/{id}/large", h.markLarge)
}

// swagger:route GET /operator/jobs Operator operatorJobs
// @Summary List jobs
// @Tags Operator
// @Produce json
// @Param status query string false "pending, processing, completed or failed"
// @Param backend query string false "realtime or bulk"
// @Param job_type query string false "Job type"
// @Param repository_id query int false "Repository id"
// @Param limit query int false "Page size, default 50"
// @Param offset query int false "Offset"
// @Success 200 {array} jobsdomain.Job "ok"
// @Router /operator/jobs [get]
func (h *handlers) jobs(r *stdhttp.Request) (any, error) {
	q := r.URL.Query()
	f := jobsdomain.Filter{
		Status:  jobsdomain.Status(q.Get("status")),
		Backend: route.Backend(q.Get("backend")),
		Type:    jobsdomain.Type(q.Get("job_type")),
	}
	if f.Backend != "" && !f.Backend.Valid() {
		return nil, perr.WithField(perr.InvalidArgf("unknown backend %q", f.Backend), "backend")
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, perr.WithField(perr.InvalidArgf("unknown job type %q", f.Type), "job_type")
	}
	if raw := q.Get("repository_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, perr.WithField(perr.InvalidArgf("repository_id must be a positive integer"), "repository_id")
		}
		f.RepoID = id
	}
	var err error
	if f.Limit, err = httpkit.QueryInt(r, "limit", 50); err != nil {
		return nil, err
	}
	if f.Offset, err = httpkit.QueryInt(r, "offset", 0); err != nil {
		return nil, err
	}
	return h.d.Jobs.List(r.Context(), f)
}

// swagger:route GET /operator/jobs/stats Operator operatorJobStats
// @Summary Count jobs by backend and status
// @Tags Operator
// @Produce json
// @Param since query string false "Lookback window, default 24h"
// @Success 200 {array} jobsdomain.StatRow "ok"
// @Router /operator/jobs/stats [get]
func (h *handlers) stats(r *stdhttp.Request) (any, error) {
	since, err := h.since(r, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	return h.d.Jobs.Stats(r.Context(), since)
}

// swagger:route POST /operator/jobs/{id}/fail Operator operatorForceFail
// @Summary Force a live job to fail
// @Description The failure goes through the normal retry and dead letter path.
// @Tags Operator
// @Accept json
// @Produce json
// @Param id path string true "Job id"
// @Param payload body domain.FailRequest true "Failure"
// @Success 200 {object} routerdomain.Outcome "ok"
// @Failure 409 {object} httpkit.Envelope "job already terminal"
// @Router /operator/jobs/{id}/fail [post]
func (h *handlers) forceFail(r *stdhttp.Request, in domain.FailRequest) (any, error) {
	id, err := httpkit.UUIDParam(r, "id")
	if err != nil {
		return nil, err
	}
	return h.d.Router.Fail(r.Context(), id, in.Failure())
}

// swagger:route POST /operator/repositories/{id}/large Operator operatorMarkLarge
// @Summary Flag a repository as large
// @Description Large repositories route to the bulk backend.
// @Tags Operator
// @Accept json
// @Produce json
// @Param id path int true "Repository id"
// @Param payload body domain.LargeRequest true "Flag"
// @Success 200 {object} reposdomain.Repository "ok"
// @Router /operator/repositories/{id}/large [post]
func (h *handlers) markLarge(r *stdhttp.Request, in domain.LargeRequest) (any, error) {
	id, err := httpkit.Int64Param(r, "id")
	if err != nil {
		return nil, err
	}
	return h.d.Repos.MarkLarge(r.Context(), id, *in.Large)
}
