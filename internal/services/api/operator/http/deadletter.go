package http

import (
	stdhttp "net/http"

	"progcap/internal/core/classify"
	"progcap/internal/modkit/httpkit"
	"progcap/internal/services/api/operator/domain"
	dldomain "progcap/internal/services/deadletter/domain"
)

func (h *handlers) deadLetterRoutes(r httpkit.Router) {
	httpkit.Get(r, "/dlq", h.deadLetters)
	httpkit.Get(r, "/dlq/counts", h.deadLetterCounts)
	httpkit.Get(r, "/dlq/{id}", h.deadLetter)
	httpkit.PostJSON[domain.ResolveRequest](r, "/dlq/{id}/resolve", h.resolve)
}

// swagger:route GET /operator/dlq Operator operatorDeadLetters
// @Summary List dead letter entries
// @Tags Operator
// @Produce json
// @Param category query string false "Failure category"
// @Param unresolved query bool false "Only unresolved entries, default true"
// @Param limit query int false "Page size, default 50"
// @Param offset query int false "Offset"
// @Success 200 {array} dldomain.Entry "ok"
// @Router /operator/dlq [get]
func (h *handlers) deadLetters(r *stdhttp.Request) (any, error) {
	unresolved, err := httpkit.QueryBool(r, "unresolved", true)
	if err != nil {
		return nil, err
	}
	limit, err := httpkit.QueryInt(r, "limit", 50)
	if err != nil {
		return nil, err
	}
	offset, err := httpkit.QueryInt(r, "offset", 0)
	if err != nil {
		return nil, err
	}
	return h.d.DLQ.List(r.Context(), dldomain.Filter{
		Category:   classify.Category(r.URL.Query().Get("category")),
		Unresolved: unresolved,
		Limit:      limit,
		Offset:     offset,
	})
}

// swagger:route GET /operator/dlq/counts Operator operatorDeadLetterCounts
// @Summary Count unresolved entries by category
// @Tags Operator
// @Produce json
// @Success 200 {array} dldomain.CategoryCount "ok"
// @Router /operator/dlq/counts [get]
func (h *handlers) deadLetterCounts(r *stdhttp.Request) (any, error) {
	return h.d.DLQ.Counts(r.Context())
}

// swagger:route GET /operator/dlq/{id} Operator operatorDeadLetter
// @Summary Get a dead letter entry with its retry history
// @Tags Operator
// @Produce json
// @Param id path string true "Entry id"
// @Success 200 {object} dldomain.Entry "ok"
// @Failure 404 {object} httpkit.Envelope "not found"
// @Router /operator/dlq/{id} [get]
func (h *handlers) deadLetter(r *stdhttp.Request) (any, error) {
	id, err := httpkit.UUIDParam(r, "id")
	if err != nil {
		return nil, err
	}
	return h.d.DLQ.Get(r.Context(), id)
}

// swagger:route POST /operator/dlq/{id}/resolve Operator operatorResolve
// @Summary Resolve a dead letter entry
// @Tags Operator
// @Accept json
// @Produce json
// @Param id path string true "Entry id"
// @Param payload body domain.ResolveRequest true "Resolution"
// @Success 200 {object} dldomain.Entry "ok"
// @Failure 409 {object} httpkit.Envelope "already resolved"
// @Router /operator/dlq/{id}/resolve [post]
func (h *handlers) resolve(r *stdhttp.Request, in domain.ResolveRequest) (any, error) {
	id, err := httpkit.UUIDParam(r, "id")
	if err != nil {
		return nil, err
	}
	return h.d.DLQ.Resolve(r.Context(), id, in.Actor, in.Note)
}
