package http

import (
	stdhttp "net/http"

	"progcap/internal/modkit/httpkit"
	"progcap/internal/services/api/operator/domain"
)

func (h *handlers) rolloutRoutes(r httpkit.Router) {
	httpkit.Get(r, "/rollout", h.rollouts)
	httpkit.Get(r, "/rollout/{feature}", h.rollout)
	httpkit.Get(r, "/rollout/{feature}/history", h.history)
	httpkit.PostJSON[domain.PercentageRequest](r, "/rollout/{feature}/percentage", h.percentage)
	httpkit.PostJSON[domain.EmergencyStopRequest](r, "/rollout/{feature}/emergency-stop", h.emergencyStop)
	httpkit.PostJSON[domain.StrategyRequest](r, "/rollout/{feature}/strategy", h.strategy)
}

// swagger:route GET /operator/rollout Operator operatorRollouts
// @Summary List rollout configs
// @Tags Operator
// @Produce json
// @Success 200 {array} rolloutdomain.Config "ok"
// @Router /operator/rollout [get]
func (h *handlers) rollouts(r *stdhttp.Request) (any, error) {
	return h.d.Rollout.List(r.Context())
}

// swagger:route GET /operator/rollout/{feature} Operator operatorRollout
// @Summary Get a rollout config
// @Description Unknown features read as 0% with no stop.
// @Tags Operator
// @Produce json
// @Param feature path string true "Feature"
// @Success 200 {object} rolloutdomain.Config "ok"
// @Router /operator/rollout/{feature} [get]
func (h *handlers) rollout(r *stdhttp.Request) (any, error) {
	feature, err := httpkit.MustParam(r, "feature")
	if err != nil {
		return nil, err
	}
	return h.d.Rollout.GetConfig(r.Context(), feature)
}

// swagger:route GET /operator/rollout/{feature}/history Operator operatorRolloutHistory
// @Summary List rollout changes, newest first
// @Tags Operator
// @Produce json
// @Param feature path string true "Feature"
// @Param limit query int false "Max entries, default 50"
// @Success 200 {array} rolloutdomain.HistoryEntry "ok"
// @Router /operator/rollout/{feature}/history [get]
func (h *handlers) history(r *stdhttp.Request) (any, error) {
	feature, err := httpkit.MustParam(r, "feature")
	if err != nil {
		return nil, err
	}
	limit, err := httpkit.QueryInt(r, "limit", 50)
	if err != nil {
		return nil, err
	}
	return h.d.Rollout.History(r.Context(), feature, limit)
}

// swagger:route POST /operator/rollout/{feature}/percentage Operator operatorPercentage
// @Summary Set the cohort percentage
// @Tags Operator
// @Accept json
// @Produce json
// @Param feature path string true "Feature"
// @Param payload body domain.PercentageRequest true "Change"
// @Success 200 {object} rolloutdomain.Config "ok"
// @Failure 400 {object} httpkit.Envelope "invalid percentage"
// @Router /operator/rollout/{feature}/percentage [post]
func (h *handlers) percentage(r *stdhttp.Request, in domain.PercentageRequest) (any, error) {
	feature, err := httpkit.MustParam(r, "feature")
	if err != nil {
		return nil, err
	}
	return h.d.Rollout.SetPercentage(r.Context(), feature, *in.Percentage, in.Reason, in.Actor)
}

// swagger:route POST /operator/rollout/{feature}/emergency-stop Operator operatorEmergencyStop
// @Summary Set or clear the emergency stop
// @Description While set, every submission for the feature routes to the realtime backend.
// @Tags Operator
// @Accept json
// @Produce json
// @Param feature path string true "Feature"
// @Param payload body domain.EmergencyStopRequest true "Change"
// @Success 200 {object} rolloutdomain.Config "ok"
// @Router /operator/rollout/{feature}/emergency-stop [post]
func (h *handlers) emergencyStop(r *stdhttp.Request, in domain.EmergencyStopRequest) (any, error) {
	feature, err := httpkit.MustParam(r, "feature")
	if err != nil {
		return nil, err
	}
	return h.d.Rollout.SetEmergencyStop(r.Context(), feature, *in.Stop, in.Reason, in.Actor)
}

// swagger:route POST /operator/rollout/{feature}/strategy Operator operatorStrategy
// @Summary Change the cohort strategy
// @Tags Operator
// @Accept json
// @Produce json
// @Param feature path string true "Feature"
// @Param payload body domain.StrategyRequest true "Change"
// @Success 200 {object} rolloutdomain.Config "ok"
// @Router /operator/rollout/{feature}/strategy [post]
func (h *handlers) strategy(r *stdhttp.Request, in domain.StrategyRequest) (any, error) {
	feature, err := httpkit.MustParam(r, "feature")
	if err != nil {
		return nil, err
	}
	return h.d.Rollout.SetStrategy(r.Context(), feature, in.Strategy, in.Reason, in.Actor)
}
