package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/modelgrid/provider-router/services/routing"
	"github.com/modelgrid/provider-router/utils"
)

// StatsService is the introspection surface the handler depends on.
type StatsService interface {
	Stats() routing.Stats
	Reset()
}

// RouterHandler exposes router introspection and administrative reset.
type RouterHandler struct {
	router StatsService
	logger *zap.Logger
}

// NewRouterHandler creates a new RouterHandler.
func NewRouterHandler(router StatsService, logger *zap.Logger) *RouterHandler {
	return &RouterHandler{
		router: router,
		logger: logger,
	}
}

// HandleStats handles GET /api/v1/router/stats.
func (h *RouterHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.router.Stats())
}

// HandleReset handles POST /api/v1/router/reset. It clears rate-limit and
// circuit-breaker state; intended for operators and test harnesses.
func (h *RouterHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.router.Reset()
	h.logger.Info("router state reset via API")
	utils.WriteNoContent(w)
}
