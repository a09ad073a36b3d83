package handlers

import (
	"net/http"

	"github.com/modelgrid/provider-router/utils"
)

// HealthCheck handles GET /healthz. It reports process liveness only;
// provider health lives on the providers endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
