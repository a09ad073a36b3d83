package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/modelgrid/provider-router/services/providers"
	"github.com/modelgrid/provider-router/utils"
)

// ProviderView is the read model returned by the provider listing.
type ProviderView struct {
	providers.ProviderDescriptor
	Health providers.HealthStatus `json:"health"`
}

// ProviderHandler exposes catalog listing and administration.
type ProviderHandler struct {
	catalog *providers.StaticCatalog
	oracle  providers.HealthOracle
	logger  *zap.Logger
}

// NewProviderHandler creates a new ProviderHandler.
func NewProviderHandler(catalog *providers.StaticCatalog, oracle providers.HealthOracle, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{
		catalog: catalog,
		oracle:  oracle,
		logger:  logger,
	}
}

// HandleList handles GET /api/v1/providers.
func (h *ProviderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	descriptors := h.catalog.All()
	views := make([]ProviderView, len(descriptors))
	for i, d := range descriptors {
		views[i] = ProviderView{
			ProviderDescriptor: d,
			Health:             h.oracle.Classify(d.ID),
		}
	}
	_ = utils.WriteOK(w, views)
}

// enableRequest is the body for the enable toggle.
type enableRequest struct {
	Enabled bool `json:"enabled"`
}

// HandleSetEnabled handles PUT /api/v1/providers/{id}/enabled.
func (h *ProviderHandler) HandleSetEnabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req enableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "invalid request body", nil)
		return
	}

	if err := h.catalog.SetEnabled(id, req.Enabled); err != nil {
		if errors.Is(err, providers.ErrProviderNotFound) {
			_ = utils.WriteNotFound(w, "provider not found")
			return
		}
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	h.logger.Info("provider toggled",
		zap.String("provider_id", id),
		zap.Bool("enabled", req.Enabled))
	utils.WriteNoContent(w)
}
