package handlers

import (
	"net/http"

	"github.com/kozaktomas/companion/internal/database"
)

// HealthHandler reports readiness of the companion
type HealthHandler struct {
	version    string
	enrichment string
	detection  DetectionController
}

// NewHealthHandler creates a new health handler. enrichment is the name of the
// configured description provider, empty when none is configured.
func NewHealthHandler(version, enrichment string, detection DetectionController) *HealthHandler {
	return &HealthHandler{version: version, enrichment: enrichment, detection: detection}
}

type healthResponse struct {
	Status             string `json:"status"`
	Version            string `json:"version"`
	Backend            string `json:"backend"`
	DetectionActive    bool   `json:"detection_active"`
	EnrichmentProvider string `json:"enrichment_provider"`
}

// Check answers 200 when storage is registered and 503 otherwise.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:             "ok",
		Version:            h.version,
		Backend:            database.BackendName(),
		EnrichmentProvider: h.enrichment,
	}
	if resp.EnrichmentProvider == "" {
		resp.EnrichmentProvider = "none"
	}
	if h.detection != nil {
		resp.DetectionActive = h.detection.Status().Active
	}

	status := http.StatusOK
	if !database.IsInitialized() {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}
