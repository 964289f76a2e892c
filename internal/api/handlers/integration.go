package handlers

import (
	"net/http"
	"time"

	"github.com/hostfolio/guesty-sync-backend/internal/adapters/guesty"
	"github.com/hostfolio/guesty-sync-backend/internal/api/dto"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

// IntegrationHandler exposes provider health and rate-limit telemetry.
type IntegrationHandler struct {
	*Base
}

// NewIntegrationHandler creates a new integration handler.
func NewIntegrationHandler(repo storage.Repository) *IntegrationHandler {
	return &IntegrationHandler{
		Base: NewBase(repo),
	}
}

// GetHealth handles GET /api/integration/health - the provider health record.
func (h *IntegrationHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.repo.GetIntegrationHealth(guesty.ProviderName)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if health == nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("integration health"))
		return
	}

	response := dto.IntegrationHealthResponse{
		Provider:           health.Provider,
		Status:             health.Status,
		LastBookingsSynced: health.LastBookingsSynced,
		LastError:          health.LastError,
		RateLimited:        health.RateLimited,
		UpdatedAt:          health.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if health.LastSynced != nil {
		response.LastSynced = health.LastSynced.UTC().Format(time.RFC3339)
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// GetUsage handles GET /api/integration/usage - recent rate-limit samples.
func (h *IntegrationHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	limit := ParseIntParam(r, "limit", 50)

	samples, err := h.repo.ListRateLimitSamples(limit)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.RateLimitUsageResponse{
		Samples: make([]dto.RateLimitSampleResponse, 0, len(samples)),
		Count:   len(samples),
	}
	for _, s := range samples {
		response.Samples = append(response.Samples, dto.RateLimitSampleResponse{
			Endpoint:  s.Endpoint,
			RateLimit: s.RateLimit,
			Remaining: s.Remaining,
			Reset:     s.Reset,
			Timestamp: s.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	h.WriteJSON(w, http.StatusOK, response)
}
