package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hostfolio/guesty-sync-backend/internal/adapters/guesty"
	"github.com/hostfolio/guesty-sync-backend/internal/api/dto"
	"github.com/hostfolio/guesty-sync-backend/internal/application/service"
	appsync "github.com/hostfolio/guesty-sync-backend/internal/application/sync"
)

// SyncHandler handles sync-related HTTP requests.
type SyncHandler struct {
	*Base
	syncService *service.SyncService
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(syncService *service.SyncService) *SyncHandler {
	return &SyncHandler{
		Base:        &Base{},
		syncService: syncService,
	}
}

// decodeSyncRequest validates the shared request body
func (h *SyncHandler) decodeSyncRequest(w http.ResponseWriter, r *http.Request) (service.SyncRequest, bool) {
	var req dto.StartSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return service.SyncRequest{}, false
	}

	if req.ListingID == "" && !req.SyncAll {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("either listingId or syncAll is required"))
		return service.SyncRequest{}, false
	}
	if req.ListingID != "" && req.SyncAll {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("listingId and syncAll are mutually exclusive"))
		return service.SyncRequest{}, false
	}

	return service.SyncRequest{
		ListingID:     req.ListingID,
		SyncAll:       req.SyncAll,
		BudgetSeconds: req.BudgetSeconds,
		Verbose:       req.Verbose,
	}, true
}

// StartSync handles POST /api/sync - starts a new async sync job.
func (h *SyncHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	serviceReq, ok := h.decodeSyncRequest(w, r)
	if !ok {
		return
	}

	jobID, err := h.syncService.StartSync(r.Context(), serviceReq)
	if err != nil {
		h.WriteError(w, http.StatusConflict, dto.ConflictError(err.Error()))
		return
	}

	h.WriteJSON(w, http.StatusAccepted, dto.StartSyncResponse{
		JobID:    jobID,
		Provider: guesty.ProviderName,
		Status:   "pending",
	})
}

// RunSync handles POST /api/sync/run - runs a sync synchronously and returns
// the full result. The call blocks for the duration of the run.
func (h *SyncHandler) RunSync(w http.ResponseWriter, r *http.Request) {
	serviceReq, ok := h.decodeSyncRequest(w, r)
	if !ok {
		return
	}

	result, err := h.syncService.RunSync(r.Context(), serviceReq)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSyncInProgress):
			h.WriteError(w, http.StatusConflict, dto.ConflictError(err.Error()))
		case errors.Is(err, appsync.ErrInvalidOptions):
			h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(err.Error()))
		case isRateLimit(err):
			h.WriteError(w, http.StatusTooManyRequests, dto.RateLimitedError(err.Error()))
		default:
			h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		}
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

func isRateLimit(err error) bool {
	var rlErr *guesty.RateLimitError
	return errors.As(err, &rlErr)
}

// GetSyncStatus handles GET /api/sync/{jobId} - gets sync job status.
func (h *SyncHandler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("job ID is required"))
		return
	}

	job, err := h.syncService.GetSyncJob(jobID)
	if err != nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("sync job"))
		return
	}

	h.WriteJSON(w, http.StatusOK, toSyncJobResponse(job))
}

// ListActiveSyncs handles GET /api/sync/active - lists active sync jobs.
func (h *SyncHandler) ListActiveSyncs(w http.ResponseWriter, r *http.Request) {
	jobs := h.syncService.ListActiveSyncJobs()

	response := dto.ActiveSyncsResponse{
		Jobs:  make([]dto.SyncJobResponse, 0, len(jobs)),
		Count: len(jobs),
	}
	for _, job := range jobs {
		response.Jobs = append(response.Jobs, toSyncJobResponse(job))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// ListAllSyncs handles GET /api/sync - lists all sync jobs.
func (h *SyncHandler) ListAllSyncs(w http.ResponseWriter, r *http.Request) {
	jobs := h.syncService.ListAllSyncJobs()

	response := dto.AllSyncsResponse{
		Jobs:  make([]dto.SyncJobResponse, 0, len(jobs)),
		Count: len(jobs),
	}
	for _, job := range jobs {
		response.Jobs = append(response.Jobs, toSyncJobResponse(job))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// CancelSync handles DELETE /api/sync/{jobId} - cancels a sync job.
func (h *SyncHandler) CancelSync(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("job ID is required"))
		return
	}

	if err := h.syncService.CancelSync(jobID); err != nil {
		h.WriteError(w, http.StatusConflict, dto.NewAPIError("cancel_failed", err.Error()))
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.MessageResponse{
		Message: "Sync job cancelled successfully",
	})
}

// toSyncJobResponse converts a service model to an API response.
func toSyncJobResponse(job *service.SyncJob) dto.SyncJobResponse {
	response := dto.SyncJobResponse{
		JobID:     job.ID,
		Provider:  job.Provider,
		Status:    string(job.Status),
		ListingID: job.Request.ListingID,
		SyncAll:   job.Request.SyncAll,
		StartedAt: job.StartedAt.Format(time.RFC3339),
		Progress:  toProgressResponse(job.Progress),
	}

	if job.CompletedAt != nil {
		completedAt := job.CompletedAt.Format(time.RFC3339)
		response.CompletedAt = &completedAt
	}

	if job.Result != nil {
		response.Result = &dto.SyncResultResponse{
			Status:         job.Result.Status,
			BookingsSynced: job.Result.BookingsSynced,
			Created:        job.Result.Created,
			Updated:        job.Result.Updated,
			Deleted:        job.Result.Deleted,
		}
	}

	if job.Error != nil {
		errMsg := job.Error.Error()
		response.Error = &errMsg
	}

	return response
}

// toProgressResponse converts progress to API response.
func toProgressResponse(progress service.SyncProgress) dto.SyncProgressResponse {
	return dto.SyncProgressResponse{
		CurrentPhase:      progress.CurrentPhase,
		TotalListings:     progress.TotalListings,
		ProcessedListings: progress.ProcessedListings,
		FailedListings:    progress.FailedListings,
		LastUpdate:        progress.LastUpdate.Format(time.RFC3339),
	}
}
