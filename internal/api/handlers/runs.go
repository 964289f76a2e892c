package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hostfolio/guesty-sync-backend/internal/api/dto"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

// RunsHandler handles sync run history HTTP requests.
type RunsHandler struct {
	*Base
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo storage.Repository) *RunsHandler {
	return &RunsHandler{
		Base: NewBase(repo),
	}
}

// List handles GET /api/runs - returns recent sync runs, newest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := ParseIntParam(r, "limit", 20)

	runs, err := h.repo.ListSyncLogs(limit)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.SyncLogListResponse{
		Runs:  make([]dto.SyncLogResponse, 0, len(runs)),
		Count: len(runs),
	}
	for _, run := range runs {
		response.Runs = append(response.Runs, toSyncLogResponse(run))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/runs/{id} - returns a single sync run by ID.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("run ID is required"))
		return
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid run ID"))
		return
	}

	run, err := h.repo.GetSyncLog(id)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if run == nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("sync run"))
		return
	}

	h.WriteJSON(w, http.StatusOK, toSyncLogResponse(*run))
}

// toSyncLogResponse converts a storage SyncLog to an API response.
func toSyncLogResponse(run storage.SyncLog) dto.SyncLogResponse {
	response := dto.SyncLogResponse{
		ID:             run.ID,
		Provider:       run.Provider,
		Status:         run.Status,
		StartTime:      run.StartTime.UTC().Format(time.RFC3339),
		Message:        run.Message,
		Created:        run.Created,
		Updated:        run.Updated,
		Deleted:        run.Deleted,
		EntitiesSynced: run.EntitiesSynced,
		SyncDurationMs: run.SyncDurationMs,
	}
	if run.EndTime != nil {
		response.EndTime = run.EndTime.UTC().Format(time.RFC3339)
	}
	return response
}
