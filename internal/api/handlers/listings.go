package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/hostfolio/guesty-sync-backend/internal/api/dto"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

// ListingsHandler handles listing registry HTTP requests.
type ListingsHandler struct {
	*Base
}

// NewListingsHandler creates a new listings handler.
func NewListingsHandler(repo storage.Repository) *ListingsHandler {
	return &ListingsHandler{
		Base: NewBase(repo),
	}
}

// List handles GET /api/listings - returns all non-deleted listings.
func (h *ListingsHandler) List(w http.ResponseWriter, r *http.Request) {
	listings, err := h.repo.ListListings()
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.ListingListResponse{
		Listings: make([]dto.ListingResponse, 0, len(listings)),
		Count:    len(listings),
	}
	for _, l := range listings {
		response.Listings = append(response.Listings, dto.ListingResponse{
			ID:         l.ID,
			Name:       l.Name,
			SyncStatus: l.SyncStatus,
		})
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// upsertListingRequest is the request body for registering a listing.
type upsertListingRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SyncStatus string `json:"syncStatus"`
}

// Upsert handles POST /api/listings - registers or updates a listing.
func (h *ListingsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if req.ID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("id is required"))
		return
	}
	if req.SyncStatus == "" {
		req.SyncStatus = "active"
	}

	if err := h.repo.UpsertListing(&storage.Listing{
		ID:         req.ID,
		Name:       req.Name,
		SyncStatus: req.SyncStatus,
	}); err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.ListingResponse{
		ID:         req.ID,
		Name:       req.Name,
		SyncStatus: req.SyncStatus,
	})
}
