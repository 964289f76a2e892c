package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hostfolio/guesty-sync-backend/internal/api/dto"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

// BookingsHandler handles booking-related HTTP requests.
type BookingsHandler struct {
	*Base
}

// NewBookingsHandler creates a new bookings handler.
func NewBookingsHandler(repo storage.Repository) *BookingsHandler {
	return &BookingsHandler{
		Base: NewBase(repo),
	}
}

// List handles GET /api/bookings?listingId=...&limit=... - bookings for a listing.
func (h *BookingsHandler) List(w http.ResponseWriter, r *http.Request) {
	listingID := r.URL.Query().Get("listingId")
	if listingID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("listingId is required"))
		return
	}

	limit := ParseIntParam(r, "limit", 50)

	bookings, err := h.repo.ListBookingsByListing(listingID, limit)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.BookingListResponse{
		Bookings: make([]dto.BookingResponse, 0, len(bookings)),
		Count:    len(bookings),
	}
	for _, b := range bookings {
		response.Bookings = append(response.Bookings, toBookingResponse(b))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/bookings/{id} - returns a single booking by ID.
func (h *BookingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("booking ID is required"))
		return
	}

	booking, err := h.repo.GetBooking(id)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if booking == nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("booking"))
		return
	}

	h.WriteJSON(w, http.StatusOK, toBookingResponse(booking))
}

// toBookingResponse converts a storage Booking to an API response.
func toBookingResponse(b *storage.Booking) dto.BookingResponse {
	return dto.BookingResponse{
		ID:         b.ID,
		ListingID:  b.ListingID,
		GuestName:  b.GuestName,
		CheckIn:    b.CheckIn,
		CheckOut:   b.CheckOut,
		Status:     b.Status,
		LastSynced: b.LastSynced.UTC().Format(time.RFC3339),
	}
}
