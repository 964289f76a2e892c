package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfolio/guesty-sync-backend/internal/api/dto"
	"github.com/hostfolio/guesty-sync-backend/internal/api/handlers"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

func TestBookingsHandler_List(t *testing.T) {
	t.Run("requires listingId", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewBookingsHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/api/bookings", nil)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var apiErr dto.APIError
		err := json.NewDecoder(rec.Body).Decode(&apiErr)
		require.NoError(t, err)
		assert.Equal(t, dto.ErrCodeBadRequest, apiErr.Code)
	})

	t.Run("returns bookings for the listing only", func(t *testing.T) {
		repo := storage.NewMockRepository()
		repo.SeedBooking(&storage.Booking{
			ID: "r1", ListingID: "l1", GuestName: "Ada", Status: "confirmed",
			CheckIn: "2026-09-01", CheckOut: "2026-09-05", LastSynced: time.Now(),
		})
		repo.SeedBooking(&storage.Booking{
			ID: "r2", ListingID: "l2", GuestName: "Grace", Status: "confirmed",
			CheckIn: "2026-09-01", CheckOut: "2026-09-05", LastSynced: time.Now(),
		})

		handler := handlers.NewBookingsHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/api/bookings?listingId=l1", nil)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.BookingListResponse
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)

		require.Equal(t, 1, response.Count)
		assert.Equal(t, "r1", response.Bookings[0].ID)
		assert.Equal(t, "Ada", response.Bookings[0].GuestName)
	})
}

func TestBookingsHandler_Get(t *testing.T) {
	t.Run("returns a booking by id", func(t *testing.T) {
		repo := storage.NewMockRepository()
		repo.SeedBooking(&storage.Booking{
			ID: "r1", ListingID: "l1", GuestName: "Ada", Status: "confirmed",
			CheckIn: "2026-09-01", CheckOut: "2026-09-05", LastSynced: time.Now(),
		})

		handler := handlers.NewBookingsHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/api/bookings/r1", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "id", "r1"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.BookingResponse
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)

		assert.Equal(t, "r1", response.ID)
		assert.Equal(t, "2026-09-01", response.CheckIn)
		assert.Equal(t, "2026-09-05", response.CheckOut)
	})

	t.Run("returns 404 for unknown booking", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewBookingsHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/api/bookings/nope", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "id", "nope"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
