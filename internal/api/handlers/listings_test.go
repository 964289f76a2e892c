package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfolio/guesty-sync-backend/internal/api/dto"
	"github.com/hostfolio/guesty-sync-backend/internal/api/handlers"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

func TestListingsHandler_List(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.SeedListing(&storage.Listing{ID: "l1", Name: "Beach House", SyncStatus: "active"})
	repo.SeedListing(&storage.Listing{ID: "l2", Name: "Old Cabin", SyncStatus: "paused", IsDeleted: true})

	handler := handlers.NewListingsHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.ListingListResponse
	err := json.NewDecoder(rec.Body).Decode(&response)
	require.NoError(t, err)

	// Deleted listings are excluded
	require.Equal(t, 1, response.Count)
	assert.Equal(t, "l1", response.Listings[0].ID)
	assert.Equal(t, "Beach House", response.Listings[0].Name)
}

func TestListingsHandler_Upsert(t *testing.T) {
	t.Run("registers a listing with default status", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewListingsHandler(repo)

		body := `{"id": "l1", "name": "Beach House"}`
		req := httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.Upsert(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.ListingResponse
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)
		assert.Equal(t, "active", response.SyncStatus)

		ids, err := repo.ActiveListingIDs()
		require.NoError(t, err)
		assert.Equal(t, []string{"l1"}, ids)
	})

	t.Run("rejects missing id", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewListingsHandler(repo)

		req := httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader(`{"name": "x"}`))
		rec := httptest.NewRecorder()

		handler.Upsert(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects invalid body", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewListingsHandler(repo)

		req := httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader("not json"))
		rec := httptest.NewRecorder()

		handler.Upsert(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
