package dto

import "time"

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// BookingResponse represents a booking in API responses.
type BookingResponse struct {
	ID         string `json:"id"`
	ListingID  string `json:"listingId"`
	GuestName  string `json:"guestName"`
	CheckIn    string `json:"checkIn"`
	CheckOut   string `json:"checkOut"`
	Status     string `json:"status"`
	LastSynced string `json:"lastSynced"`
}

// BookingListResponse is returned when listing bookings.
type BookingListResponse struct {
	Bookings []BookingResponse `json:"bookings"`
	Count    int               `json:"count"`
}

// ListingResponse represents a listing in API responses.
type ListingResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SyncStatus string `json:"syncStatus"`
}

// ListingListResponse is returned when listing listings.
type ListingListResponse struct {
	Listings []ListingResponse `json:"listings"`
	Count    int               `json:"count"`
}

// SyncLogResponse represents a historical sync run in API responses.
type SyncLogResponse struct {
	ID             int64  `json:"id"`
	Provider       string `json:"provider"`
	Status         string `json:"status"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime,omitempty"`
	Message        string `json:"message,omitempty"`
	Created        int    `json:"created"`
	Updated        int    `json:"updated"`
	Deleted        int    `json:"deleted"`
	EntitiesSynced int    `json:"entitiesSynced"`
	SyncDurationMs int64  `json:"syncDurationMs"`
}

// SyncLogListResponse is returned when listing sync runs.
type SyncLogListResponse struct {
	Runs  []SyncLogResponse `json:"runs"`
	Count int               `json:"count"`
}

// IntegrationHealthResponse represents the provider health record.
type IntegrationHealthResponse struct {
	Provider           string `json:"provider"`
	Status             string `json:"status"`
	LastSynced         string `json:"lastSynced,omitempty"`
	LastBookingsSynced int    `json:"lastBookingsSynced"`
	LastError          string `json:"lastError,omitempty"`
	RateLimited        bool   `json:"rateLimited"`
	UpdatedAt          string `json:"updatedAt"`
}

// RateLimitSampleResponse is one observed rate-limit header set.
type RateLimitSampleResponse struct {
	Endpoint  string `json:"endpoint"`
	RateLimit int    `json:"rateLimit"`
	Remaining int    `json:"remaining"`
	Reset     string `json:"reset,omitempty"`
	Timestamp string `json:"timestamp"`
}

// RateLimitUsageResponse is returned when listing telemetry samples.
type RateLimitUsageResponse struct {
	Samples []RateLimitSampleResponse `json:"samples"`
	Count   int                       `json:"count"`
}

// MessageResponse is a generic message response.
type MessageResponse struct {
	Message string `json:"message"`
}
