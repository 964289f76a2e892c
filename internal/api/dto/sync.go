package dto

// StartSyncRequest is the request body for starting a sync.
// Exactly one of ListingID or SyncAll must be set.
type StartSyncRequest struct {
	ListingID     string `json:"listingId"`     // Sync one listing
	SyncAll       bool   `json:"syncAll"`       // Sync every active listing
	BudgetSeconds int    `json:"budgetSeconds"` // Wall-clock budget (0 = default)
	Verbose       bool   `json:"verbose"`       // Verbose logging
}

// StartSyncResponse is returned when an async sync is started.
type StartSyncResponse struct {
	JobID    string `json:"jobId"`
	Provider string `json:"provider"`
	Status   string `json:"status"`
}

// SyncJobResponse represents a sync job's status.
type SyncJobResponse struct {
	JobID       string               `json:"jobId"`
	Provider    string               `json:"provider"`
	Status      string               `json:"status"`
	ListingID   string               `json:"listingId,omitempty"`
	SyncAll     bool                 `json:"syncAll"`
	StartedAt   string               `json:"startedAt"`
	CompletedAt *string              `json:"completedAt,omitempty"`
	Progress    SyncProgressResponse `json:"progress"`
	Result      *SyncResultResponse  `json:"result,omitempty"`
	Error       *string              `json:"error,omitempty"`
}

// SyncProgressResponse represents real-time progress.
type SyncProgressResponse struct {
	CurrentPhase      string `json:"currentPhase"`
	TotalListings     int    `json:"totalListings"`
	ProcessedListings int    `json:"processedListings"`
	FailedListings    int    `json:"failedListings"`
	LastUpdate        string `json:"lastUpdate"`
}

// SyncResultResponse summarizes a finished run.
type SyncResultResponse struct {
	Status         string `json:"status"`
	BookingsSynced int    `json:"bookingsSynced"`
	Created        int    `json:"created"`
	Updated        int    `json:"updated"`
	Deleted        int    `json:"deleted"`
}

// ActiveSyncsResponse lists active sync jobs.
type ActiveSyncsResponse struct {
	Jobs  []SyncJobResponse `json:"jobs"`
	Count int               `json:"count"`
}

// AllSyncsResponse lists all sync jobs (including completed).
type AllSyncsResponse struct {
	Jobs  []SyncJobResponse `json:"jobs"`
	Count int               `json:"count"`
}
