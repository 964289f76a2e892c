package guesty

import "fmt"

// AuthError indicates the OAuth client-credentials exchange failed.
// Fatal to a sync run; callers do not retry.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("guesty token exchange failed: status %d: %s", e.StatusCode, e.Body)
}

// APIError is a non-2xx response from the Guesty API
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("guesty API error: %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// RateLimitError is surfaced when Guesty responds 429: from the reservations
// endpoint after the client's bounded retries (a per-listing failure), or
// directly from the token endpoint (fatal to the run).
type RateLimitError struct {
	Endpoint string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("guesty rate limit exceeded on %s", e.Endpoint)
}

// FormatError indicates the response body did not have the expected shape
type FormatError struct {
	Endpoint string
	Reason   string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unexpected guesty response from %s: %s", e.Endpoint, e.Reason)
}
