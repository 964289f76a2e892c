// Package guesty implements the client side of the Guesty open API:
// OAuth token management, reservation fetching with bounded retries, and
// rate-limit telemetry capture.
package guesty

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/config"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

// Rate-limit headers Guesty attaches to API responses
const (
	headerRateLimit = "X-RateLimit-Limit"
	headerRemaining = "X-RateLimit-Remaining"
	headerReset     = "X-RateLimit-Reset"
)

// retryMax bounds the backoff on 429/5xx responses; after the retries are
// exhausted the final status is surfaced to the caller
const retryMax = 2

// TelemetryRecorder receives one sample per remote HTTP response that
// carries rate-limit headers
type TelemetryRecorder interface {
	InsertRateLimitSample(s *storage.RateLimitSample) error
}

// Client calls the Guesty reservations API
type Client struct {
	http      *retryablehttp.Client
	baseURL   string
	limiter   *rate.Limiter
	telemetry TelemetryRecorder
	logger    *slog.Logger

	now func() time.Time
}

// NewClient creates a Guesty API client. telemetry may be nil, in which
// case rate-limit headers are not recorded.
func NewClient(cfg config.GuestyConfig, telemetry TelemetryRecorder, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:   strings.TrimSuffix(cfg.APIURL, "/"),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burstFor(cfg.RateLimitRPS)),
		telemetry: telemetry,
		logger:    logger,
		now:       time.Now,
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 15 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	rc.CheckRetry = checkRetry
	// Return the final response instead of an opaque "giving up" error so
	// a persistent 429 can be classified as RateLimitError.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	// The hook fires once per attempt, so telemetry captures every remote
	// call, not just the last one.
	rc.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		c.recordUsage(resp)
	}
	// Retry attempts re-enter the limiter; the first attempt is gated in
	// FetchReservations where a wait error can still be returned.
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			_ = c.limiter.Wait(req.Context())
		}
	}
	c.http = rc

	return c
}

// burstFor sizes the limiter burst from the sustained rate
func burstFor(rps float64) int {
	if rps < 1 {
		return 1
	}
	return int(rps)
}

// checkRetry retries transport errors, 429 and 5xx responses.
// DefaultBackoff honors Retry-After on 429.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true, nil
	}
	if resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented {
		return true, nil
	}
	return false, nil
}

// FetchReservations fetches the listing's reservations ending on or after
// today (UTC date-only, computed once per call).
func (c *Client) FetchReservations(ctx context.Context, token, listingID string) ([]Reservation, error) {
	today := c.now().UTC().Format("2006-01-02")
	endpoint := "/v1/reservations"

	params := url.Values{}
	params.Set("listingId", listingID)
	params.Set("endDate[gte]", today)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build reservations request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reservations request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read reservations response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Endpoint: endpoint}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return parseReservations(endpoint, body)
}

// parseReservations validates the envelope and decodes each record,
// keeping the raw payload alongside the parsed fields
func parseReservations(endpoint string, body []byte) ([]Reservation, error) {
	var envelope struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &FormatError{Endpoint: endpoint, Reason: "response is not a JSON object"}
	}
	if len(envelope.Results) == 0 || string(envelope.Results) == "null" {
		return nil, &FormatError{Endpoint: endpoint, Reason: "missing results field"}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(envelope.Results, &items); err != nil {
		return nil, &FormatError{Endpoint: endpoint, Reason: "results is not an array"}
	}

	reservations := make([]Reservation, 0, len(items))
	for _, item := range items {
		var r Reservation
		if err := json.Unmarshal(item, &r); err != nil {
			// One malformed record never aborts the whole page
			continue
		}
		r.Raw = item
		reservations = append(reservations, r)
	}

	return reservations, nil
}

// recordUsage persists rate-limit headers from a response. Header absence
// is not an error; persistence failures are logged and swallowed.
func (c *Client) recordUsage(resp *http.Response) {
	if c.telemetry == nil || resp == nil {
		return
	}

	limitHeader := resp.Header.Get(headerRateLimit)
	remainingHeader := resp.Header.Get(headerRemaining)
	if limitHeader == "" && remainingHeader == "" {
		return
	}

	limit, _ := strconv.Atoi(limitHeader)
	remaining, _ := strconv.Atoi(remainingHeader)

	endpoint := ""
	if resp.Request != nil && resp.Request.URL != nil {
		endpoint = resp.Request.URL.Path
	}

	sample := &storage.RateLimitSample{
		Endpoint:  endpoint,
		RateLimit: limit,
		Remaining: remaining,
		Reset:     resp.Header.Get(headerReset),
		Timestamp: c.now(),
	}

	if err := c.telemetry.InsertRateLimitSample(sample); err != nil {
		c.logger.Warn("failed to record rate limit sample", "endpoint", endpoint, "error", err)
	}
}
