package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	appLog "healthcal/internal/log"
	"healthcal/internal/model"
)

// ErrUnauthorized is returned when the tracker rejects the configured API
// token. Callers should surface this as a session/credential problem rather
// than a transient fetch failure.
var ErrUnauthorized = errors.New("api: unauthorized")

const (
	requestTimeout = 15 * time.Second

	patientsCacheKey = "patients"
	patientsCacheTTL = 5 * time.Minute
)

// Client talks to the health tracker's HTTP API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client

	// patients change rarely; cache them so badge/filter rendering does
	// not hit the tracker on every page load.
	patients *cache.Cache
}

// NewClient constructs a Client for the given base URL (e.g.
// "https://tracker.example.com") and bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: requestTimeout,
		},
		patients: cache.New(patientsCacheTTL, 10*time.Minute),
	}
}

// eventsResponse mirrors the aggregate calendar endpoint's payload.
type eventsResponse struct {
	Events []model.CalendarEvent `json:"events"`
}

// Events fetches the already-merged, already-typed events for the inclusive
// [from, to] range, optionally scoped to one patient. It issues exactly one
// aggregate query; merging across record kinds happens server-side.
func (c *Client) Events(ctx context.Context, from, to time.Time, patientID string) ([]model.CalendarEvent, error) {
	q := url.Values{}
	q.Set("from", from.Format(time.RFC3339))
	q.Set("to", to.Format(time.RFC3339))
	if patientID != "" {
		q.Set("patient_id", patientID)
	}

	var resp eventsResponse
	if err := c.getJSON(ctx, "/api/calendar?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	appLog.Debug("calendar events fetched",
		"from", from.Format(time.RFC3339),
		"to", to.Format(time.RFC3339),
		"patient_id", patientID,
		"event_count", len(resp.Events),
	)
	return resp.Events, nil
}

// Patients returns the patient list, served from a short-lived cache.
func (c *Client) Patients(ctx context.Context) ([]model.Patient, error) {
	if v, ok := c.patients.Get(patientsCacheKey); ok {
		return v.([]model.Patient), nil
	}

	var patients []model.Patient
	if err := c.getJSON(ctx, "/api/patients", &patients); err != nil {
		return nil, err
	}

	c.patients.Set(patientsCacheKey, patients, cache.DefaultExpiration)
	return patients, nil
}

// InvalidatePatients drops the cached patient list, forcing the next
// Patients call to refetch.
func (c *Client) InvalidatePatients() {
	c.patients.Delete(patientsCacheKey)
}

// getJSON issues an authenticated GET and decodes the JSON response body
// into out. Non-success statuses are mapped to errors carrying the server's
// detail message; 401 maps to ErrUnauthorized.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("api: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromBody(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decoding response: %w", err)
	}
	return nil
}

// errorFromBody extracts the tracker's error detail, falling back to the
// HTTP status line.
func errorFromBody(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return fmt.Errorf("api: %s", payload.Detail)
	}
	return fmt.Errorf("api: %s", resp.Status)
}
