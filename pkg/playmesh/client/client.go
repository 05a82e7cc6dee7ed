// Package client is a typed HTTP client for the playmesh control plane API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playmesh/playmesh/models"
)

// APIError is the error body returned by the control plane.
type APIError struct {
	Status int    `json:"-"`
	Kind   string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s (%d)", e.Kind, e.Status)
}

// Client talks to a playmesh server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the given base URL.
func New(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// SessionRequest is the body of a session create call.
type SessionRequest struct {
	UserID       string             `json:"user_id"`
	Platform     string             `json:"platform"`
	UserCoord    *models.Coordinate `json:"user_coord,omitempty"`
	RomRef       string             `json:"rom_ref,omitempty"`
	SaveRef      string             `json:"save_ref,omitempty"`
	SaveFilename string             `json:"save_filename,omitempty"`
}

// CreateSession requests a session. Reused reports whether an existing live
// host was handed back instead of a new one.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (host *models.Host, reused bool, err error) {
	resp, err := c.do(ctx, http.MethodPost, "/sessions", nil, req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close() //nolint:errcheck

	host = &models.Host{}
	if err := c.decode(resp, host); err != nil {
		return nil, false, err
	}
	return host, resp.StatusCode == http.StatusOK, nil
}

// GetSession fetches one host record.
func (c *Client) GetSession(ctx context.Context, hostID string) (*models.Host, error) {
	resp, err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(hostID), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	host := &models.Host{}
	if err := c.decode(resp, host); err != nil {
		return nil, err
	}
	return host, nil
}

// StopSession asks the control plane to stop a session. The stop is
// asynchronous; poll GetSession for the state change.
func (c *Client) StopSession(ctx context.Context, hostID string) error {
	resp, err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(hostID)+"/stop", nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	return c.decode(resp, nil)
}

// DestroySession asks the control plane to destroy a session's host.
func (c *Client) DestroySession(ctx context.Context, hostID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(hostID), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	return c.decode(resp, nil)
}

// GetPlatform fetches one platform profile.
func (c *Client) GetPlatform(ctx context.Context, platform string) (*models.PlatformProfile, error) {
	resp, err := c.do(ctx, http.MethodGet, "/platforms/"+url.PathEscape(platform), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	profile := &models.PlatformProfile{}
	if err := c.decode(resp, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// PutPlatform creates or replaces a platform profile.
func (c *Client) PutPlatform(ctx context.Context, profile *models.PlatformProfile) error {
	resp, err := c.do(ctx, http.MethodPut, "/platforms/"+url.PathEscape(profile.Platform), nil, profile)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	return c.decode(resp, nil)
}

// ReportLine is the per-host row of a spend report.
type ReportLine struct {
	HostID      string          `json:"host_id"`
	UserID      string          `json:"user_id"`
	Platform    string          `json:"platform"`
	Provider    models.Provider `json:"provider"`
	Tier        models.Tier     `json:"tier"`
	Hours       decimal.Decimal `json:"hours"`
	CostUSD     decimal.Decimal `json:"cost_usd"`
	RateMissing bool            `json:"rate_missing,omitempty"`
}

// Report is a spend rollup over a time window.
type Report struct {
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Hosts        []ReportLine    `json:"hosts"`
	TotalHours   decimal.Decimal `json:"total_hours"`
	TotalCostUSD decimal.Decimal `json:"total_cost_usd"`
}

// BillingReport fetches a spend rollup. Zero times take the server defaults.
func (c *Client) BillingReport(ctx context.Context, from, to time.Time, provider, userID string) (*Report, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.Format(time.RFC3339))
	}
	if provider != "" {
		q.Set("provider", provider)
	}
	if userID != "" {
		q.Set("user_id", userID)
	}

	resp, err := c.do(ctx, http.MethodGet, "/billing", q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	report := &Report{}
	if err := c.decode(resp, report); err != nil {
		return nil, err
	}
	return report, nil
}

// PlacementCandidates previews where a session for the given provider would
// land. user may be nil to skip distance ranking.
func (c *Client) PlacementCandidates(ctx context.Context, provider string, user *models.Coordinate, platform string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("provider", provider)
	if user != nil {
		q.Set("lat", strconv.FormatFloat(user.Lat, 'f', -1, 64))
		q.Set("lon", strconv.FormatFloat(user.Lon, 'f', -1, 64))
	}
	if platform != "" {
		q.Set("platform", platform)
	}

	resp, err := c.do(ctx, http.MethodGet, "/placements/candidates", q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	var raw json.RawMessage
	if err := c.decode(resp, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// decode reads the response body into out, or surfaces an *APIError when the
// status is not 2xx. out may be nil to discard a successful body.
func (c *Client) decode(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Kind: "internal"}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Detail = fmt.Sprintf("undecodable error body: %v", err)
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
