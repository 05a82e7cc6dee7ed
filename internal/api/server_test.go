package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playmesh/playmesh/internal/billing"
	"github.com/playmesh/playmesh/internal/config"
	"github.com/playmesh/playmesh/internal/orchestration"
	"github.com/playmesh/playmesh/internal/placement"
	"github.com/playmesh/playmesh/internal/providers"
	"github.com/playmesh/playmesh/internal/storage"
	"github.com/playmesh/playmesh/models"
)

// stubDriver is a provider adapter that always succeeds instantly.
type stubDriver struct {
	provider models.Provider
	nodes    []placement.InventoryNode
	handles  int
}

func (d *stubDriver) Name() models.Provider { return d.provider }

func (d *stubDriver) Inventory(ctx context.Context) ([]placement.InventoryNode, error) {
	return d.nodes, nil
}

func (d *stubDriver) Create(ctx context.Context, req providers.CreateRequest) (*providers.CreateResult, error) {
	d.handles++
	return &providers.CreateResult{Handle: fmt.Sprintf("i-%d", d.handles)}, nil
}

func (d *stubDriver) Describe(ctx context.Context, handle string) (*providers.DescribeResult, error) {
	return &providers.DescribeResult{State: models.StateRunning, Address: "203.0.113.9"}, nil
}

func (d *stubDriver) Start(ctx context.Context, handle string) error   { return nil }
func (d *stubDriver) Stop(ctx context.Context, handle string) error    { return nil }
func (d *stubDriver) Destroy(ctx context.Context, handle string) error { return nil }

func (d *stubDriver) WaitReady(ctx context.Context, handle string, maxWait time.Duration) (*providers.DescribeResult, error) {
	return d.Describe(ctx, handle)
}

const testRates = `
providers:
  tensordock:
    tiers:
      low: "0.15"
      mid: "0.35"
      high: "1.20"
`

func newTestServer(t *testing.T) (*Server, *storage.Storage) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Debug = true
	cfg.Storage.Path = filepath.Join(t.TempDir(), "api_test.db")
	cfg.Orchestrator.PoolSize = 4
	cfg.Orchestrator.WaitReady = map[string]time.Duration{"low": time.Second, "mid": time.Second, "high": time.Second}
	cfg.Security.AgentTokenSecret = "test-secret"
	cfg.Security.AgentTokenExpiration = time.Hour

	st, err := storage.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rates, err := billing.ParseRateTable([]byte(testRates))
	require.NoError(t, err)

	driver := &stubDriver{
		provider: models.ProviderTensorDock,
		nodes: []placement.InventoryNode{
			{ID: "node-1", City: "Boston", Country: "US", VCPU: 8, MemoryGiB: 32, GPUCount: 1, DedicatedAddress: true, PricePerHour: 0.40},
			{ID: "node-2", City: "Dallas", Country: "US", VCPU: 8, MemoryGiB: 32, GPUCount: 1, DedicatedAddress: true, PricePerHour: 0.30},
		},
	}

	resolver := placement.NewResolverFunc(func(_ context.Context, city, _, _ string) (models.Coordinate, bool) {
		switch city {
		case "Boston":
			return models.Coordinate{Lat: 42.3601, Lon: -71.0589}, true
		case "Dallas":
			return models.Coordinate{Lat: 32.7767, Lon: -96.7970}, true
		}
		return models.Coordinate{}, false
	})
	optimizer := placement.NewOptimizer(resolver, nil, false)
	regions := placement.NewRegionFinder("", false)

	hub := NewHub()
	orch := orchestration.NewOrchestrator(st, cfg,
		map[models.Provider]providers.Driver{driver.Name(): driver},
		optimizer, regions, rates, hub)
	bill := billing.NewService(st, rates, cfg)

	return New(cfg, st, orch, bill, hub), st
}

func testProfile() *models.PlatformProfile {
	return &models.PlatformProfile{
		Platform:        "switch",
		Family:          "switch",
		MinVCPU:         4,
		MinMemoryGiB:    8,
		MinGPUCount:     1,
		RequiresGPU:     true,
		MaxSessionHours: 6,
		DefaultTier:     models.TierHigh,
		Preferences: []models.ProviderPreference{
			{Provider: models.ProviderTensorDock, Priority: 0, Enabled: true},
		},
		AppImage:   "playmesh/switch-runtime:latest",
		Resolution: "1920x1080",
		FPS:        60,
		Codec:      "h264",
	}
}

func doJSON(s *Server, method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealthCheck(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "playmesh", body["service"])
}

func TestCreateSession(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.SavePlatform(testProfile()))

	rec := doJSON(s, http.MethodPost, "/sessions",
		`{"user_id":"user:1","platform":"switch","user_coord":{"lat":40.7,"lon":-74.0},"rom_ref":"rom:zelda"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var host models.Host
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &host))
	assert.Equal(t, "user:1", host.UserID)
	assert.Equal(t, "switch", host.Platform)
	assert.Equal(t, "rom:zelda", host.RomRef)
	assert.NotEmpty(t, host.ID)

	// Once the host settles, a second identical request reuses it.
	require.Eventually(t, func() bool {
		h, err := st.GetHost(host.ID)
		return err == nil && h.State == models.StateReady
	}, 2*time.Second, 10*time.Millisecond)

	rec = doJSON(s, http.MethodPost, "/sessions",
		`{"user_id":"user:1","platform":"switch"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var reused models.Host
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reused))
	assert.Equal(t, host.ID, reused.ID)
}

func TestCreateSession_Validation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(s, http.MethodPost, "/sessions", `{"platform":"switch"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, KindBadRequest, decodeError(t, rec).Kind)

	rec = doJSON(s, http.MethodPost, "/sessions",
		`{"user_id":"user:1","platform":"switch","user_coord":{"lat":91,"lon":0}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSession_UnknownPlatform(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(s, http.MethodPost, "/sessions", `{"user_id":"user:1","platform":"n64"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, KindUnknownPlatform, decodeError(t, rec).Kind)
}

func TestGetSession(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.SaveHost(&models.Host{
		ID: "host:x", UserID: "user:1", Platform: "switch", State: models.StateReady,
	}))

	rec := doJSON(s, http.MethodGet, "/sessions/host:x", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var host models.Host
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &host))
	assert.Equal(t, "host:x", host.ID)

	rec = doJSON(s, http.MethodGet, "/sessions/host:missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, KindNotFound, decodeError(t, rec).Kind)
}

func TestStopSession(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.SaveHost(&models.Host{
		ID: "host:x", UserID: "user:1", Platform: "switch",
		State: models.StateRunning, Provider: models.ProviderTensorDock, ProviderHandle: "i-1",
	}))

	rec := doJSON(s, http.MethodPost, "/sessions/host:x/stop", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		host, err := st.GetHost("host:x")
		return err == nil && host.State == models.StateStopped
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopSession_Gone(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.SaveHost(&models.Host{
		ID: "host:x", UserID: "user:1", Platform: "switch", State: models.StateDestroyed,
	}))

	rec := doJSON(s, http.MethodPost, "/sessions/host:x/stop", "")
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, KindGone, decodeError(t, rec).Kind)
}

func TestDestroySession(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.SaveHost(&models.Host{
		ID: "host:x", UserID: "user:1", Platform: "switch",
		State: models.StateRunning, Provider: models.ProviderTensorDock, ProviderHandle: "i-1",
	}))

	rec := doJSON(s, http.MethodDelete, "/sessions/host:x", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		host, err := st.GetHost("host:x")
		return err == nil && host.State == models.StateDestroyed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPlatforms(t *testing.T) {
	s, _ := newTestServer(t)

	profile := testProfile()
	body, err := json.Marshal(profile)
	require.NoError(t, err)

	rec := doJSON(s, http.MethodPut, "/platforms/switch", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(s, http.MethodGet, "/platforms/switch", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var got models.PlatformProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "switch", got.Platform)
	assert.Equal(t, models.TierHigh, got.DefaultTier)

	rec = doJSON(s, http.MethodGet, "/platforms", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var list []models.PlatformProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestPutPlatform_Invalid(t *testing.T) {
	s, _ := newTestServer(t)

	profile := testProfile()
	profile.Codec = "mpeg2"
	body, err := json.Marshal(profile)
	require.NoError(t, err)

	rec := doJSON(s, http.MethodPut, "/platforms/switch", string(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, KindBadRequest, decodeError(t, rec).Kind)
}

func TestGetPlatform_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(s, http.MethodGet, "/platforms/n64", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlacementCandidates(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.SavePlatform(testProfile()))

	rec := doJSON(s, http.MethodGet,
		"/placements/candidates?provider=tensordock&lat=40.7&lon=-74.0&platform=switch", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var set orchestration.CandidateSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	require.Len(t, set.Nodes, 2)
	assert.Equal(t, "node-1", set.Nodes[0].Node.ID, "Boston is closer to New York")
}

func TestPlacementCandidates_BadRequest(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(s, http.MethodGet, "/placements/candidates", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(s, http.MethodGet, "/placements/candidates?provider=tensordock&lat=abc&lon=1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlacementCandidates_UnknownProvider(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(s, http.MethodGet, "/placements/candidates?provider=vastai", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, KindInsufficientProviders, decodeError(t, rec).Kind)
}

func TestBillingReport(t *testing.T) {
	s, st := newTestServer(t)

	host := &models.Host{
		ID: "host:b", UserID: "user:1", Platform: "switch",
		Provider: models.ProviderTensorDock, Tier: models.TierHigh,
		State:        models.StateRunning,
		LastActivity: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, st.SaveHost(host))

	// Accrual runs from creation to last activity, so stretch the window
	// past the recorded activity to observe nonzero hours.
	from := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	to := time.Now().UTC().Add(2 * time.Hour).Format(time.RFC3339)
	rec := doJSON(s, http.MethodGet, "/billing?from="+from+"&to="+to, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report billing.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Hosts, 1)
	assert.Equal(t, "host:b", report.Hosts[0].HostID)
	assert.True(t, report.TotalCostUSD.IsPositive())

	rec = doJSON(s, http.MethodGet, "/billing?from="+from+"&to="+to+"&user_id=user:2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Empty(t, report.Hosts)
}

func TestBillingReport_BadWindow(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(s, http.MethodGet, "/billing?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(s, http.MethodGet,
		"/billing?from=2026-02-01T00:00:00Z&to=2026-01-01T00:00:00Z", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContentTypeValidation(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"user_id":"u"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
