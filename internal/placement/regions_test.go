package placement

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playmesh/playmesh/internal/geo"
	"github.com/playmesh/playmesh/models"
)

var newYork = models.Coordinate{Lat: 40.7128, Lon: -74.0060}

func TestTopRegions_RanksByDistance(t *testing.T) {
	f := NewRegionFinder("", false)

	choices := f.TopRegions(newYork, 0)
	require.Len(t, choices, 4)
	assert.Equal(t, "us-east", choices[0].Region.Code)
	assert.Equal(t, "local", choices[0].Source)

	for i := 1; i < len(choices); i++ {
		assert.LessOrEqual(t, choices[i-1].DistanceKm, choices[i].DistanceKm)
	}

	limited := f.TopRegions(newYork, 2)
	assert.Len(t, limited, 2)
}

func TestClosestRegion_StaticFallback(t *testing.T) {
	f := NewRegionFinder("", false)

	choice, err := f.ClosestRegion(context.Background(), newYork)
	require.NoError(t, err)
	assert.Equal(t, "us-east", choice.Region.Code)
	assert.Equal(t, "local", choice.Source)
}

func TestClosestRegion_BadCoordinate(t *testing.T) {
	f := NewRegionFinder("", false)

	_, err := f.ClosestRegion(context.Background(), models.Coordinate{Lat: 91, Lon: 0})
	assert.ErrorIs(t, err, geo.ErrBadCoord)
}

func TestClosestRegion_Remote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("proximity"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"code":"us-east-2","name":"US East 2","lat":40.0,"lon":-83.0}]`)) //nolint:errcheck
	}))
	defer srv.Close()

	f := NewRegionFinder(srv.URL, false)

	choice, err := f.ClosestRegion(context.Background(), newYork)
	require.NoError(t, err)
	assert.Equal(t, "us-east-2", choice.Region.Code)
	assert.Equal(t, "remote", choice.Source)
	assert.Greater(t, choice.DistanceKm, 0.0)
}

func TestClosestRegion_RemoteFailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewRegionFinder(srv.URL, false)

	choice, err := f.ClosestRegion(context.Background(), newYork)
	require.NoError(t, err)
	assert.Equal(t, "local", choice.Source)
}

func TestDefaultRegion(t *testing.T) {
	f := NewRegionFinder("", false)
	assert.Equal(t, "us-central", f.DefaultRegion().Code)
}
