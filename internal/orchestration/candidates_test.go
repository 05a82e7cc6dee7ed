package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playmesh/playmesh/internal/providers"
	"github.com/playmesh/playmesh/models"
)

// regionDriver exposes no inventory, so placement goes by region.
type regionDriver struct{}

func (regionDriver) Name() models.Provider { return models.ProviderCloudPad }

func (regionDriver) Create(ctx context.Context, req providers.CreateRequest) (*providers.CreateResult, error) {
	return &providers.CreateResult{Handle: "vm-1"}, nil
}

func (regionDriver) Describe(ctx context.Context, handle string) (*providers.DescribeResult, error) {
	return &providers.DescribeResult{State: models.StateRunning, Address: "203.0.113.10"}, nil
}

func (regionDriver) Start(ctx context.Context, handle string) error   { return nil }
func (regionDriver) Stop(ctx context.Context, handle string) error    { return nil }
func (regionDriver) Destroy(ctx context.Context, handle string) error { return nil }

func (d regionDriver) WaitReady(ctx context.Context, handle string, maxWait time.Duration) (*providers.DescribeResult, error) {
	return d.Describe(ctx, handle)
}

func TestPlacementCandidates_Nodes(t *testing.T) {
	o, st, _ := newTestOrchestrator(t, newFakeTensorDock(), 4)
	require.NoError(t, st.SavePlatform(testProfile()))

	user := &models.Coordinate{Lat: 40.7128, Lon: -74.0060}
	set, err := o.PlacementCandidates(context.Background(), models.ProviderTensorDock, user, "switch")
	require.NoError(t, err)

	assert.Equal(t, models.ProviderTensorDock, set.Provider)
	require.Len(t, set.Nodes, 2)
	assert.Equal(t, "node-1", set.Nodes[0].Node.ID, "Boston ranks first from New York")
	assert.Empty(t, set.Regions)
}

func TestPlacementCandidates_NoPlatformFilter(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, newFakeTensorDock(), 4)

	set, err := o.PlacementCandidates(context.Background(), models.ProviderTensorDock, nil, "")
	require.NoError(t, err)
	require.Len(t, set.Nodes, 2)
}

func TestPlacementCandidates_UnknownPlatform(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, newFakeTensorDock(), 4)

	_, err := o.PlacementCandidates(context.Background(), models.ProviderTensorDock, nil, "n64")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestPlacementCandidates_UnregisteredProvider(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, newFakeTensorDock(), 4)

	_, err := o.PlacementCandidates(context.Background(), models.ProviderCloudPad, nil, "")
	assert.ErrorIs(t, err, ErrInsufficientProviders)
}

func TestPlacementCandidates_Regions(t *testing.T) {
	o, st, _ := newTestOrchestrator(t, newFakeTensorDock(), 4)
	require.NoError(t, st.SavePlatform(testProfile()))

	o.drivers[models.ProviderCloudPad] = regionDriver{}

	user := &models.Coordinate{Lat: 40.7128, Lon: -74.0060}
	set, err := o.PlacementCandidates(context.Background(), models.ProviderCloudPad, user, "")
	require.NoError(t, err)
	require.NotEmpty(t, set.Regions)
	assert.Equal(t, "local", set.Regions[0].Source)

	noCoord, err := o.PlacementCandidates(context.Background(), models.ProviderCloudPad, nil, "")
	require.NoError(t, err)
	require.Len(t, noCoord.Regions, 1)
}
