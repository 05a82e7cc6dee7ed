package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playmesh/playmesh/models"
)

func TestBuildManifest(t *testing.T) {
	profile := testProfile()
	profile.FirmwareRef = "firmware:switch-18"
	profile.AppConfig = map[string]any{
		"docked":    true,
		"fake_time": "2017-03-03T09:00:00Z",
	}
	profile.DualScreen = &models.DualScreenLayout{
		Enabled: true,
		Top:     models.DualScreenRect{Width: 1280, Height: 720},
		Bottom:  models.DualScreenRect{Y: 720, Width: 854, Height: 480},
	}

	host := &models.Host{
		ID:           "host:m",
		UserID:       "user:1",
		Platform:     "switch",
		RomRef:       "rom:zelda",
		SaveRef:      "save:abc",
		SaveFilename: "zelda.sav",
	}

	m := BuildManifest(host, profile, "-----BEGIN CERTIFICATE-----")

	assert.Equal(t, "host:m", m.SessionID)
	assert.Equal(t, "host:m", m.HostID)
	assert.Equal(t, "user:1", m.UserID)
	assert.Equal(t, "switch", m.Platform)
	assert.Equal(t, profile.AppImage, m.AppImage)
	assert.Equal(t, "rom:zelda", m.RomRef)
	assert.Equal(t, "save:abc", m.SaveRef)
	assert.Equal(t, "zelda.sav", m.SaveFilename)
	assert.Equal(t, "firmware:switch-18", m.FirmwareRef)
	assert.Equal(t, profile.AppConfig, m.AppConfig)
	assert.Equal(t, profile.Resolution, m.Resolution)
	assert.Equal(t, profile.FPS, m.FPS)
	assert.Equal(t, profile.Codec, m.Codec)
	assert.Equal(t, "-----BEGIN CERTIFICATE-----", m.ClientCert)
	require.NotNil(t, m.DualScreen)
	assert.True(t, m.DualScreen.Enabled)
	assert.Equal(t, 720, m.DualScreen.Bottom.Y)

	require.NotNil(t, m.FakeTime)
	assert.Equal(t, time.Date(2017, 3, 3, 9, 0, 0, 0, time.UTC), m.FakeTime.UTC())
}

func TestBuildManifest_BadFakeTime(t *testing.T) {
	profile := testProfile()
	profile.AppConfig = map[string]any{"fake_time": "yesterday"}

	m := BuildManifest(&models.Host{ID: "host:m"}, profile, "")
	assert.Nil(t, m.FakeTime, "unparseable fake_time is ignored")
}

func TestManifest(t *testing.T) {
	o, st, _ := newTestOrchestrator(t, newFakeTensorDock(), 4)
	require.NoError(t, st.SavePlatform(testProfile()))

	host := &models.Host{
		ID: "host:m", UserID: "user:1", Platform: "switch",
		State: models.StateReady, RomRef: "rom:zelda",
	}
	require.NoError(t, st.SaveHost(host))

	m, err := o.Manifest(context.Background(), "host:m")
	require.NoError(t, err)
	assert.Equal(t, "host:m", m.HostID)
	assert.Equal(t, "rom:zelda", m.RomRef)
}

func TestManifest_Gone(t *testing.T) {
	o, st, _ := newTestOrchestrator(t, newFakeTensorDock(), 4)
	require.NoError(t, st.SavePlatform(testProfile()))

	host := &models.Host{ID: "host:m", UserID: "user:1", Platform: "switch", State: models.StateDestroyed}
	require.NoError(t, st.SaveHost(host))

	_, err := o.Manifest(context.Background(), "host:m")
	assert.ErrorIs(t, err, ErrGone)
}
