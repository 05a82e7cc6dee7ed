package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile() *PlatformProfile {
	return &PlatformProfile{
		Platform:        "plat-a",
		Family:          "retro",
		MinVCPU:         2,
		MinMemoryGiB:    4,
		MinGPUCount:     0,
		MaxSessionHours: 6,
		DefaultTier:     TierLow,
		Preferences: []ProviderPreference{
			{Provider: ProviderTensorDock, Priority: 0, Enabled: true},
			{Provider: ProviderCloudPad, Priority: 1, Enabled: true},
		},
		AppImage:   "registry.example/emu:stable",
		Resolution: "1280x720",
		FPS:        60,
		Codec:      "h264",
	}
}

func TestPlatformProfile_Validate(t *testing.T) {
	p := testProfile()
	require.NoError(t, p.Validate())
}

func TestPlatformProfile_Validate_NoEnabledPreference(t *testing.T) {
	p := testProfile()
	for i := range p.Preferences {
		p.Preferences[i].Enabled = false
	}
	err := p.Validate()
	assert.ErrorIs(t, err, ErrNoEnabledPreference)
}

func TestPlatformProfile_Validate_DuplicatePriority(t *testing.T) {
	p := testProfile()
	p.Preferences[1].Priority = 0
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestPlatformProfile_EnabledPreferences_Ordering(t *testing.T) {
	p := testProfile()
	p.Preferences = []ProviderPreference{
		{Provider: ProviderCloudPad, Priority: 5, Enabled: true},
		{Provider: ProviderTensorDock, Priority: 1, Enabled: true},
		{Provider: ProviderTensorDock, Priority: 0, Enabled: false},
	}
	prefs := p.EnabledPreferences()
	require.Len(t, prefs, 2)
	assert.Equal(t, ProviderTensorDock, prefs[0].Provider)
	assert.Equal(t, ProviderCloudPad, prefs[1].Provider)
}

func TestPlatformProfile_TierFor(t *testing.T) {
	p := testProfile()
	high := TierHigh
	assert.Equal(t, TierLow, p.TierFor(ProviderPreference{Provider: ProviderTensorDock}))
	assert.Equal(t, TierHigh, p.TierFor(ProviderPreference{Provider: ProviderTensorDock, TierOverride: &high}))
}

func TestSessionManifest_JSONRoundTrip(t *testing.T) {
	fake := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	m := SessionManifest{
		SessionID:    "sess:1",
		HostID:       "host:1",
		UserID:       "u1",
		Platform:     "plat-a",
		AppImage:     "registry.example/emu:stable",
		RomRef:       "s3://roms/game.bin",
		SaveRef:      "s3://saves/u1/game.sav",
		SaveFilename: "game.sav",
		FakeTime:     &fake,
		AppConfig:    map[string]interface{}{"region": "ntsc"},
		Resolution:   "1920x1080",
		FPS:          60,
		Codec:        "hevc",
		ClientCert:   "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----",
		DualScreen: &DualScreenLayout{
			Enabled: true,
			Top:     DualScreenRect{Width: 800, Height: 480},
			Bottom:  DualScreenRect{Y: 480, Width: 640, Height: 480},
		},
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var got SessionManifest
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, m, got)
}

func TestGenerateID(t *testing.T) {
	id := GenerateID("host")
	assert.Contains(t, id, "host:")
	assert.NotEqual(t, id, GenerateID("host"))
}
