package orchestration

import (
	"context"
	"time"

	"github.com/playmesh/playmesh/models"
)

// Manifest assembles the session manifest an agent fetches before launching.
// Terminal hosts answer ErrGone; the agent has nothing left to launch.
func (o *Orchestrator) Manifest(ctx context.Context, hostID string) (*models.SessionManifest, error) {
	host, err := o.storage.GetHost(hostID)
	if err != nil {
		return nil, err
	}
	if host.State.IsTerminal() {
		return nil, ErrGone
	}
	profile, err := o.storage.GetPlatform(host.Platform)
	if err != nil {
		return nil, err
	}
	return BuildManifest(host, profile, o.clientCert), nil
}

// BuildManifest merges a platform profile with a host's session inputs into
// the manifest document. Profile fields are copied without interpretation
// except fake_time, which the agent expects as a parsed timestamp.
func BuildManifest(host *models.Host, profile *models.PlatformProfile, clientCert string) *models.SessionManifest {
	manifest := &models.SessionManifest{
		SessionID: host.ID,
		HostID:    host.ID,
		UserID:    host.UserID,
		Platform:  host.Platform,

		AppImage:     profile.AppImage,
		RomRef:       host.RomRef,
		SaveRef:      host.SaveRef,
		SaveFilename: host.SaveFilename,
		FirmwareRef:  profile.FirmwareRef,

		AppConfig: profile.AppConfig,

		Resolution: profile.Resolution,
		FPS:        profile.FPS,
		Codec:      profile.Codec,

		ClientCert: clientCert,
		DualScreen: profile.DualScreen,
	}

	if raw, ok := profile.AppConfig["fake_time"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			manifest.FakeTime = &ts
		}
	}

	return manifest
}
