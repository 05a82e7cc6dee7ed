package models

import "time"

// SessionManifest is the payload an on-host agent fetches before launching a
// session. Fields marked opaque are copied from the PlatformProfile and the
// session request without interpretation.
type SessionManifest struct {
	SessionID string `json:"session_id"`
	HostID    string `json:"host_id"`
	UserID    string `json:"user_id"`
	Platform  string `json:"platform"`

	AppImage     string `json:"app_image"`
	RomRef       string `json:"rom_ref,omitempty"`
	SaveRef      string `json:"save_ref,omitempty"`
	SaveFilename string `json:"save_filename,omitempty"`
	FirmwareRef  string `json:"firmware_ref,omitempty"`

	// FakeTime spoofs the in-game clock when set.
	FakeTime *time.Time `json:"fake_time,omitempty"`

	AppConfig map[string]interface{} `json:"app_config,omitempty"`

	Resolution string `json:"resolution"`
	FPS        int    `json:"fps"`
	Codec      string `json:"codec"`

	// ClientCert is the PEM-encoded certificate the streaming client pins.
	ClientCert string `json:"client_cert"`

	DualScreen *DualScreenLayout `json:"dual_screen,omitempty"`
}
