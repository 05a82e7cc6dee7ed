package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/playmesh/playmesh/models"
)

// SavePlatform inserts or replaces a platform profile document.
func (s *Storage) SavePlatform(profile *models.PlatformProfile) error {
	doc, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal platform profile: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO platforms (platform, doc, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(platform) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		profile.Platform, string(doc), time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save platform profile: %w", err)
	}
	s.debugLog("storage: saved platform profile %s", profile.Platform)
	return nil
}

// GetPlatform retrieves a platform profile. Returns ErrNotFound for unknown
// platforms.
func (s *Storage) GetPlatform(platform string) (*models.PlatformProfile, error) {
	var doc string
	err := s.db.QueryRow(`SELECT doc FROM platforms WHERE platform = ?`, platform).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get platform profile: %w", err)
	}
	var profile models.PlatformProfile
	if err := json.Unmarshal([]byte(doc), &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal platform profile: %w", err)
	}
	return &profile, nil
}

// ListPlatforms returns all platform profiles ordered by platform name.
func (s *Storage) ListPlatforms() ([]*models.PlatformProfile, error) {
	rows, err := s.db.Query(`SELECT doc FROM platforms ORDER BY platform`)
	if err != nil {
		return nil, fmt.Errorf("failed to list platform profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.PlatformProfile
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan platform profile: %w", err)
		}
		var profile models.PlatformProfile
		if err := json.Unmarshal([]byte(doc), &profile); err != nil {
			return nil, fmt.Errorf("failed to unmarshal platform profile: %w", err)
		}
		profiles = append(profiles, &profile)
	}
	return profiles, rows.Err()
}
