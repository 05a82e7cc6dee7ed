package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/playmesh/playmesh/models"
)

// SaveHost inserts a new host record. The caller assigns the ID; CreatedAt,
// UpdatedAt, and Version are set here.
func (s *Storage) SaveHost(host *models.Host) error {
	now := time.Now().UTC()
	host.CreatedAt = now
	host.UpdatedAt = now
	host.Version = 1

	doc, err := json.Marshal(host)
	if err != nil {
		return fmt.Errorf("failed to marshal host: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO hosts (id, user_id, platform, provider, state, version, created_at, doc)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		host.ID, host.UserID, host.Platform, string(host.Provider),
		string(host.State), host.Version, now.Unix(), string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to save host: %w", err)
	}
	s.debugLog("storage: saved host %s (state=%s)", host.ID, host.State)
	return nil
}

// GetHost retrieves a host by ID. Returns ErrNotFound when no row exists.
func (s *Storage) GetHost(id string) (*models.Host, error) {
	var doc string
	err := s.db.QueryRow(`SELECT doc FROM hosts WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}
	return unmarshalHost(doc)
}

// ListHosts returns every host record, including terminal ones.
func (s *Storage) ListHosts() ([]*models.Host, error) {
	return s.queryHosts(`SELECT doc FROM hosts ORDER BY created_at`)
}

// ListHostsByStates returns all hosts whose state is one of the given states.
func (s *Storage) ListHostsByStates(states ...models.LifecycleState) ([]*models.Host, error) {
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(states))
	args := make([]interface{}, len(states))
	for i, st := range states {
		placeholders[i] = "?"
		args[i] = string(st)
	}
	query := fmt.Sprintf(
		`SELECT doc FROM hosts WHERE state IN (%s) ORDER BY created_at`,
		strings.Join(placeholders, ", "),
	)
	return s.queryHosts(query, args...)
}

// ListHostsByUserPlatform returns all hosts owned by userID for platform,
// regardless of state. The orchestrator filters for reusable (ready, running,
// idle or stopped) hosts when deduplicating session requests.
func (s *Storage) ListHostsByUserPlatform(userID, platform string) ([]*models.Host, error) {
	return s.queryHosts(
		`SELECT doc FROM hosts WHERE user_id = ? AND platform = ? ORDER BY created_at`,
		userID, platform,
	)
}

// UpdateHost rewrites a host document unconditionally, bumping its version.
// Use CompareAndSwapState for lifecycle transitions; this is for field updates
// (address, flags, strike counts) within a state.
func (s *Storage) UpdateHost(host *models.Host) error {
	host.UpdatedAt = time.Now().UTC()
	host.Version++

	doc, err := json.Marshal(host)
	if err != nil {
		return fmt.Errorf("failed to marshal host: %w", err)
	}

	res, err := s.db.Exec(
		`UPDATE hosts SET user_id = ?, platform = ?, provider = ?, state = ?, version = ?, doc = ?
		 WHERE id = ?`,
		host.UserID, host.Platform, string(host.Provider),
		string(host.State), host.Version, string(doc), host.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update host: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update host: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompareAndSwapState transitions a host from one of the given states to the
// target state. The mutate callback, when non-nil, edits the host document
// before it is written; it must not change ID or State. The write is guarded
// by the host's current state and version, so a concurrent transition causes
// ErrConflict and the caller re-reads. The lifecycle graph is enforced here as
// well: an illegal edge fails with ErrConflict without touching storage.
func (s *Storage) CompareAndSwapState(id string, from []models.LifecycleState, to models.LifecycleState, mutate func(*models.Host)) (*models.Host, error) {
	host, err := s.GetHost(id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, st := range from {
		if host.State == st {
			allowed = true
			break
		}
	}
	if !allowed || !host.State.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s (host %s in %s)", ErrConflict, host.State, to, id, host.State)
	}

	prevState := host.State
	prevVersion := host.Version

	if mutate != nil {
		mutate(host)
	}
	host.State = to
	host.UpdatedAt = time.Now().UTC()
	host.Version = prevVersion + 1

	doc, err := json.Marshal(host)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal host: %w", err)
	}

	res, err := s.db.Exec(
		`UPDATE hosts SET state = ?, version = ?, doc = ?
		 WHERE id = ? AND state = ? AND version = ?`,
		string(to), host.Version, string(doc),
		id, string(prevState), prevVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to transition host: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to transition host: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: host %s changed underneath %s -> %s", ErrConflict, id, prevState, to)
	}

	s.debugLog("storage: host %s transitioned %s -> %s (v%d)", id, prevState, to, host.Version)
	return host, nil
}

func (s *Storage) queryHosts(query string, args ...interface{}) ([]*models.Host, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []*models.Host
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		host, err := unmarshalHost(doc)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, host)
	}
	return hosts, rows.Err()
}

func unmarshalHost(doc string) (*models.Host, error) {
	var host models.Host
	if err := json.Unmarshal([]byte(doc), &host); err != nil {
		return nil, fmt.Errorf("failed to unmarshal host: %w", err)
	}
	return &host, nil
}
