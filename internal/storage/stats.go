package storage

import "fmt"

// FleetStats summarizes the host fleet for the stats endpoint.
type FleetStats struct {
	Total      int            `json:"total"`
	ByState    map[string]int `json:"by_state"`
	ByProvider map[string]int `json:"by_provider"`
}

// GetFleetStats returns host counts grouped by state and by provider.
func (s *Storage) GetFleetStats() (*FleetStats, error) {
	stats := &FleetStats{
		ByState:    make(map[string]int),
		ByProvider: make(map[string]int),
	}

	rows, err := s.db.Query(`SELECT state, COUNT(*) FROM hosts GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count hosts by state: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan state count: %w", err)
		}
		stats.ByState[state] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	provRows, err := s.db.Query(`SELECT provider, COUNT(*) FROM hosts GROUP BY provider`)
	if err != nil {
		return nil, fmt.Errorf("failed to count hosts by provider: %w", err)
	}
	defer provRows.Close()
	for provRows.Next() {
		var provider string
		var count int
		if err := provRows.Scan(&provider, &count); err != nil {
			return nil, fmt.Errorf("failed to scan provider count: %w", err)
		}
		stats.ByProvider[provider] = count
	}
	return stats, provRows.Err()
}
