package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/playmesh/playmesh/internal/orchestration"
	"github.com/playmesh/playmesh/models"
)

// probeTimeout bounds the whole agent health round-trip.
const probeTimeout = 5 * time.Second

// healthReport is the agent's /health response body.
type healthReport struct {
	Status                 string     `json:"status"`
	ConnectedClients       int        `json:"connected_clients"`
	IdleSince              *time.Time `json:"idle_since,omitempty"`
	SessionDurationSeconds int64      `json:"session_duration_seconds"`
}

type agentProbe struct {
	client *http.Client
}

func newAgentProbe() *agentProbe {
	return &agentProbe{client: &http.Client{Timeout: probeTimeout}}
}

// Health fetches the agent's health report. Any transport error, non-2xx
// status, or undecodable body counts as one strike for the caller.
func (p *agentProbe) Health(ctx context.Context, host *models.Host) (*healthReport, error) {
	base := host.AgentURL()
	if base == "" {
		return nil, fmt.Errorf("host %s has no address", host.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("agent answered %d", resp.StatusCode)
	}

	var report healthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decoding health report: %w", err)
	}
	return &report, nil
}

// checkHost probes one live host and applies the decision matrix: strikes on
// probe failure, idle detection, the per-tier session-length hard stop, and
// activity refresh on a healthy report.
func (s *Supervisor) checkHost(ctx context.Context, host *models.Host) {
	report, err := s.probe.Health(ctx, host)
	if err != nil {
		s.recordStrike(ctx, host, err)
		return
	}

	maxHours := s.config.Supervisor.MaxSessionHoursFor(string(host.Tier))
	if maxHours > 0 && float64(report.SessionDurationSeconds) > maxHours*3600 {
		log.Printf("supervisor: host %s exceeded %gh session limit, stopping", host.ID, maxHours)
		if err := s.sessions.StopSession(ctx, host.ID); err != nil {
			log.Printf("supervisor: hard-stopping host %s: %v", host.ID, err)
		}
		return
	}

	if report.ConnectedClients == 0 && s.idleExpired(host, report) {
		log.Printf("supervisor: host %s idle past threshold, stopping", host.ID)
		if host.State == models.StateRunning {
			s.markIdle(host, report)
		}
		if err := s.sessions.StopSession(ctx, host.ID); err != nil {
			log.Printf("supervisor: stopping idle host %s: %v", host.ID, err)
		}
		return
	}

	s.recordHealthy(host)
}

// idleExpired reports whether the host has had no clients for longer than the
// idle threshold, preferring the agent's idle_since over locally recorded
// disconnect times.
func (s *Supervisor) idleExpired(host *models.Host, report *healthReport) bool {
	threshold := s.config.Supervisor.IdleThreshold
	if threshold <= 0 {
		return false
	}

	idleSince := report.IdleSince
	if idleSince == nil {
		idleSince = host.LastClientDisconnect
	}
	if idleSince == nil {
		return false
	}
	return time.Since(*idleSince) > threshold
}

// markIdle records the RUNNING -> IDLE transition observed from a probe. A
// concurrent agent callback may have already moved the host; losing that race
// is fine because the follow-up stop drives both paths to STOPPED.
func (s *Supervisor) markIdle(host *models.Host, report *healthReport) {
	updated, err := s.storage.CompareAndSwapState(host.ID,
		[]models.LifecycleState{models.StateRunning}, models.StateIdle,
		func(h *models.Host) {
			h.LastClientDisconnect = report.IdleSince
		})
	if err != nil {
		return
	}
	s.events.Publish(orchestration.StateEvent(updated, models.StateRunning))
}

// recordStrike bumps the host's consecutive probe failure count, failing the
// host once it reaches the limit.
func (s *Supervisor) recordStrike(ctx context.Context, host *models.Host, cause error) {
	current, err := s.storage.GetHost(host.ID)
	if err != nil {
		return
	}
	if !current.State.IsLive() {
		// The host moved on while we were probing.
		return
	}

	current.UnhealthyStrikes++
	log.Printf("supervisor: host %s failed probe (%d/%d): %v",
		current.ID, current.UnhealthyStrikes, maxStrikes, cause)

	if current.UnhealthyStrikes >= maxStrikes {
		reason := fmt.Sprintf("unresponsive after %d probes: %v", current.UnhealthyStrikes, cause)
		if err := s.sessions.FailSession(ctx, current.ID, reason); err != nil {
			log.Printf("supervisor: failing host %s: %v", current.ID, err)
		}
		return
	}

	if err := s.storage.UpdateHost(current); err != nil {
		log.Printf("supervisor: recording strike for host %s: %v", current.ID, err)
	}
}

// recordHealthy resets the strike count and refreshes last_activity.
func (s *Supervisor) recordHealthy(host *models.Host) {
	current, err := s.storage.GetHost(host.ID)
	if err != nil || !current.State.IsLive() {
		return
	}
	current.UnhealthyStrikes = 0
	current.LastActivity = time.Now().UTC()
	if err := s.storage.UpdateHost(current); err != nil {
		log.Printf("supervisor: refreshing activity for host %s: %v", current.ID, err)
	}
}
