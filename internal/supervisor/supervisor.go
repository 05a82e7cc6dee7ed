// Package supervisor runs the fleet health loop: a jittered liveness sweep
// that probes agents and enforces idle, session-length, and spend policies,
// and a slow sweep that destroys hosts left stopped past their TTL.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/playmesh/playmesh/internal/billing"
	"github.com/playmesh/playmesh/internal/config"
	"github.com/playmesh/playmesh/internal/orchestration"
	"github.com/playmesh/playmesh/internal/storage"
	"github.com/playmesh/playmesh/models"
)

// maxStrikes is the number of consecutive failed probes that fails a host.
const maxStrikes = 3

// Transitioner is the narrow slice of the orchestrator the supervisor drives
// hosts through. Keeping it this small breaks the reference cycle between the
// two packages.
type Transitioner interface {
	StopSession(ctx context.Context, hostID string) error
	DestroySession(ctx context.Context, hostID string) error
	FailSession(ctx context.Context, hostID, reason string) error
}

// SpendChecker reports where spend sits against the caps and the alert
// thresholds. Implemented by billing.Service.
type SpendChecker interface {
	CapStatus(ctx context.Context, now time.Time) (billing.CapLevel, *billing.Report, error)
	CheckAlerts(ctx context.Context, now time.Time) ([]billing.Alert, error)
}

// Supervisor owns the two periodic sweeps.
type Supervisor struct {
	storage  *storage.Storage
	config   *config.Config
	sessions Transitioner
	spend    SpendChecker
	events   orchestration.EventSink
	probe    *agentProbe

	stop    chan struct{}
	done    chan struct{}
	running bool
}

// New creates a supervisor. events may be nil; spend may be nil to disable
// the spend-cap check.
func New(st *storage.Storage, cfg *config.Config, sessions Transitioner, spend SpendChecker, events orchestration.EventSink) *Supervisor {
	if events == nil {
		events = orchestration.NopSink()
	}
	return &Supervisor{
		storage:  st,
		config:   cfg,
		sessions: sessions,
		spend:    spend,
		events:   events,
		probe:    newAgentProbe(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the scheduler loop. The liveness sweep runs immediately, then
// on a jittered cadence; the long-stopped sweep runs on its own ticker.
func (s *Supervisor) Start() {
	if s.running {
		log.Println("supervisor: already running")
		return
	}
	s.running = true

	log.Printf("supervisor: started (liveness every %s ±%.0f%%, stopped sweep every %s)",
		s.config.Supervisor.LivenessInterval,
		s.config.Supervisor.LivenessJitter*100,
		s.config.Supervisor.StoppedSweepInterval)

	go func() {
		defer close(s.done)

		liveness := time.NewTimer(0)
		defer liveness.Stop()
		stopped := time.NewTicker(s.config.Supervisor.StoppedSweepInterval)
		defer stopped.Stop()

		for {
			select {
			case <-liveness.C:
				s.LivenessSweep(context.Background())
				liveness.Reset(s.jittered(s.config.Supervisor.LivenessInterval))
			case <-stopped.C:
				s.StoppedSweep(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the scheduler and waits for the loop to exit.
func (s *Supervisor) Stop() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
	<-s.done
	log.Println("supervisor: stopped")
}

// jittered spreads a cadence uniformly across [d*(1-j), d*(1+j)] so sweeps
// do not synchronize with other periodic load.
func (s *Supervisor) jittered(d time.Duration) time.Duration {
	j := s.config.Supervisor.LivenessJitter
	if j <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * j
	return time.Duration(float64(d) * (1 + spread))
}

// LivenessSweep checks spend caps, then probes every live host and applies
// the health decision matrix.
func (s *Supervisor) LivenessSweep(ctx context.Context) {
	if s.checkSpendCaps(ctx) {
		// The fleet is draining; probing hosts that are being stopped
		// would only race the drain.
		return
	}
	s.publishSpendAlerts(ctx)

	hosts, err := s.storage.ListHostsByStates(
		models.StateReady, models.StateRunning, models.StateIdle)
	if err != nil {
		log.Printf("supervisor: enumerating live hosts: %v", err)
		return
	}

	for _, host := range hosts {
		if ctx.Err() != nil {
			return
		}
		s.checkHost(ctx, host)
	}
}

// StoppedSweep destroys hosts that have sat in STOPPED past the retention TTL.
func (s *Supervisor) StoppedSweep(ctx context.Context) {
	hosts, err := s.storage.ListHostsByStates(models.StateStopped)
	if err != nil {
		log.Printf("supervisor: enumerating stopped hosts: %v", err)
		return
	}

	cutoff := time.Now().UTC().Add(-s.config.Supervisor.StoppedTTL)
	for _, host := range hosts {
		if !host.UpdatedAt.Before(cutoff) {
			continue
		}
		log.Printf("supervisor: destroying host %s, stopped since %s",
			host.ID, host.UpdatedAt.Format(time.RFC3339))
		if err := s.sessions.DestroySession(ctx, host.ID); err != nil {
			log.Printf("supervisor: destroying long-stopped host %s: %v", host.ID, err)
		}
	}
}

// checkSpendCaps consults the billing rollup for month-to-date spend. A soft
// cap breach emits a warning event; a hard cap breach drains the fleet. The
// return value reports whether a drain ran.
func (s *Supervisor) checkSpendCaps(ctx context.Context) bool {
	if s.spend == nil {
		return false
	}

	level, report, err := s.spend.CapStatus(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("supervisor: spend-cap check: %v", err)
		return false
	}

	switch level {
	case billing.CapSoft:
		s.events.Publish(orchestration.Event{
			Type:      orchestration.EventSpendWarning,
			Message:   spendMessage("soft cap", report, s.config.Billing.MonthlySoftCapUSD),
			Timestamp: time.Now().UTC(),
		})
		return false
	case billing.CapHard:
		s.events.Publish(orchestration.Event{
			Type:      orchestration.EventFleetDrain,
			Message:   spendMessage("hard cap", report, s.config.Billing.MonthlyHardCapUSD),
			Timestamp: time.Now().UTC(),
		})
		s.drainFleet(ctx)
		return true
	}
	return false
}

// publishSpendAlerts surfaces daily and monthly threshold crossings on the
// event feed. Alerts are informational; only the caps change fleet state.
func (s *Supervisor) publishSpendAlerts(ctx context.Context) {
	if s.spend == nil {
		return
	}

	alerts, err := s.spend.CheckAlerts(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("supervisor: spend-alert check: %v", err)
		return
	}
	for _, alert := range alerts {
		s.events.Publish(orchestration.Event{
			Type:      orchestration.EventSpendWarning,
			Message:   alert.Message,
			Timestamp: time.Now().UTC(),
		})
	}
}

func spendMessage(cap string, report *billing.Report, limit float64) string {
	return fmt.Sprintf("month-to-date spend $%s exceeds %s $%.2f",
		report.TotalCostUSD.StringFixed(2), cap, limit)
}

// drainFleet asks the Transitioner to stop every host that is not already
// stopped or terminal. The orchestrator stops only ready, running and idle
// hosts; a host it refuses, such as one still provisioning, is logged and
// left as it is.
func (s *Supervisor) drainFleet(ctx context.Context) {
	hosts, err := s.storage.ListHostsByStates(
		models.StateNew, models.StateCreating, models.StateConfiguring,
		models.StateReady, models.StateRunning, models.StateIdle)
	if err != nil {
		log.Printf("supervisor: enumerating hosts for drain: %v", err)
		return
	}

	log.Printf("supervisor: hard spend cap exceeded, draining %d host(s)", len(hosts))
	for _, host := range hosts {
		if err := s.sessions.StopSession(ctx, host.ID); err != nil {
			log.Printf("supervisor: draining host %s: %v", host.ID, err)
		}
	}
}
