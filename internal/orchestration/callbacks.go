package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playmesh/playmesh/internal/storage"
	"github.com/playmesh/playmesh/models"
)

// ErrStaleSequence marks an agent callback whose sequence number was already
// applied. The callback is dropped; the caller answers idempotent-ok.
var ErrStaleSequence = errors.New("stale callback sequence")

// checkSeq applies the (host_id, monotonic_seq) idempotency rule: a sequence
// at or below the last applied one is dropped. seq 0 means the agent sent no
// sequence number and ordering is by arrival.
func (o *Orchestrator) checkSeq(host *models.Host, seq int64) error {
	if seq > 0 && seq <= host.LastSeq {
		o.debugLog("orchestration: dropping replayed callback for host %s (seq %d <= %d)",
			host.ID, seq, host.LastSeq)
		return fmt.Errorf("%w: %d", ErrStaleSequence, seq)
	}
	return nil
}

func applySeq(h *models.Host, seq int64) {
	if seq > 0 {
		h.LastSeq = seq
	}
}

// HandleStarted applies the agent's session-start callback: READY -> RUNNING
// with last_activity set to the agent's timestamp. A host already running
// answers idempotent-ok.
func (o *Orchestrator) HandleStarted(ctx context.Context, hostID string, ts time.Time, seq int64) error {
	host, err := o.storage.GetHost(hostID)
	if err != nil {
		return err
	}
	if err := o.checkSeq(host, seq); err != nil {
		return nil
	}
	if host.State == models.StateRunning {
		return nil
	}
	if host.State.IsTerminal() {
		return fmt.Errorf("%w: host %s is %s", ErrGone, hostID, host.State)
	}

	updated, err := o.storage.CompareAndSwapState(hostID,
		[]models.LifecycleState{models.StateReady}, models.StateRunning,
		func(h *models.Host) {
			h.LastActivity = ts
			h.SessionStartedAt = &ts
			applySeq(h, seq)
		})
	if errors.Is(err, storage.ErrConflict) {
		current, getErr := o.storage.GetHost(hostID)
		if getErr == nil && current.State == models.StateRunning {
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}

	o.events.Publish(StateEvent(updated, models.StateReady))
	return nil
}

// HandleSaveEvent applies a save-slot update. Accumulated playtime follows
// the replace-not-increment rule: the base value the agent carries plus the
// wall-clock elapsed since the session started, so replayed events converge
// instead of double-counting. Save events are also accepted for stopped
// sessions; an idle session is woken back to RUNNING.
func (o *Orchestrator) HandleSaveEvent(ctx context.Context, hostID, slotID string, wallClock time.Time, baseAccumulatedSeconds int64, seq int64) error {
	host, err := o.storage.GetHost(hostID)
	if err != nil {
		return err
	}
	if err := o.checkSeq(host, seq); err != nil {
		return nil
	}
	if host.State.IsTerminal() {
		return fmt.Errorf("%w: host %s is %s", ErrGone, hostID, host.State)
	}

	accumulated := baseAccumulatedSeconds
	if host.SessionStartedAt != nil && wallClock.After(*host.SessionStartedAt) {
		accumulated = baseAccumulatedSeconds + int64(wallClock.Sub(*host.SessionStartedAt).Seconds())
	}

	mutate := func(h *models.Host) {
		h.SaveSlotID = slotID
		h.AccumulatedSeconds = accumulated
		h.LastActivity = wallClock
		applySeq(h, seq)
	}

	if host.State == models.StateIdle {
		updated, err := o.storage.CompareAndSwapState(hostID,
			[]models.LifecycleState{models.StateIdle}, models.StateRunning, mutate)
		if err != nil {
			return err
		}
		o.events.Publish(StateEvent(updated, models.StateIdle))
		return nil
	}

	mutate(host)
	return o.storage.UpdateHost(host)
}

// HandleIdle applies the agent's all-clients-gone callback: RUNNING -> IDLE
// with the disconnect timestamp recorded. Already-idle hosts answer
// idempotent-ok.
func (o *Orchestrator) HandleIdle(ctx context.Context, hostID string, since time.Time, seq int64) error {
	host, err := o.storage.GetHost(hostID)
	if err != nil {
		return err
	}
	if err := o.checkSeq(host, seq); err != nil {
		return nil
	}
	if host.State == models.StateIdle {
		return nil
	}
	if host.State.IsTerminal() {
		return fmt.Errorf("%w: host %s is %s", ErrGone, hostID, host.State)
	}

	updated, err := o.storage.CompareAndSwapState(hostID,
		[]models.LifecycleState{models.StateRunning}, models.StateIdle,
		func(h *models.Host) {
			h.LastClientDisconnect = &since
			applySeq(h, seq)
		})
	if errors.Is(err, storage.ErrConflict) {
		current, getErr := o.storage.GetHost(hostID)
		if getErr == nil && current.State == models.StateIdle {
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}

	o.events.Publish(StateEvent(updated, models.StateRunning))
	return nil
}

// HandleEnded applies the agent's session-end callback: the host moves to
// STOPPED and the provider-side stop is enqueued. Already-stopped hosts
// answer idempotent-ok.
func (o *Orchestrator) HandleEnded(ctx context.Context, hostID string, ts time.Time, seq int64) error {
	host, err := o.storage.GetHost(hostID)
	if err != nil {
		return err
	}
	if err := o.checkSeq(host, seq); err != nil {
		return nil
	}
	if host.State == models.StateStopped {
		return nil
	}
	if host.State.IsTerminal() {
		return fmt.Errorf("%w: host %s is %s", ErrGone, hostID, host.State)
	}

	prev := host.State
	updated, err := o.storage.CompareAndSwapState(hostID,
		[]models.LifecycleState{
			models.StateReady, models.StateRunning, models.StateIdle,
			models.StateCreating, models.StateConfiguring,
		},
		models.StateStopped,
		func(h *models.Host) {
			h.LastActivity = ts
			applySeq(h, seq)
		})
	if errors.Is(err, storage.ErrConflict) {
		current, getErr := o.storage.GetHost(hostID)
		if getErr == nil && current.State == models.StateStopped {
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}

	o.events.Publish(StateEvent(updated, prev))
	o.enqueueProviderOp(updated, "stop")
	return nil
}
