package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleState_ProvisioningPath(t *testing.T) {
	path := []LifecycleState{StateNew, StateCreating, StateConfiguring, StateReady, StateRunning}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, path[i].CanTransitionTo(path[i+1]),
			"expected %s -> %s to be allowed", path[i], path[i+1])
	}
}

func TestLifecycleState_TerminalStatesAreFrozen(t *testing.T) {
	terminals := []LifecycleState{StateDestroyed, StateFailed, StateProvisionFailed}
	targets := []LifecycleState{
		StateNew, StateCreating, StateConfiguring, StateReady, StateRunning,
		StateIdle, StateStopped, StateDestroyed, StateFailed, StateProvisionFailed,
	}
	for _, from := range terminals {
		assert.True(t, from.IsTerminal())
		for _, to := range targets {
			assert.False(t, from.CanTransitionTo(to),
				"terminal %s must not transition to %s", from, to)
		}
	}
}

func TestLifecycleState_StopAndDestroyFromAnywhere(t *testing.T) {
	nonTerminal := []LifecycleState{
		StateNew, StateCreating, StateConfiguring, StateReady,
		StateRunning, StateIdle, StateStopped,
	}
	for _, from := range nonTerminal {
		assert.True(t, from.CanTransitionTo(StateStopped), "%s -> stopped", from)
		assert.True(t, from.CanTransitionTo(StateDestroyed), "%s -> destroyed", from)
		assert.True(t, from.CanTransitionTo(StateFailed), "%s -> failed", from)
	}
}

func TestLifecycleState_ProvisionFailedOnlyFromCreating(t *testing.T) {
	assert.True(t, StateCreating.CanTransitionTo(StateProvisionFailed))
	for _, from := range []LifecycleState{StateNew, StateConfiguring, StateReady, StateRunning, StateIdle, StateStopped} {
		assert.False(t, from.CanTransitionTo(StateProvisionFailed),
			"%s -> provision_failed must be rejected", from)
	}
}

func TestLifecycleState_RunningIdleToggle(t *testing.T) {
	assert.True(t, StateRunning.CanTransitionTo(StateIdle))
	assert.True(t, StateIdle.CanTransitionTo(StateRunning))
	// Stopped sessions are implicitly restarted on a duplicate request.
	assert.True(t, StateStopped.CanTransitionTo(StateRunning))
	assert.False(t, StateConfiguring.CanTransitionTo(StateRunning))
}

func TestLifecycleState_NoSkippingForward(t *testing.T) {
	assert.False(t, StateNew.CanTransitionTo(StateConfiguring))
	assert.False(t, StateNew.CanTransitionTo(StateReady))
	assert.False(t, StateCreating.CanTransitionTo(StateReady))
	assert.False(t, StateRunning.CanTransitionTo(StateCreating))
}

func TestLifecycleState_IsLive(t *testing.T) {
	assert.True(t, StateReady.IsLive())
	assert.True(t, StateRunning.IsLive())
	assert.True(t, StateIdle.IsLive())
	assert.False(t, StateCreating.IsLive())
	assert.False(t, StateStopped.IsLive())
	assert.False(t, StateFailed.IsLive())
}

func TestCoordinate_Valid(t *testing.T) {
	assert.True(t, Coordinate{Lat: 40.7128, Lon: -74.0060}.Valid())
	assert.True(t, Coordinate{Lat: -90, Lon: 180}.Valid())
	assert.False(t, Coordinate{Lat: 91, Lon: 0}.Valid())
	assert.False(t, Coordinate{Lat: 0, Lon: -181}.Valid())
}

func TestHost_AgentURL(t *testing.T) {
	h := &Host{Address: "203.0.113.7", AgentPort: 8701}
	assert.Equal(t, "http://203.0.113.7:8701", h.AgentURL())

	h.Address = ""
	assert.Equal(t, "", h.AgentURL())
}

func TestTierSpecs_CoverAllTiers(t *testing.T) {
	for _, tier := range []Tier{TierLow, TierMid, TierHigh} {
		spec, ok := TierSpecs[tier]
		require.True(t, ok, "missing spec for tier %s", tier)
		assert.Greater(t, spec.VCPU, 0)
		assert.Greater(t, spec.MemoryGiB, 0)
		assert.Greater(t, spec.AgentPort, 0)
	}
}
