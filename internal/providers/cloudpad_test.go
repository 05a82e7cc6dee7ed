package providers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playmesh/playmesh/internal/config"
	"github.com/playmesh/playmesh/models"
)

func newTestCloudPad(run runCommand) *CloudPad {
	cp := NewCloudPad(config.CloudPadConfig{BinaryPath: "cloudpad", ConfigPath: "/etc/cloudpad.yaml", ProjectID: "proj-1"})
	cp.run = run
	return cp
}

func TestCloudPad_TranslateState(t *testing.T) {
	cases := map[string]models.LifecycleState{
		"running":      models.StateRunning,
		"RUNNING":      models.StateRunning,
		"provisioning": models.StateCreating,
		"starting":     models.StateCreating,
		"stopped":      models.StateStopped,
		"error":        models.StateFailed,
		"terminated":   models.StateDestroyed,
		"weird":        models.StateUnknown,
	}
	for vendor, want := range cases {
		assert.Equal(t, want, translateCloudPadState(vendor), "cli status %q", vendor)
	}
}

func TestCloudPad_Create(t *testing.T) {
	var gotArgs []string
	run := func(_ context.Context, bin string, args []string, stdout, _ *ringBuffer) error {
		assert.Equal(t, "cloudpad", bin)
		gotArgs = args
		stdout.Write([]byte("cp-host-1\n"))
		return nil
	}

	cp := newTestCloudPad(run)
	res, err := cp.Create(context.Background(), CreateRequest{
		Name:            "host:1",
		Tier:            models.TierHigh,
		Placement:       "us-east",
		AutoStopTimeout: 1800 * 1e9,
	})
	require.NoError(t, err)
	assert.Equal(t, "cp-host-1", res.Handle)
	assert.Equal(t, "us-east", res.Metadata["region"])

	joined := strings.Join(gotArgs, " ")
	assert.Contains(t, joined, "create")
	assert.Contains(t, joined, "--name host:1")
	assert.Contains(t, joined, "--cpu 8")
	assert.Contains(t, joined, "--memory 16")
	assert.Contains(t, joined, "--region us-east")
	assert.Contains(t, joined, "--auto-stop-timeout 1800")
	assert.Contains(t, joined, "--config /etc/cloudpad.yaml")
	assert.Contains(t, joined, "--project proj-1")
}

func TestCloudPad_Create_NoRegion(t *testing.T) {
	cp := newTestCloudPad(func(_ context.Context, _ string, _ []string, _, _ *ringBuffer) error {
		t.Fatal("CLI must not run without a region")
		return nil
	})
	_, err := cp.Create(context.Background(), CreateRequest{Name: "host:1", Tier: models.TierLow})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestCloudPad_ExitFailureNotRetryable(t *testing.T) {
	run := func(_ context.Context, _ string, _ []string, _, stderr *ringBuffer) error {
		stderr.Write([]byte("quota exceeded in region us-east"))
		return errors.New("exit status 1")
	}

	cp := newTestCloudPad(run)
	err := cp.Start(context.Background(), "cp-host-1")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Msg, "quota exceeded")
}

func TestCloudPad_Describe(t *testing.T) {
	run := func(_ context.Context, _ string, args []string, stdout, _ *ringBuffer) error {
		assert.Equal(t, "describe", args[0])
		assert.Equal(t, "cp-host-1", args[1])
		stdout.Write([]byte(`{"name":"cp-host-1","status":"running","ip_address":"198.51.100.4","region":"us-east"}`))
		return nil
	}

	cp := newTestCloudPad(run)
	desc, err := cp.Describe(context.Background(), "cp-host-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateRunning, desc.State)
	assert.Equal(t, "198.51.100.4", desc.Address)
}

func TestCloudPad_Describe_BadOutput(t *testing.T) {
	run := func(_ context.Context, _ string, _ []string, stdout, _ *ringBuffer) error {
		stdout.Write([]byte("not json at all"))
		return nil
	}

	cp := newTestCloudPad(run)
	_, err := cp.Describe(context.Background(), "cp-host-1")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestCloudPad_Destroy_NotFound(t *testing.T) {
	run := func(_ context.Context, _ string, _ []string, _, stderr *ringBuffer) error {
		stderr.Write([]byte("instance cp-ghost not found"))
		return errors.New("exit status 3")
	}

	cp := newTestCloudPad(run)
	err := cp.Destroy(context.Background(), "cp-ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRingBuffer_KeepsTail(t *testing.T) {
	rb := newRingBuffer(8)
	rb.Write([]byte("abc"))
	assert.Equal(t, "abc", rb.String())

	rb.Write([]byte("defghij"))
	// Capacity 8 retains the last 8 bytes of "abcdefghij".
	assert.Equal(t, "cdefghij", rb.String())
}
