// Package providers contains the host driver contract and the adapters that
// implement it against concrete compute vendors. Adapters translate vendor
// status vocabularies into the shared lifecycle vocabulary and never retry
// internally; retry policy belongs to the orchestrator.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playmesh/playmesh/models"
)

var (
	// ErrNotFound is returned when the provider does not know the handle.
	ErrNotFound = errors.New("provider resource not found")
	// ErrTimeout is returned by WaitReady when the host does not become
	// reachable within the allowed window.
	ErrTimeout = errors.New("provider wait timed out")
)

// Error is a provider operation failure. Retryable failures (transport
// errors, vendor 5xx) may be re-attempted by the orchestrator; the rest are
// treated as permanent.
type Error struct {
	Provider  models.Provider
	Op        string
	Msg       string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a provider error marked retryable.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable
}

// CreateRequest carries everything an adapter needs to provision a host.
type CreateRequest struct {
	// Name is the control-plane host ID, passed through for vendor-side
	// labeling.
	Name string

	Tier models.Tier

	// Placement is the inventory node ID (TensorDock) or region code
	// (CloudPad) chosen by the optimizer.
	Placement string

	// SSHPublicKey, when set, is installed on the instance for operator
	// access.
	SSHPublicKey string

	AutoStopTimeout time.Duration

	Tags map[string]string
}

// CreateResult is the vendor identity of a freshly created instance.
type CreateResult struct {
	Handle   string
	Metadata map[string]string
}

// DescribeResult is the translated point-in-time view of an instance.
type DescribeResult struct {
	State models.LifecycleState

	// RawState is the untranslated vendor status string.
	RawState string

	Address string
}

// Driver is the operation set every provider adapter implements. All calls
// are context-first and single-shot.
type Driver interface {
	Name() models.Provider
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	Describe(ctx context.Context, handle string) (*DescribeResult, error)
	Start(ctx context.Context, handle string) error
	Stop(ctx context.Context, handle string) error
	// Destroy is idempotent; destroying an unknown handle returns ErrNotFound.
	Destroy(ctx context.Context, handle string) error
	// WaitReady polls Describe until the instance is running with an
	// address, or maxWait elapses. A non-positive maxWait times out
	// immediately.
	WaitReady(ctx context.Context, handle string, maxWait time.Duration) (*DescribeResult, error)
}

const defaultPollInterval = 10 * time.Second

// waitReady is the shared WaitReady loop. The first probe happens
// immediately, then every interval until the deadline.
func waitReady(ctx context.Context, d Driver, handle string, maxWait, interval time.Duration) (*DescribeResult, error) {
	if maxWait <= 0 {
		return nil, ErrTimeout
	}
	deadline := time.Now().Add(maxWait)

	for {
		desc, err := d.Describe(ctx, handle)
		if err == nil && desc.State == models.StateRunning && desc.Address != "" {
			return desc, nil
		}
		if err != nil && errors.Is(err, ErrNotFound) {
			return nil, err
		}

		if time.Now().Add(interval).After(deadline) {
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
