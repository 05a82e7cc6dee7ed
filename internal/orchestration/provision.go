package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playmesh/playmesh/internal/placement"
	"github.com/playmesh/playmesh/internal/providers"
	"github.com/playmesh/playmesh/models"
)

const (
	createAttempts      = 3
	createInitialDelay  = 2 * time.Second
	createBackoffFactor = 2
	createBackoffCap    = 30 * time.Second
)

// provision runs the background pipeline for a host in CREATING: placement,
// adapter create with retries, readiness wait, environment setup, then READY.
// Between steps it re-reads the host; a concurrent destroy aborts the
// pipeline and cleans up any provider-side artifact.
func (o *Orchestrator) provision(ctx context.Context, hostID string, profile *models.PlatformProfile) {
	defer func() { <-o.slots }()

	host, err := o.storage.GetHost(hostID)
	if err != nil || host.State != models.StateCreating {
		return
	}
	driver, ok := o.drivers[host.Provider]
	if !ok {
		o.failProvisioning(hostID, fmt.Sprintf("driver %s not registered", host.Provider))
		return
	}

	// Step 1: placement.
	placementID, err := o.placeHost(ctx, host, profile)
	if err != nil {
		o.failProvisioning(hostID, fmt.Sprintf("placement: %v", err))
		return
	}
	host.Placement = placementID
	if err := o.storage.UpdateHost(host); err != nil {
		o.failProvisioning(hostID, fmt.Sprintf("persist placement: %v", err))
		return
	}

	if o.cancelled(hostID, driver, "") {
		return
	}

	// Step 2: create, retrying retryable provider errors.
	res, err := o.createWithRetry(ctx, driver, providers.CreateRequest{
		Name:            host.ID,
		Tier:            host.Tier,
		Placement:       placementID,
		SSHPublicKey:    o.sshPublicKey,
		AutoStopTimeout: host.AutoStopTimeout,
		Tags:            map[string]string{"platform": host.Platform, "user": host.UserID},
	})
	if err != nil {
		o.failProvisioning(hostID, fmt.Sprintf("create: %v", err))
		return
	}

	host, err = o.storage.GetHost(hostID)
	if err != nil {
		o.destroyArtifact(driver, res.Handle)
		return
	}
	host.ProviderHandle = res.Handle
	host.ProviderMetadata = res.Metadata
	if err := o.storage.UpdateHost(host); err != nil {
		o.destroyArtifact(driver, res.Handle)
		o.failProvisioning(hostID, fmt.Sprintf("persist handle: %v", err))
		return
	}

	if o.cancelled(hostID, driver, res.Handle) {
		return
	}

	// Step 3: wait for the instance to come up.
	maxWait := o.config.Orchestrator.WaitReadyFor(string(host.Tier))
	desc, err := driver.WaitReady(ctx, res.Handle, maxWait)
	if err != nil {
		o.destroyArtifact(driver, res.Handle)
		o.failProvisioning(hostID, fmt.Sprintf("wait ready: %v", err))
		return
	}

	// Step 4: environment setup.
	host, err = o.storage.CompareAndSwapState(hostID,
		[]models.LifecycleState{models.StateCreating}, models.StateConfiguring,
		func(h *models.Host) {
			h.Address = desc.Address
		})
	if err != nil {
		// The host was destroyed or failed concurrently.
		o.destroyArtifact(driver, res.Handle)
		return
	}
	o.events.Publish(StateEvent(host, models.StateCreating))

	preparer := o.preparers[host.Provider]
	if preparer != nil {
		if err := preparer.Prepare(ctx, host, profile); err != nil {
			o.destroyArtifact(driver, res.Handle)
			o.failProvisioning(hostID, fmt.Sprintf("environment setup: %v", err))
			return
		}
	}

	if o.cancelled(hostID, driver, res.Handle) {
		return
	}

	// Step 5: ready.
	host, err = o.storage.CompareAndSwapState(hostID,
		[]models.LifecycleState{models.StateConfiguring}, models.StateReady,
		func(h *models.Host) {
			h.EnvironmentReady = true
		})
	if err != nil {
		o.destroyArtifact(driver, res.Handle)
		return
	}

	o.debugLog("orchestration: host %s ready at %s", host.ID, host.Address)
	o.events.Publish(StateEvent(host, models.StateConfiguring))
}

// placeHost resolves the provider-specific placement identifier: an inventory
// node for node-placed providers, a region code otherwise.
func (o *Orchestrator) placeHost(ctx context.Context, host *models.Host, profile *models.PlatformProfile) (string, error) {
	if lister, ok := o.drivers[host.Provider].(InventoryLister); ok {
		nodes, err := lister.Inventory(ctx)
		if err != nil {
			return "", err
		}
		ranked, err := o.optimizer.RankNodes(ctx, host.UserCoord, nodes, placement.MinSpecs{
			MinVCPU:      profile.MinVCPU,
			MinMemoryGiB: profile.MinMemoryGiB,
			MinGPUCount:  profile.MinGPUCount,
		})
		if err != nil {
			return "", err
		}
		return ranked[0].Node.ID, nil
	}

	if o.regions == nil {
		return "", fmt.Errorf("no region finder configured for provider %s", host.Provider)
	}
	if host.UserCoord == nil {
		return o.regions.DefaultRegion().Code, nil
	}
	choice, err := o.regions.ClosestRegion(ctx, *host.UserCoord)
	if err != nil {
		return "", err
	}
	o.debugLog("orchestration: host %s placed in region %s (%s, %.0f km)",
		host.ID, choice.Region.Code, choice.Source, choice.DistanceKm)
	return choice.Region.Code, nil
}

// createWithRetry calls the adapter create, retrying retryable provider
// errors with exponential backoff.
func (o *Orchestrator) createWithRetry(ctx context.Context, driver providers.Driver, req providers.CreateRequest) (*providers.CreateResult, error) {
	delay := o.retryDelay
	var lastErr error

	for attempt := 1; attempt <= createAttempts; attempt++ {
		res, err := driver.Create(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !providers.IsRetryable(err) {
			return nil, err
		}
		if attempt == createAttempts {
			break
		}

		o.debugLog("orchestration: create attempt %d/%d failed, retrying in %s: %v",
			attempt, createAttempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= createBackoffFactor
		if delay > createBackoffCap {
			delay = createBackoffCap
		}
	}
	return nil, lastErr
}

// cancelled reports whether the host was destroyed while the pipeline was
// between steps, destroying the provider-side artifact when one exists.
func (o *Orchestrator) cancelled(hostID string, driver providers.Driver, handle string) bool {
	host, err := o.storage.GetHost(hostID)
	if err != nil {
		return true
	}
	if host.State != models.StateDestroyed {
		return false
	}
	o.debugLog("orchestration: provisioning of %s cancelled", hostID)
	if handle != "" {
		o.destroyArtifact(driver, handle)
	}
	return true
}

// destroyArtifact best-effort destroys a provider-side instance left over
// from an abandoned provisioning run.
func (o *Orchestrator) destroyArtifact(driver providers.Driver, handle string) {
	if handle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), asyncOpTimeout)
	defer cancel()
	if err := driver.Destroy(ctx, handle); err != nil && !errors.Is(err, providers.ErrNotFound) {
		o.debugLog("orchestration: cleanup destroy of %s failed: %v", handle, err)
	}
}

// failProvisioning marks a provisioning failure. Hosts still in CREATING move
// to PROVISION_FAILED; hosts in CONFIGURING move to FAILED. A host already
// driven elsewhere (destroyed concurrently) is left as is.
func (o *Orchestrator) failProvisioning(hostID, msg string) {
	host, err := o.storage.GetHost(hostID)
	if err != nil {
		return
	}

	target := models.StateFailed
	if host.State == models.StateCreating {
		target = models.StateProvisionFailed
	}

	prev := host.State
	updated, err := o.storage.CompareAndSwapState(hostID,
		[]models.LifecycleState{models.StateCreating, models.StateConfiguring},
		target,
		func(h *models.Host) {
			h.LastError = msg
		})
	if err != nil {
		o.debugLog("orchestration: host %s failure not recorded (%s): %v", hostID, msg, err)
		return
	}

	o.debugLog("orchestration: host %s provisioning failed: %s", hostID, msg)
	o.events.Publish(StateEvent(updated, prev))
}
