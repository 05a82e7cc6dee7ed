// Package orchestration drives the session lifecycle: deduplicating session
// requests, walking provider preferences, running the provisioning pipeline,
// and applying agent callbacks. All state changes go through the storage
// layer's compare-and-set so concurrent transitions collapse cleanly.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playmesh/playmesh/internal/billing"
	"github.com/playmesh/playmesh/internal/config"
	"github.com/playmesh/playmesh/internal/placement"
	"github.com/playmesh/playmesh/internal/providers"
	"github.com/playmesh/playmesh/internal/storage"
	"github.com/playmesh/playmesh/models"
)

var (
	// ErrBusy means the provisioning pool is exhausted.
	ErrBusy = errors.New("provisioning pool exhausted")

	// ErrUnknownPlatform means no profile exists for the requested platform.
	ErrUnknownPlatform = errors.New("unknown platform")

	// ErrInsufficientProviders means every provider preference is disabled,
	// unregistered, or capped out.
	ErrInsufficientProviders = errors.New("no eligible provider for platform")

	// ErrGone means the host is in a terminal state.
	ErrGone = errors.New("host is gone")
)

// asyncOpTimeout bounds background adapter calls enqueued by stop and destroy.
const asyncOpTimeout = 60 * time.Second

// InventoryLister is implemented by drivers that expose a capacity inventory
// for node-level placement.
type InventoryLister interface {
	Inventory(ctx context.Context) ([]placement.InventoryNode, error)
}

// Orchestrator owns the session lifecycle.
type Orchestrator struct {
	storage   *storage.Storage
	config    *config.Config
	drivers   map[models.Provider]providers.Driver
	preparers map[models.Provider]EnvironmentPreparer
	optimizer *placement.Optimizer
	regions   *placement.RegionFinder
	rates     *billing.RateTable
	events    EventSink

	clientCert   string
	sshPublicKey string

	// slots bounds concurrent provisioning tasks.
	slots chan struct{}

	// retryDelay seeds the create retry backoff. Shortened in tests.
	retryDelay time.Duration
}

// NewOrchestrator creates an orchestrator. events may be nil; regions may be
// nil when the CloudPad driver is not registered.
func NewOrchestrator(
	st *storage.Storage,
	cfg *config.Config,
	drivers map[models.Provider]providers.Driver,
	optimizer *placement.Optimizer,
	regions *placement.RegionFinder,
	rates *billing.RateTable,
	events EventSink,
) *Orchestrator {
	if events == nil {
		events = NopSink()
	}

	o := &Orchestrator{
		storage:    st,
		config:     cfg,
		drivers:    drivers,
		optimizer:  optimizer,
		regions:    regions,
		rates:      rates,
		events:     events,
		slots:      make(chan struct{}, cfg.Orchestrator.PoolSize),
		retryDelay: createInitialDelay,
	}

	o.preparers = map[models.Provider]EnvironmentPreparer{
		models.ProviderTensorDock: newSSHPreparer(cfg.Providers.TensorDock),
		models.ProviderCloudPad:   nopPreparer{},
	}

	if path := cfg.Security.ClientCertPath; path != "" {
		if data, err := os.ReadFile(path); err == nil {
			o.clientCert = string(data)
		} else {
			log.Printf("orchestration: client cert unreadable: %v", err)
		}
	}
	if path := cfg.Providers.TensorDock.SSHPublicKeyPath; path != "" {
		if data, err := os.ReadFile(path); err == nil {
			o.sshPublicKey = string(data)
		} else {
			log.Printf("orchestration: ssh public key unreadable: %v", err)
		}
	}

	return o
}

func (o *Orchestrator) debugLog(format string, args ...interface{}) {
	if o.config.Server.Debug {
		log.Printf(format, args...)
	}
}

// SessionRequest carries the inputs of a session request.
type SessionRequest struct {
	UserID       string
	Platform     string
	UserCoord    *models.Coordinate
	RomRef       string
	SaveRef      string
	SaveFilename string
}

// dedupStates are the states in which an existing host satisfies a new
// session request for the same user and platform. Hosts still provisioning
// do not count; a request that arrives mid-provision places a fresh host.
var dedupStates = map[models.LifecycleState]bool{
	models.StateReady:   true,
	models.StateRunning: true,
	models.StateIdle:    true,
	models.StateStopped: true,
}

// RequestSession returns a host for the user and platform, reusing an
// existing live host when one exists. Stopped hosts are implicitly started.
// The second return value is true when an existing host was reused.
func (o *Orchestrator) RequestSession(ctx context.Context, req SessionRequest) (*models.Host, bool, error) {
	profile, err := o.storage.GetPlatform(req.Platform)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownPlatform, req.Platform)
	}
	if err != nil {
		return nil, false, err
	}

	existing, err := o.storage.ListHostsByUserPlatform(req.UserID, req.Platform)
	if err != nil {
		return nil, false, err
	}
	for _, host := range existing {
		if !dedupStates[host.State] {
			continue
		}
		if host.State == models.StateStopped {
			restarted, err := o.restart(ctx, host)
			if err != nil {
				return nil, false, err
			}
			return restarted, true, nil
		}
		o.debugLog("orchestration: deduplicated session for %s/%s onto host %s (%s)",
			req.UserID, req.Platform, host.ID, host.State)
		return host, true, nil
	}

	pref, tier, err := o.selectProvider(profile)
	if err != nil {
		return nil, false, err
	}

	select {
	case o.slots <- struct{}{}:
	default:
		return nil, false, ErrBusy
	}

	host := &models.Host{
		ID:              models.GenerateID("host"),
		UserID:          req.UserID,
		Platform:        req.Platform,
		Tier:            tier,
		Provider:        pref.Provider,
		AgentPort:       models.TierSpecs[tier].AgentPort,
		State:           models.StateCreating,
		AutoStopTimeout: o.config.Orchestrator.DefaultAutoStopTimeout,
		UserCoord:       req.UserCoord,
		RomRef:          req.RomRef,
		SaveRef:         req.SaveRef,
		SaveFilename:    req.SaveFilename,
	}
	if err := o.storage.SaveHost(host); err != nil {
		<-o.slots
		return nil, false, err
	}

	o.events.Publish(StateEvent(host, models.StateNew))
	go o.provision(context.Background(), host.ID, profile)

	return host, false, nil
}

// restart brings a stopped host back to running via the provider adapter.
func (o *Orchestrator) restart(ctx context.Context, host *models.Host) (*models.Host, error) {
	driver, ok := o.drivers[host.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: driver %s not registered", ErrInsufficientProviders, host.Provider)
	}
	if err := driver.Start(ctx, host.ProviderHandle); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updated, err := o.storage.CompareAndSwapState(host.ID,
		[]models.LifecycleState{models.StateStopped}, models.StateRunning,
		func(h *models.Host) {
			h.LastActivity = now
		})
	if errors.Is(err, storage.ErrConflict) {
		// Another request won the restart; hand back whatever it produced.
		return o.storage.GetHost(host.ID)
	}
	if err != nil {
		return nil, err
	}

	o.debugLog("orchestration: restarted stopped host %s", host.ID)
	o.events.Publish(StateEvent(updated, models.StateStopped))
	return updated, nil
}

// selectProvider walks the profile's enabled preferences in priority order,
// skipping providers without a registered driver and entries whose hourly
// cost cap is exceeded by the rate table.
func (o *Orchestrator) selectProvider(profile *models.PlatformProfile) (models.ProviderPreference, models.Tier, error) {
	for _, pref := range profile.EnabledPreferences() {
		if _, ok := o.drivers[pref.Provider]; !ok {
			o.debugLog("orchestration: skipping %s, driver not registered", pref.Provider)
			continue
		}
		tier := profile.TierFor(pref)
		if pref.HourlyCostCap != nil {
			if rate, ok := o.rates.HourlyRate(pref.Provider, tier, profile.Family); ok {
				if rate.GreaterThan(decimal.NewFromFloat(*pref.HourlyCostCap)) {
					o.debugLog("orchestration: skipping %s, rate %s exceeds cap %v",
						pref.Provider, rate, *pref.HourlyCostCap)
					continue
				}
			}
		}
		return pref, tier, nil
	}
	return models.ProviderPreference{}, "", fmt.Errorf("%w: %s", ErrInsufficientProviders, profile.Platform)
}

// StopSession stops a running, idle, or ready host. Already-stopped hosts
// return nil; terminal hosts return ErrGone.
func (o *Orchestrator) StopSession(ctx context.Context, hostID string) error {
	host, err := o.storage.GetHost(hostID)
	if err != nil {
		return err
	}
	if host.State == models.StateStopped {
		return nil
	}
	if host.State.IsTerminal() {
		return fmt.Errorf("%w: host %s is %s", ErrGone, hostID, host.State)
	}

	updated, err := o.storage.CompareAndSwapState(hostID,
		[]models.LifecycleState{models.StateReady, models.StateRunning, models.StateIdle},
		models.StateStopped, nil)
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

	o.events.Publish(StateEvent(updated, host.State))
	o.enqueueProviderOp(updated, "stop")
	return nil
}

// DestroySession destroys a host in any non-terminal state. Already-destroyed
// hosts return nil; failed hosts return ErrGone.
func (o *Orchestrator) DestroySession(ctx context.Context, hostID string) error {
	host, err := o.storage.GetHost(hostID)
	if err != nil {
		return err
	}
	if host.State == models.StateDestroyed {
		return nil
	}
	if host.State.IsTerminal() {
		return fmt.Errorf("%w: host %s is %s", ErrGone, hostID, host.State)
	}

	updated, err := o.storage.CompareAndSwapState(hostID,
		[]models.LifecycleState{
			models.StateNew, models.StateCreating, models.StateConfiguring,
			models.StateReady, models.StateRunning, models.StateIdle, models.StateStopped,
		},
		models.StateDestroyed, nil)
	if errors.Is(err, storage.ErrConflict) {
		current, getErr := o.storage.GetHost(hostID)
		if getErr == nil && current.State == models.StateDestroyed {
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}

	o.events.Publish(StateEvent(updated, host.State))
	if updated.ProviderHandle != "" {
		o.enqueueProviderOp(updated, "destroy")
	}
	return nil
}

// FailSession marks a host unrecoverable and enqueues a provider destroy.
// Used by the supervisor when a host stops answering health probes. Hosts
// already terminal return nil.
func (o *Orchestrator) FailSession(ctx context.Context, hostID, reason string) error {
	host, err := o.storage.GetHost(hostID)
	if err != nil {
		return err
	}
	if host.State.IsTerminal() {
		return nil
	}

	updated, err := o.storage.CompareAndSwapState(hostID,
		[]models.LifecycleState{
			models.StateNew, models.StateCreating, models.StateConfiguring,
			models.StateReady, models.StateRunning, models.StateIdle, models.StateStopped,
		},
		models.StateFailed,
		func(h *models.Host) {
			h.LastError = reason
		})
	if errors.Is(err, storage.ErrConflict) {
		current, getErr := o.storage.GetHost(hostID)
		if getErr == nil && current.State.IsTerminal() {
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}

	o.events.Publish(StateEvent(updated, host.State))
	if updated.ProviderHandle != "" {
		o.enqueueProviderOp(updated, "destroy")
	}
	return nil
}

// DescribeSession returns the persisted host record without a provider call.
func (o *Orchestrator) DescribeSession(ctx context.Context, hostID string) (*models.Host, error) {
	return o.storage.GetHost(hostID)
}

// ListSessions returns all persisted host records.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]*models.Host, error) {
	return o.storage.ListHosts()
}

// enqueueProviderOp runs an adapter stop or destroy in the background. The
// lifecycle transition has already been persisted; adapter failures are
// recorded on the host but do not roll the state back.
func (o *Orchestrator) enqueueProviderOp(host *models.Host, op string) {
	driver, ok := o.drivers[host.Provider]
	if !ok || host.ProviderHandle == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncOpTimeout)
		defer cancel()

		var err error
		switch op {
		case "stop":
			err = driver.Stop(ctx, host.ProviderHandle)
		case "destroy":
			err = driver.Destroy(ctx, host.ProviderHandle)
		}
		if err != nil && !errors.Is(err, providers.ErrNotFound) {
			log.Printf("orchestration: background %s of host %s failed: %v", op, host.ID, err)
			if current, getErr := o.storage.GetHost(host.ID); getErr == nil {
				current.LastError = fmt.Sprintf("%s: %v", op, err)
				if updErr := o.storage.UpdateHost(current); updErr != nil {
					log.Printf("orchestration: recording %s failure for host %s: %v", op, host.ID, updErr)
				}
			}
		}
	}()
}
