package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/playmesh/playmesh/internal/api"
	"github.com/playmesh/playmesh/internal/billing"
	"github.com/playmesh/playmesh/internal/geo"
	"github.com/playmesh/playmesh/internal/orchestration"
	"github.com/playmesh/playmesh/internal/placement"
	"github.com/playmesh/playmesh/internal/providers"
	"github.com/playmesh/playmesh/internal/storage"
	"github.com/playmesh/playmesh/internal/supervisor"
	"github.com/playmesh/playmesh/models"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the control plane",
	Long:  `Start the HTTP API server, the provisioning orchestrator, and the health supervisor`,
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	store, err := storage.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	rates, err := billing.LoadRateTable(cfg.Billing.RateTablePath)
	if err != nil {
		return fmt.Errorf("failed to load rate table: %w", err)
	}

	drivers := map[models.Provider]providers.Driver{}
	if cfg.Providers.TensorDock.Enabled {
		drivers[models.ProviderTensorDock] = providers.NewTensorDock(cfg.Providers.TensorDock)
	}
	if cfg.Providers.CloudPad.Enabled {
		drivers[models.ProviderCloudPad] = providers.NewCloudPad(cfg.Providers.CloudPad)
	}
	if len(drivers) == 0 {
		return fmt.Errorf("no providers enabled; enable at least one in the configuration")
	}

	geocoder := geo.NewGeocoder(cfg.External.GeocoderURL, cfg.Server.Debug)
	finder := placement.NewRegionFinder(cfg.External.LocationFinderURL, cfg.Server.Debug)
	optimizer := placement.NewOptimizer(placement.NewResolver(geocoder), finder, cfg.Server.Debug)

	hub := api.NewHub()
	orch := orchestration.NewOrchestrator(store, cfg, drivers, optimizer, finder, rates, hub)
	bill := billing.NewService(store, rates, cfg)

	super := supervisor.New(store, cfg, orch, bill, hub)
	super.Start()
	defer super.Stop()

	server := api.New(cfg, store, orch, bill, hub)

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Println("\nShutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			cfg.Server.ShutdownTimeout,
		)
		defer cancel()

		super.Stop()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return nil

	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}
