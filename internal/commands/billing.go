package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/playmesh/playmesh/internal/billing"
	"github.com/playmesh/playmesh/internal/storage"
	"github.com/playmesh/playmesh/models"
)

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Spend reports",
	Long:  `Roll up estimated spend from the local host records and the rate table`,
}

var billingReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a spend report",
	Long: `Print a spend report for a time window.

Without flags the report covers the current month to date.

Examples:
  # Month to date
  playmesh billing report

  # Explicit window
  playmesh billing report --from 2026-08-01T00:00:00Z --to 2026-08-06T00:00:00Z

  # Single provider
  playmesh billing report --provider tensordock`,
	RunE: runBillingReport,
}

var (
	billingFrom     string
	billingTo       string
	billingProvider string
	billingUser     string
)

func init() {
	billingReportCmd.Flags().StringVar(&billingFrom, "from", "", "Window start (RFC 3339, default: start of month)")
	billingReportCmd.Flags().StringVar(&billingTo, "to", "", "Window end (RFC 3339, default: now)")
	billingReportCmd.Flags().StringVar(&billingProvider, "provider", "", "Restrict to one provider")
	billingReportCmd.Flags().StringVar(&billingUser, "user", "", "Restrict to one user")

	billingCmd.AddCommand(billingReportCmd)
}

func runBillingReport(cmd *cobra.Command, args []string) error {
	store, err := storage.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close() //nolint:errcheck

	rates, err := billing.LoadRateTable(cfg.Billing.RateTablePath)
	if err != nil {
		return fmt.Errorf("failed to load rate table: %w", err)
	}

	svc := billing.NewService(store, rates, cfg)

	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := now

	if billingFrom != "" {
		if from, err = time.Parse(time.RFC3339, billingFrom); err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
	}
	if billingTo != "" {
		if to, err = time.Parse(time.RFC3339, billingTo); err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
	}
	if !to.After(from) {
		return fmt.Errorf("window end must be after window start")
	}

	report, err := svc.Rollup(context.Background(), from, to, billing.Filter{
		Provider: models.Provider(billingProvider),
		UserID:   billingUser,
	})
	if err != nil {
		return fmt.Errorf("rollup failed: %w", err)
	}

	fmt.Printf("Spend Report  %s .. %s\n\n",
		report.From.Format(time.RFC3339), report.To.Format(time.RFC3339))

	if len(report.Hosts) == 0 {
		fmt.Println("No billable hosts in window.")
		return nil
	}

	fmt.Printf("%-24s %-12s %-10s %-6s %-12s %10s %10s\n",
		"HOST", "USER", "PROVIDER", "TIER", "STATE", "HOURS", "COST USD")
	for _, line := range report.Hosts {
		cost := line.CostUSD.StringFixed(2)
		if line.RateMissing {
			cost = "n/a"
		}
		fmt.Printf("%-24s %-12s %-10s %-6s %-12s %10s %10s\n",
			line.HostID, line.UserID, line.Provider, line.Tier, line.State,
			line.Hours.StringFixed(2), cost)
	}

	fmt.Printf("\nTotal: %s hours, $%s\n",
		report.TotalHours.StringFixed(2), report.TotalCostUSD.StringFixed(2))

	return nil
}
