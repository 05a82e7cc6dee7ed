package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playmesh/playmesh/internal/config"
	"github.com/playmesh/playmesh/internal/storage"
	"github.com/playmesh/playmesh/models"
)

// costPrecision is the decimal place count of reported dollar amounts.
const costPrecision = 4

// Service produces spend reports over the host records in storage.
type Service struct {
	storage *storage.Storage
	rates   *RateTable
	config  *config.Config
}

// NewService creates a billing service over the given storage and rate table.
func NewService(st *storage.Storage, rates *RateTable, cfg *config.Config) *Service {
	return &Service{storage: st, rates: rates, config: cfg}
}

// Filter restricts a rollup to matching hosts. Zero values match everything.
type Filter struct {
	Provider models.Provider
	UserID   string
}

// HostLine is the per-host row of a spend report.
type HostLine struct {
	HostID   string                `json:"host_id"`
	UserID   string                `json:"user_id"`
	Platform string                `json:"platform"`
	Provider models.Provider       `json:"provider"`
	Tier     models.Tier           `json:"tier"`
	State    models.LifecycleState `json:"state"`
	Hours    decimal.Decimal       `json:"hours"`
	CostUSD  decimal.Decimal       `json:"cost_usd"`

	// RateMissing marks hosts whose provider/tier pair is absent from the
	// rate table; their cost is reported as zero rather than guessed.
	RateMissing bool `json:"rate_missing,omitempty"`
}

// Report is the result of a rollup over a time window.
type Report struct {
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Hosts        []HostLine      `json:"hosts"`
	TotalHours   decimal.Decimal `json:"total_hours"`
	TotalCostUSD decimal.Decimal `json:"total_cost_usd"`
}

// Rollup estimates spend across all hosts whose billable window overlaps
// [from, to). Every host accrues from creation through its last recorded
// activity; terminal and stopped hosts without recorded activity stop at their
// last update, and live hosts without it bill nothing. Each host's
// billable hours are capped at the tier's session-length hard stop.
func (s *Service) Rollup(ctx context.Context, from, to time.Time, filter Filter) (*Report, error) {
	hosts, err := s.storage.ListHosts()
	if err != nil {
		return nil, err
	}

	families := make(map[string]string)
	report := &Report{
		From:         from,
		To:           to,
		TotalHours:   decimal.Zero,
		TotalCostUSD: decimal.Zero,
	}

	for _, host := range hosts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if filter.Provider != "" && host.Provider != filter.Provider {
			continue
		}
		if filter.UserID != "" && host.UserID != filter.UserID {
			continue
		}

		capHours := s.config.Supervisor.MaxSessionHoursFor(string(host.Tier))
		hours := billableHours(host, from, to, capHours)
		if hours.IsZero() {
			continue
		}

		line := HostLine{
			HostID:   host.ID,
			UserID:   host.UserID,
			Platform: host.Platform,
			Provider: host.Provider,
			Tier:     host.Tier,
			State:    host.State,
			Hours:    hours,
			CostUSD:  decimal.Zero,
		}

		rate, ok := s.rates.HourlyRate(host.Provider, host.Tier, s.familyFor(host.Platform, families))
		if !ok {
			line.RateMissing = true
		} else {
			line.CostUSD = hours.Mul(rate).Round(costPrecision)
		}

		report.Hosts = append(report.Hosts, line)
		report.TotalHours = report.TotalHours.Add(hours)
		report.TotalCostUSD = report.TotalCostUSD.Add(line.CostUSD)
	}

	report.TotalHours = report.TotalHours.Round(costPrecision)
	return report, nil
}

// MonthToDate rolls up spend from the first of the current month through now.
func (s *Service) MonthToDate(ctx context.Context, now time.Time) (*Report, error) {
	now = now.UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.Rollup(ctx, from, now, Filter{})
}

// DayToDate rolls up spend from midnight UTC through now.
func (s *Service) DayToDate(ctx context.Context, now time.Time) (*Report, error) {
	now = now.UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.Rollup(ctx, from, now, Filter{})
}

// familyFor resolves a platform's billing family, caching lookups for the
// duration of one rollup. Unknown platforms fall back to the empty family,
// which carries multiplier 1.
func (s *Service) familyFor(platform string, cache map[string]string) string {
	if family, ok := cache[platform]; ok {
		return family
	}
	family := ""
	if profile, err := s.storage.GetPlatform(platform); err == nil {
		family = profile.Family
	}
	cache[platform] = family
	return family
}

// billableHours computes the hours a host accrued inside [from, to), capped at
// capHours when positive. The accrual window runs from creation to the host's
// last recorded activity. Settled hosts that never reported activity fall back
// to their last update; a live host without recorded activity has no session
// time yet and bills nothing.
func billableHours(host *models.Host, from, to time.Time, capHours float64) decimal.Decimal {
	start := host.CreatedAt
	if start.Before(from) {
		start = from
	}

	end := host.LastActivity
	if end.IsZero() {
		if !host.State.IsTerminal() && host.State != models.StateStopped {
			return decimal.Zero
		}
		end = host.UpdatedAt
	}
	if end.After(to) {
		end = to
	}

	if !end.After(start) {
		return decimal.Zero
	}

	hours := end.Sub(start).Hours()
	if capHours > 0 && hours > capHours {
		hours = capHours
	}
	return decimal.NewFromFloat(hours).Round(costPrecision)
}
