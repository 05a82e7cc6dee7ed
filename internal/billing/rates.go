// Package billing computes spend estimates for the fleet: a YAML rate table
// maps provider and tier to an hourly base rate, platform families scale it,
// and the rollup walks host records to produce per-host and aggregate cost
// reports. Spend alerts and cap checks are layered on top of the rollup.
package billing

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/playmesh/playmesh/models"
)

// rateTableDoc is the YAML shape of the rate table file. Rates are strings so
// the file carries exact decimal values.
type rateTableDoc struct {
	Providers map[string]struct {
		Tiers map[string]string `yaml:"tiers"`
	} `yaml:"providers"`
	Families map[string]string `yaml:"families"`
}

// RateTable resolves hourly rates for provisioned hosts. Base rates are keyed
// by provider and tier; platform families carry a multiplier on top. Lookups
// never mutate, so a single table is shared across goroutines.
type RateTable struct {
	base        map[models.Provider]map[models.Tier]decimal.Decimal
	multipliers map[string]decimal.Decimal
}

// LoadRateTable reads and parses the YAML rate table at path.
func LoadRateTable(path string) (*RateTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate table: %w", err)
	}
	return ParseRateTable(data)
}

// ParseRateTable parses a YAML rate table document.
func ParseRateTable(data []byte) (*RateTable, error) {
	var doc rateTableDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rate table: %w", err)
	}

	table := &RateTable{
		base:        make(map[models.Provider]map[models.Tier]decimal.Decimal),
		multipliers: make(map[string]decimal.Decimal),
	}

	for provider, entry := range doc.Providers {
		tiers := make(map[models.Tier]decimal.Decimal, len(entry.Tiers))
		for tier, raw := range entry.Tiers {
			rate, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid rate for %s/%s: %w", provider, tier, err)
			}
			if rate.IsNegative() {
				return nil, fmt.Errorf("negative rate for %s/%s: %s", provider, tier, raw)
			}
			tiers[models.Tier(tier)] = rate
		}
		table.base[models.Provider(provider)] = tiers
	}

	for family, raw := range doc.Families {
		mult, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid multiplier for family %s: %w", family, err)
		}
		if mult.IsNegative() || mult.IsZero() {
			return nil, fmt.Errorf("non-positive multiplier for family %s: %s", family, raw)
		}
		table.multipliers[family] = mult
	}

	return table, nil
}

// BaseRate returns the hourly base rate for a provider and tier. The second
// return value is false when the table has no entry for the pair.
func (t *RateTable) BaseRate(provider models.Provider, tier models.Tier) (decimal.Decimal, bool) {
	tiers, ok := t.base[provider]
	if !ok {
		return decimal.Zero, false
	}
	rate, ok := tiers[tier]
	return rate, ok
}

// Multiplier returns the family multiplier, or 1 for families the table does
// not list.
func (t *RateTable) Multiplier(family string) decimal.Decimal {
	if mult, ok := t.multipliers[family]; ok {
		return mult
	}
	return decimal.NewFromInt(1)
}

// HourlyRate returns the effective hourly rate: base rate scaled by the family
// multiplier. The second return value is false when the provider/tier pair is
// not in the table.
func (t *RateTable) HourlyRate(provider models.Provider, tier models.Tier, family string) (decimal.Decimal, bool) {
	base, ok := t.BaseRate(provider, tier)
	if !ok {
		return decimal.Zero, false
	}
	return base.Mul(t.Multiplier(family)), true
}
