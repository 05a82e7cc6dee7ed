package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AlertType identifies which spend threshold an alert reports.
type AlertType string

const (
	AlertDailyWarning    AlertType = "daily_limit_warning"
	AlertDailyExceeded   AlertType = "daily_limit_exceeded"
	AlertMonthlyWarning  AlertType = "monthly_limit_warning"
	AlertMonthlyExceeded AlertType = "monthly_limit_exceeded"
)

// warningFraction is the share of a limit at which a warning fires.
const warningFraction = 0.8

// Alert reports a spend threshold crossing.
type Alert struct {
	Type     AlertType       `json:"type"`
	SpendUSD decimal.Decimal `json:"spend_usd"`
	LimitUSD decimal.Decimal `json:"limit_usd"`
	Message  string          `json:"message"`
}

// CheckAlerts compares day-to-date and month-to-date spend against the
// configured limits. Each period yields at most one alert: exceeded when
// spend reaches the limit, otherwise a warning at 80% of it.
func (s *Service) CheckAlerts(ctx context.Context, now time.Time) ([]Alert, error) {
	var alerts []Alert

	daily, err := s.DayToDate(ctx, now)
	if err != nil {
		return nil, err
	}
	if alert := thresholdAlert(daily.TotalCostUSD, s.config.Billing.DailyLimitUSD, AlertDailyWarning, AlertDailyExceeded, "daily"); alert != nil {
		alerts = append(alerts, *alert)
	}

	monthly, err := s.MonthToDate(ctx, now)
	if err != nil {
		return nil, err
	}
	if alert := thresholdAlert(monthly.TotalCostUSD, s.config.Billing.MonthlyLimitUSD, AlertMonthlyWarning, AlertMonthlyExceeded, "monthly"); alert != nil {
		alerts = append(alerts, *alert)
	}

	return alerts, nil
}

func thresholdAlert(spend decimal.Decimal, limitUSD float64, warning, exceeded AlertType, period string) *Alert {
	if limitUSD <= 0 {
		return nil
	}
	limit := decimal.NewFromFloat(limitUSD)
	warnAt := limit.Mul(decimal.NewFromFloat(warningFraction))

	switch {
	case spend.GreaterThanOrEqual(limit):
		return &Alert{
			Type:     exceeded,
			SpendUSD: spend,
			LimitUSD: limit,
			Message:  fmt.Sprintf("%s spend $%s has exceeded the $%s limit", period, spend.StringFixed(2), limit.StringFixed(2)),
		}
	case spend.GreaterThanOrEqual(warnAt):
		return &Alert{
			Type:     warning,
			SpendUSD: spend,
			LimitUSD: limit,
			Message:  fmt.Sprintf("%s spend $%s is over 80%% of the $%s limit", period, spend.StringFixed(2), limit.StringFixed(2)),
		}
	}
	return nil
}

// CapLevel classifies month-to-date spend against the soft and hard caps.
type CapLevel string

const (
	CapOK   CapLevel = "ok"
	CapSoft CapLevel = "soft"
	CapHard CapLevel = "hard"
)

// CapStatus returns the cap level for month-to-date spend along with the
// underlying report. The supervisor drains the fleet at CapHard and emits a
// warning event at CapSoft.
func (s *Service) CapStatus(ctx context.Context, now time.Time) (CapLevel, *Report, error) {
	report, err := s.MonthToDate(ctx, now)
	if err != nil {
		return CapOK, nil, err
	}

	if hard := s.config.Billing.MonthlyHardCapUSD; hard > 0 &&
		report.TotalCostUSD.GreaterThanOrEqual(decimal.NewFromFloat(hard)) {
		return CapHard, report, nil
	}
	if soft := s.config.Billing.MonthlySoftCapUSD; soft > 0 &&
		report.TotalCostUSD.GreaterThanOrEqual(decimal.NewFromFloat(soft)) {
		return CapSoft, report, nil
	}
	return CapOK, report, nil
}
