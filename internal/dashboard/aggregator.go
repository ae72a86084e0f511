// Package dashboard composes the read-side health views from the store.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/apflow/ap-slo-engine/internal/models"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

// Reader is the store surface the aggregator reads from.
type Reader interface {
	ListDefinitions(ctx context.Context, activeOnly bool) ([]models.SLODefinition, error)
	GetDefinition(ctx context.Context, id string) (models.SLODefinition, error)
	LatestMeasurement(ctx context.Context, sloID string, since time.Time) (models.SLIMeasurement, error)
	ListMeasurements(ctx context.Context, sloID string, since time.Time) ([]models.SLIMeasurement, error)
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.SLOAlert, error)
}

// Aggregator builds dashboard snapshots and measurement histories.
type Aggregator struct {
	logger        *slog.Logger
	reader        Reader
	criticalFloor float64
	recentCap     int
	alertScan     int
	clock         utils.Clock
}

// NewAggregator constructs an aggregator. recentCap bounds RecentCriticalAlerts
// and alertScan bounds how many critical alerts are read to fill it.
func NewAggregator(logger *slog.Logger, reader Reader, criticalFloor float64, recentCap, alertScan int) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if criticalFloor <= 0 {
		criticalFloor = 50
	}
	if recentCap <= 0 {
		recentCap = 10
	}
	if alertScan < recentCap {
		alertScan = recentCap * 20
	}
	return &Aggregator{
		logger:        logger,
		reader:        reader,
		criticalFloor: criticalFloor,
		recentCap:     recentCap,
		alertScan:     alertScan,
		clock:         utils.SystemClock,
	}
}

// WithClock pins the clock that anchors the lookback range.
func (a *Aggregator) WithClock(clock utils.Clock) *Aggregator {
	if clock != nil {
		a.clock = clock
	}
	return a
}

// Snapshot reports every active SLO (optionally one SLI type) over the last days.
func (a *Aggregator) Snapshot(ctx context.Context, days int, sliType models.SLIType) (models.DashboardSnapshot, error) {
	now := a.clock()
	window := models.LastDays(now, days)
	snapshot := models.DashboardSnapshot{
		GeneratedAt: now,
		Range:       window,
		SLIType:     sliType,
		SLOs:        make([]models.SLOHealth, 0),
	}

	defs, err := a.reader.ListDefinitions(ctx, true)
	if err != nil {
		return snapshot, fmt.Errorf("list active slos: %w", err)
	}

	included := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if sliType != "" && def.SLIType != sliType {
			continue
		}
		included[def.ID] = struct{}{}

		health := models.SLOHealth{Definition: def, Status: models.HealthNoData}
		latest, err := a.reader.LatestMeasurement(ctx, def.ID, window.Start)
		switch {
		case errors.Is(err, utils.ErrNotFound):
		case err != nil:
			return snapshot, fmt.Errorf("latest measurement for %s: %w", def.Name, err)
		default:
			health.LatestMeasurement = &latest
			health.Status = a.Status(def, latest)
			health.BurnRate = BurnRate(def, latest)
		}

		open, err := a.reader.ListAlerts(ctx, models.AlertFilter{SLODefinitionID: def.ID, UnresolvedOnly: true})
		if err != nil {
			return snapshot, fmt.Errorf("open alerts for %s: %w", def.Name, err)
		}
		health.OpenAlerts = open

		snapshot.Summary.TotalSLOs++
		snapshot.Summary.OpenAlerts += len(open)
		switch health.Status {
		case models.HealthCritical:
			snapshot.Summary.CriticalSLOs++
		case models.HealthWarning:
			snapshot.Summary.WarningSLOs++
		case models.HealthHealthy:
			snapshot.Summary.HealthySLOs++
		default:
			snapshot.Summary.NoDataSLOs++
		}
		snapshot.SLOs = append(snapshot.SLOs, health)
	}

	critical, err := a.reader.ListAlerts(ctx, models.AlertFilter{
		Severity:       models.SeverityCritical,
		UnresolvedOnly: true,
		Since:          window.Start,
		Limit:          a.alertScan,
	})
	if err != nil {
		return snapshot, fmt.Errorf("recent critical alerts: %w", err)
	}
	snapshot.RecentCriticalAlerts = make([]models.SLOAlert, 0, a.recentCap)
	for _, alert := range critical {
		if _, ok := included[alert.SLODefinitionID]; !ok {
			continue
		}
		snapshot.RecentCriticalAlerts = append(snapshot.RecentCriticalAlerts, alert)
		if len(snapshot.RecentCriticalAlerts) == a.recentCap {
			break
		}
	}

	a.logger.Debug("dashboard snapshot built",
		slog.Int("slos", snapshot.Summary.TotalSLOs),
		slog.Int("critical", snapshot.Summary.CriticalSLOs),
		slog.Int("open_alerts", snapshot.Summary.OpenAlerts),
	)
	return snapshot, nil
}

// Status classifies one measurement against its definition. Critical wins
// over warning, which wins over healthy.
func (a *Aggregator) Status(def models.SLODefinition, m models.SLIMeasurement) models.HealthStatus {
	if !m.HasSignal() {
		return models.HealthNoData
	}
	switch {
	case m.ErrorBudgetConsumed >= def.ErrorBudgetPercentage || m.AchievedPercentage < a.criticalFloor:
		return models.HealthCritical
	case m.ErrorBudgetConsumed >= def.AlertingThresholdPercentage:
		return models.HealthWarning
	default:
		return models.HealthHealthy
	}
}

// BurnRate is consumption relative to the budget; 1 means the budget is exactly spent.
func BurnRate(def models.SLODefinition, m models.SLIMeasurement) float64 {
	if !m.HasSignal() || def.ErrorBudgetPercentage <= 0 {
		return 0
	}
	return m.ErrorBudgetConsumed / def.ErrorBudgetPercentage
}

// History returns one SLO's measurements over the last days, oldest first.
// Summary statistics only cover measurements computed from events; Count
// covers every stored measurement.
func (a *Aggregator) History(ctx context.Context, sloID string, days int) (models.MeasurementHistory, error) {
	def, err := a.reader.GetDefinition(ctx, sloID)
	if err != nil {
		return models.MeasurementHistory{}, err
	}
	window := models.LastDays(a.clock(), days)
	measurements, err := a.reader.ListMeasurements(ctx, sloID, window.Start)
	if err != nil {
		return models.MeasurementHistory{}, fmt.Errorf("list measurements for %s: %w", def.Name, err)
	}
	return models.MeasurementHistory{
		Definition:   def,
		Range:        window,
		Measurements: measurements,
		Summary:      Summarise(measurements),
	}, nil
}

// Summarise derives history statistics from a series ordered oldest first.
func Summarise(measurements []models.SLIMeasurement) models.HistorySummary {
	summary := models.HistorySummary{Count: len(measurements)}
	var (
		n           int
		sumAchieved float64
		sumConsumed float64
	)
	summary.MinAchieved = math.Inf(1)
	for _, m := range measurements {
		if !m.HasSignal() {
			continue
		}
		n++
		sumAchieved += m.AchievedPercentage
		sumConsumed += m.ErrorBudgetConsumed
		summary.MinAchieved = math.Min(summary.MinAchieved, m.AchievedPercentage)
		summary.MaxAchieved = math.Max(summary.MaxAchieved, m.AchievedPercentage)
		summary.MaxBudgetConsumed = math.Max(summary.MaxBudgetConsumed, m.ErrorBudgetConsumed)
		summary.LatestAchieved = m.AchievedPercentage
		summary.LatestBudgetConsumed = m.ErrorBudgetConsumed
	}
	if n == 0 {
		summary.MinAchieved = 0
		return summary
	}
	summary.AverageAchieved = sumAchieved / float64(n)
	summary.AverageBudgetConsumed = sumConsumed / float64(n)
	return summary
}
