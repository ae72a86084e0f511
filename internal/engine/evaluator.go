package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/apflow/ap-slo-engine/internal/metrics"
	"github.com/apflow/ap-slo-engine/internal/models"
	"github.com/apflow/ap-slo-engine/internal/store"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

// DefaultCriticalFloor is the achieved percentage below which a measurement is
// critical whatever its budget settings.
const DefaultCriticalFloor = 50.0

// Evaluator applies the alert rules to a fresh measurement and persists what fires.
type Evaluator struct {
	logger        *slog.Logger
	writer        store.AlertWriter
	criticalFloor float64
	clock         utils.Clock
}

// NewEvaluator constructs an evaluator. A non-positive floor uses DefaultCriticalFloor.
func NewEvaluator(logger *slog.Logger, writer store.AlertWriter, criticalFloor float64) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if criticalFloor <= 0 {
		criticalFloor = DefaultCriticalFloor
	}
	return &Evaluator{
		logger:        logger,
		writer:        writer,
		criticalFloor: criticalFloor,
		clock:         utils.SystemClock,
	}
}

// WithClock pins the clock used for BreachedAt.
func (e *Evaluator) WithClock(clock utils.Clock) *Evaluator {
	if clock != nil {
		e.clock = clock
	}
	return e
}

// Rules returns the alerts def's thresholds raise for m without persisting them.
// The rules are independent, so one measurement can raise several alerts.
// Measurements without signal raise nothing.
func (e *Evaluator) Rules(def models.SLODefinition, m models.SLIMeasurement) []models.SLOAlert {
	if !m.HasSignal() {
		return nil
	}

	now := e.clock()
	window := fmt.Sprintf("%s to %s", m.PeriodStart.UTC().Format("2006-01-02 15:04"), m.PeriodEnd.UTC().Format("2006-01-02 15:04"))
	newAlert := func(alertType string, severity models.Severity, title, message string) models.SLOAlert {
		return models.SLOAlert{
			SLODefinitionID: def.ID,
			MeasurementID:   m.ID,
			AlertType:       alertType,
			Severity:        severity,
			Title:           title,
			Message:         message,
			CurrentValue:    m.ActualValue,
			TargetValue:     m.TargetValue,
			BreachedAt:      now,
		}
	}

	var alerts []models.SLOAlert
	if m.ErrorBudgetConsumed >= def.ErrorBudgetPercentage {
		alerts = append(alerts, newAlert(models.AlertErrorBudgetExhausted, models.SeverityCritical,
			fmt.Sprintf("Error budget exhausted: %s", def.Name),
			fmt.Sprintf("%s consumed %.2f%% of its error budget (limit %.2f%%) for %s.",
				def.Name, m.ErrorBudgetConsumed, def.ErrorBudgetPercentage, window),
		))
	}
	if m.ErrorBudgetConsumed >= def.AlertingThresholdPercentage {
		alerts = append(alerts, newAlert(models.AlertBurnRateWarning, models.SeverityWarning,
			fmt.Sprintf("Error budget burning: %s", def.Name),
			fmt.Sprintf("%s consumed %.2f%% of its error budget, above the %.2f%% alerting threshold, for %s.",
				def.Name, m.ErrorBudgetConsumed, def.AlertingThresholdPercentage, window),
		))
	}
	if m.AchievedPercentage < e.criticalFloor {
		alerts = append(alerts, newAlert(models.AlertCriticalPerformance, models.SeverityCritical,
			fmt.Sprintf("Critical performance: %s", def.Name),
			fmt.Sprintf("%s achieved %.2f%% (%d of %d events good), below the %.0f%% floor, for %s.",
				def.Name, m.AchievedPercentage, m.GoodEventsCount, m.TotalEventsCount, e.criticalFloor, window),
		))
	}
	return alerts
}

// Evaluate runs the rules and persists the resulting alerts before returning them.
func (e *Evaluator) Evaluate(ctx context.Context, def models.SLODefinition, m models.SLIMeasurement) ([]models.SLOAlert, error) {
	alerts := e.Rules(def, m)
	if len(alerts) == 0 {
		return nil, nil
	}
	if e.writer == nil {
		return nil, fmt.Errorf("alert store not configured")
	}
	if err := e.writer.SaveAlerts(ctx, alerts); err != nil {
		return nil, fmt.Errorf("persist alerts for slo %s: %w", def.Name, err)
	}
	for _, a := range alerts {
		metrics.ObserveAlert(a.AlertType, string(a.Severity))
		e.logger.Info("slo alert raised",
			slog.String("slo", def.Name),
			slog.String("alert_type", a.AlertType),
			slog.String("severity", string(a.Severity)),
			slog.String("alert_id", a.ID),
		)
	}
	return alerts, nil
}
