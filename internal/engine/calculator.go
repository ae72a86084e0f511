// Package engine turns catalogue entries into measurements and alerts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/apflow/ap-slo-engine/internal/eventstore"
	"github.com/apflow/ap-slo-engine/internal/indicators"
	"github.com/apflow/ap-slo-engine/internal/models"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

// ErrUnsupportedSLIType is returned when no indicator is registered for a definition's type.
var ErrUnsupportedSLIType = errors.New("unsupported sli type")

// Calculator produces one measurement per (definition, window).
type Calculator struct {
	logger       *slog.Logger
	source       eventstore.Source
	registry     indicators.Registry
	queryTimeout time.Duration
	clock        utils.Clock
}

// NewCalculator wires an event source and indicator registry. A nil registry
// uses indicators.DefaultRegistry; a non-positive timeout leaves queries bounded
// only by the caller's context.
func NewCalculator(logger *slog.Logger, source eventstore.Source, registry indicators.Registry, queryTimeout time.Duration) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = indicators.DefaultRegistry()
	}
	return &Calculator{
		logger:       logger,
		source:       source,
		registry:     registry,
		queryTimeout: queryTimeout,
		clock:        utils.SystemClock,
	}
}

// WithClock pins the clock used for CreatedAt.
func (c *Calculator) WithClock(clock utils.Clock) *Calculator {
	if clock != nil {
		c.clock = clock
	}
	return c
}

// Calculate measures def over [start, end). The result is not persisted.
func (c *Calculator) Calculate(ctx context.Context, def models.SLODefinition, start, end time.Time) (models.SLIMeasurement, error) {
	indicator, ok := c.registry.Lookup(def.SLIType)
	if !ok {
		return models.SLIMeasurement{}, fmt.Errorf("slo %s: %w: %q", def.Name, ErrUnsupportedSLIType, def.SLIType)
	}
	if !end.After(start) {
		return models.SLIMeasurement{}, fmt.Errorf("slo %s: empty window %s - %s", def.Name, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	var events []models.InvoiceEvent
	if kind := indicator.Kind(); kind != "" {
		if c.source == nil {
			return models.SLIMeasurement{}, fmt.Errorf("event source not configured")
		}
		queryCtx := ctx
		if c.queryTimeout > 0 {
			var cancel context.CancelFunc
			queryCtx, cancel = context.WithTimeout(ctx, c.queryTimeout)
			defer cancel()
		}
		fetched, err := c.source.FetchEvents(queryCtx, kind, start, end)
		if err != nil {
			return models.SLIMeasurement{}, fmt.Errorf("fetch %s events for slo %s: %w", kind, def.Name, err)
		}
		events = fetched
	}

	result := indicator.Measure(def, events)
	if result.Status == models.MeasurementNoData {
		c.logger.Debug("no qualifying events",
			slog.String("slo", def.Name),
			slog.String("sli_type", string(def.SLIType)),
		)
	}

	return models.SLIMeasurement{
		SLODefinitionID:     def.ID,
		PeriodStart:         start,
		PeriodEnd:           end,
		ActualValue:         result.Actual,
		TargetValue:         def.TargetValue,
		AchievedPercentage:  result.Achieved,
		GoodEventsCount:     result.Good,
		TotalEventsCount:    result.Total,
		ErrorBudgetConsumed: models.BudgetConsumed(result.Achieved),
		Status:              result.Status,
		CreatedAt:           c.clock(),
	}, nil
}
