package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/apflow/ap-slo-engine/internal/cache"
	"github.com/apflow/ap-slo-engine/internal/metrics"
	"github.com/apflow/ap-slo-engine/internal/models"
	"github.com/apflow/ap-slo-engine/internal/store"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

// ErrBatchInProgress is returned when another run for the same period holds the lock.
var ErrBatchInProgress = errors.New("batch run already in progress")

// DefinitionReader is the catalogue view the runner needs.
type DefinitionReader interface {
	ListDefinitions(ctx context.Context, activeOnly bool) ([]models.SLODefinition, error)
	GetDefinition(ctx context.Context, id string) (models.SLODefinition, error)
}

// BatchError records why one SLO in a batch produced no measurement or no alerts.
type BatchError struct {
	SLODefinitionID string
	SLOName         string
	Stage           string
	Message         string
}

// BatchResult summarises one batch run.
type BatchResult struct {
	Period        models.MeasurementPeriod
	WindowStart   time.Time
	WindowEnd     time.Time
	Processed     int
	Computed      int
	Failed        int
	AlertsCreated int
	Measurements  []models.SLIMeasurement
	Errors        []BatchError
}

// SLOResult is the outcome of measuring a single SLO on demand.
type SLOResult struct {
	Definition  models.SLODefinition
	Measurement models.SLIMeasurement
	Alerts      []models.SLOAlert
}

// Runner drives calculate, persist and evaluate over the catalogue.
type Runner struct {
	logger       *slog.Logger
	definitions  DefinitionReader
	measurements store.MeasurementWriter
	calculator   *Calculator
	evaluator    *Evaluator
	locks        cache.Provider
	lockTTL      time.Duration
	clock        utils.Clock
}

// NewRunner constructs a batch runner. A nil lock provider disables run locking.
func NewRunner(
	logger *slog.Logger,
	definitions DefinitionReader,
	measurements store.MeasurementWriter,
	calculator *Calculator,
	evaluator *Evaluator,
	locks cache.Provider,
	lockTTL time.Duration,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if locks == nil {
		locks = cache.NoopProvider{}
	}
	if lockTTL <= 0 {
		lockTTL = 15 * time.Minute
	}
	return &Runner{
		logger:       logger,
		definitions:  definitions,
		measurements: measurements,
		calculator:   calculator,
		evaluator:    evaluator,
		locks:        locks,
		lockTTL:      lockTTL,
		clock:        utils.SystemClock,
	}
}

// WithClock pins the clock that anchors run windows.
func (r *Runner) WithClock(clock utils.Clock) *Runner {
	if clock != nil {
		r.clock = clock
	}
	return r
}

func batchLockKey(period models.MeasurementPeriod) string {
	return "slo-engine:batch:" + string(period)
}

// Run measures every active SLO with the given period over the last hours
// (the period's default window when hours <= 0). A failure on one SLO is
// logged and counted; the run moves on to the next.
func (r *Runner) Run(ctx context.Context, period models.MeasurementPeriod, hours int) (BatchResult, error) {
	started := time.Now()
	result := BatchResult{Period: period}

	if _, err := models.ParseMeasurementPeriod(string(period)); err != nil {
		return result, utils.NewAppError("engine.Run", err.Error(), utils.ErrInvalidInput)
	}

	lock, err := cache.TryLock(ctx, r.locks, batchLockKey(period), r.lockTTL)
	if err != nil {
		r.logger.Warn("batch lock unavailable, running unlocked",
			slog.String("period", string(period)),
			slog.Any("error", err),
		)
	} else if lock == nil {
		metrics.ObserveBatch(string(period), 0, metrics.OutcomeSkipped)
		return result, fmt.Errorf("%s: %w", period, ErrBatchInProgress)
	}
	defer func() {
		// Release on a fresh context so a cancelled run still frees its lock.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			r.logger.Warn("release batch lock failed", slog.String("period", string(period)), slog.Any("error", err))
		}
	}()

	lookback := utils.HoursToDuration(hours)
	if lookback == 0 {
		lookback = period.DefaultWindow()
	}
	result.WindowStart, result.WindowEnd = utils.WindowEnding(r.clock(), lookback)

	defs, err := r.definitions.ListDefinitions(ctx, true)
	if err != nil {
		metrics.ObserveBatch(string(period), time.Since(started), metrics.OutcomeError)
		return result, fmt.Errorf("list active slos: %w", err)
	}

	for _, def := range defs {
		if def.MeasurementPeriod != period {
			continue
		}
		if err := ctx.Err(); err != nil {
			metrics.ObserveBatch(string(period), time.Since(started), metrics.OutcomeError)
			return result, err
		}
		result.Processed++

		m, alerts, stage, err := r.measure(ctx, def, result.WindowStart, result.WindowEnd)
		if err != nil {
			r.logger.Error("slo measurement failed",
				slog.String("slo", def.Name),
				slog.String("slo_id", def.ID),
				slog.String("stage", stage),
				slog.Any("error", err),
			)
			result.Errors = append(result.Errors, BatchError{
				SLODefinitionID: def.ID,
				SLOName:         def.Name,
				Stage:           stage,
				Message:         err.Error(),
			})
			if stage != stageEvaluate {
				result.Failed++
				metrics.ObserveMeasurementFailure(string(def.SLIType))
				continue
			}
		}
		result.Computed++
		result.AlertsCreated += len(alerts)
		result.Measurements = append(result.Measurements, m)
	}

	outcome := metrics.OutcomeSuccess
	if len(result.Errors) > 0 {
		outcome = metrics.OutcomePartial
	}
	elapsed := time.Since(started)
	metrics.ObserveBatch(string(period), elapsed, outcome)
	r.logger.Info("measurement batch complete",
		slog.String("period", string(period)),
		slog.Time("window_start", result.WindowStart),
		slog.Time("window_end", result.WindowEnd),
		slog.Int("processed", result.Processed),
		slog.Int("computed", result.Computed),
		slog.Int("failed", result.Failed),
		slog.Int("alerts", result.AlertsCreated),
		slog.Duration("elapsed", elapsed),
	)
	return result, nil
}

// RunOne measures a single SLO over the last hours (its period's default
// window when hours <= 0). Every failure is returned to the caller.
func (r *Runner) RunOne(ctx context.Context, sloID string, hours int) (SLOResult, error) {
	def, err := r.definitions.GetDefinition(ctx, sloID)
	if err != nil {
		return SLOResult{}, err
	}
	lookback := utils.HoursToDuration(hours)
	if lookback == 0 {
		lookback = def.MeasurementPeriod.DefaultWindow()
	}
	start, end := utils.WindowEnding(r.clock(), lookback)

	m, alerts, stage, err := r.measure(ctx, def, start, end)
	if err != nil {
		return SLOResult{Definition: def, Measurement: m}, utils.NewAppError("engine.RunOne", stage+" failed", err)
	}
	return SLOResult{Definition: def, Measurement: m, Alerts: alerts}, nil
}

const (
	stageCalculate = "calculate"
	stagePersist   = "persist"
	stageEvaluate  = "evaluate"
)

// measure runs the three steps for one SLO and reports which stage failed.
// On an evaluate failure the measurement is already stored and is returned.
func (r *Runner) measure(ctx context.Context, def models.SLODefinition, start, end time.Time) (models.SLIMeasurement, []models.SLOAlert, string, error) {
	m, err := r.calculator.Calculate(ctx, def, start, end)
	if err != nil {
		return models.SLIMeasurement{}, nil, stageCalculate, err
	}

	batch := []models.SLIMeasurement{m}
	if err := r.measurements.SaveMeasurements(ctx, batch); err != nil {
		return models.SLIMeasurement{}, nil, stagePersist, err
	}
	m = batch[0]
	metrics.ObserveMeasurement(string(def.SLIType), string(m.Status))

	alerts, err := r.evaluator.Evaluate(ctx, def, m)
	if err != nil {
		return m, nil, stageEvaluate, err
	}
	return m, alerts, "", nil
}
