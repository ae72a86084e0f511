// Package scheduler triggers measurement batches on a fixed cadence per period.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/apflow/ap-slo-engine/internal/engine"
	"github.com/apflow/ap-slo-engine/internal/models"
)

// BatchRunner is the service call the scheduler drives.
type BatchRunner interface {
	RunMeasurements(ctx context.Context, period string, hours int) (engine.BatchResult, error)
}

// Scheduler runs one ticker per configured period. Each tick measures the
// period's default window ending now.
type Scheduler struct {
	logger   *slog.Logger
	runner   BatchRunner
	periods  []models.MeasurementPeriod
	interval func(models.MeasurementPeriod) time.Duration
}

// New validates periods and builds a scheduler.
func New(logger *slog.Logger, runner BatchRunner, periods []string) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		return nil, fmt.Errorf("scheduler requires a batch runner")
	}
	seen := make(map[models.MeasurementPeriod]bool, len(periods))
	parsed := make([]models.MeasurementPeriod, 0, len(periods))
	for _, raw := range periods {
		p, err := models.ParseMeasurementPeriod(raw)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		parsed = append(parsed, p)
	}
	return &Scheduler{
		logger:   logger,
		runner:   runner,
		periods:  parsed,
		interval: models.MeasurementPeriod.DefaultWindow,
	}, nil
}

// WithInterval overrides the tick interval, mainly for tests.
func (s *Scheduler) WithInterval(fn func(models.MeasurementPeriod) time.Duration) *Scheduler {
	if fn != nil {
		s.interval = fn
	}
	return s
}

// Periods returns the scheduled periods.
func (s *Scheduler) Periods() []models.MeasurementPeriod {
	return append([]models.MeasurementPeriod(nil), s.periods...)
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range s.periods {
		wg.Add(1)
		go func(period models.MeasurementPeriod) {
			defer wg.Done()
			s.loop(ctx, period)
		}(p)
	}
	s.logger.Info("scheduler started", slog.Int("periods", len(s.periods)))
	wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, period models.MeasurementPeriod) {
	ticker := time.NewTicker(s.interval(period))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, period)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, period models.MeasurementPeriod) {
	res, err := s.runner.RunMeasurements(ctx, string(period), 0)
	switch {
	case errors.Is(err, engine.ErrBatchInProgress):
		s.logger.Warn("scheduled batch skipped", slog.String("period", string(period)))
	case err != nil:
		if ctx.Err() == nil {
			s.logger.Error("scheduled batch failed", slog.String("period", string(period)), slog.Any("error", err))
		}
	default:
		s.logger.Debug("scheduled batch finished",
			slog.String("period", string(period)),
			slog.Int("computed", res.Computed),
			slog.Int("failed", res.Failed),
		)
	}
}
