package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/apflow/ap-slo-engine/internal/dashboard"
	"github.com/apflow/ap-slo-engine/internal/engine"
	"github.com/apflow/ap-slo-engine/internal/models"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

const (
	// DefaultDashboardDays is the dashboard lookback when the caller gives none.
	DefaultDashboardDays = 7
	// DefaultHistoryDays is the history lookback when the caller gives none.
	DefaultHistoryDays = 30
	// DefaultAlertLimit bounds alert listings when the caller gives no limit.
	DefaultAlertLimit = 100
)

// Store is the persistence surface the service needs beyond the engine and dashboard.
type Store interface {
	ListDefinitions(ctx context.Context, activeOnly bool) ([]models.SLODefinition, error)
	SetActive(ctx context.Context, id string, active bool) error
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.SLOAlert, error)
	Acknowledge(ctx context.Context, id, actor string) (models.SLOAlert, error)
	Resolve(ctx context.Context, id, notes string) (models.SLOAlert, error)
	Ping(ctx context.Context) error
}

// AlertQuery is the caller-facing alert listing filter.
type AlertQuery struct {
	SLOID          string
	Severity       string
	UnresolvedOnly bool
	SinceDays      int
	Limit          int
}

// SLOService is the transport-neutral facade over the engine, store and dashboard.
// The gRPC, REST and CLI surfaces all call through it.
type SLOService struct {
	logger    *slog.Logger
	store     Store
	runner    *engine.Runner
	dashboard *dashboard.Aggregator
	latencies *utils.LatencyTracker
	clock     utils.Clock
}

// NewSLOService constructs the service facade.
func NewSLOService(logger *slog.Logger, store Store, runner *engine.Runner, aggregator *dashboard.Aggregator) *SLOService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SLOService{
		logger:    logger,
		store:     store,
		runner:    runner,
		dashboard: aggregator,
		latencies: utils.NewLatencyTracker(256),
		clock:     utils.SystemClock,
	}
}

func invalid(op, msg string) error {
	return utils.NewAppError(op, msg, utils.ErrInvalidInput)
}

// RunMeasurements computes every active SLO of period over the last hours.
func (s *SLOService) RunMeasurements(ctx context.Context, period string, hours int) (engine.BatchResult, error) {
	if s.runner == nil {
		return engine.BatchResult{}, fmt.Errorf("runner not configured")
	}
	p, err := models.ParseMeasurementPeriod(period)
	if err != nil {
		return engine.BatchResult{}, invalid("RunMeasurements", err.Error())
	}
	if hours < 0 {
		return engine.BatchResult{}, invalid("RunMeasurements", "hours must not be negative")
	}

	start := time.Now()
	result, err := s.runner.Run(ctx, p, hours)
	if err != nil {
		return result, err
	}
	s.latencies.Observe(time.Since(start))
	if count := s.latencies.Count(); count >= 10 && count%10 == 0 {
		s.logger.Info("batch latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	return result, nil
}

// CalculateSLO measures one SLO on demand and evaluates its alerts.
func (s *SLOService) CalculateSLO(ctx context.Context, sloID string, hours int) (engine.SLOResult, error) {
	if s.runner == nil {
		return engine.SLOResult{}, fmt.Errorf("runner not configured")
	}
	if strings.TrimSpace(sloID) == "" {
		return engine.SLOResult{}, invalid("CalculateSLO", "slo id is required")
	}
	if hours < 0 {
		return engine.SLOResult{}, invalid("CalculateSLO", "hours must not be negative")
	}
	return s.runner.RunOne(ctx, sloID, hours)
}

// AcknowledgeAlert records that actor has seen the alert.
func (s *SLOService) AcknowledgeAlert(ctx context.Context, alertID, actor string) (models.SLOAlert, error) {
	if strings.TrimSpace(alertID) == "" {
		return models.SLOAlert{}, invalid("AcknowledgeAlert", "alert id is required")
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return models.SLOAlert{}, invalid("AcknowledgeAlert", "actor is required")
	}
	alert, err := s.store.Acknowledge(ctx, alertID, actor)
	if err != nil {
		return models.SLOAlert{}, err
	}
	s.logger.Info("alert acknowledged", slog.String("alert_id", alertID), slog.String("actor", actor))
	return alert, nil
}

// ResolveAlert closes the alert with optional notes.
func (s *SLOService) ResolveAlert(ctx context.Context, alertID, notes string) (models.SLOAlert, error) {
	if strings.TrimSpace(alertID) == "" {
		return models.SLOAlert{}, invalid("ResolveAlert", "alert id is required")
	}
	alert, err := s.store.Resolve(ctx, alertID, strings.TrimSpace(notes))
	if err != nil {
		return models.SLOAlert{}, err
	}
	s.logger.Info("alert resolved", slog.String("alert_id", alertID))
	return alert, nil
}

// Dashboard returns the health snapshot over the last days, optionally for one SLI type.
func (s *SLOService) Dashboard(ctx context.Context, days int, sliType string) (models.DashboardSnapshot, error) {
	if s.dashboard == nil {
		return models.DashboardSnapshot{}, fmt.Errorf("dashboard not configured")
	}
	if days < 0 {
		return models.DashboardSnapshot{}, invalid("Dashboard", "days must not be negative")
	}
	if days == 0 {
		days = DefaultDashboardDays
	}
	var typ models.SLIType
	if strings.TrimSpace(sliType) != "" {
		parsed, err := models.ParseSLIType(sliType)
		if err != nil {
			return models.DashboardSnapshot{}, invalid("Dashboard", err.Error())
		}
		typ = parsed
	}
	return s.dashboard.Snapshot(ctx, days, typ)
}

// MeasurementHistory returns one SLO's measurements over the last days with summary statistics.
func (s *SLOService) MeasurementHistory(ctx context.Context, sloID string, days int) (models.MeasurementHistory, error) {
	if s.dashboard == nil {
		return models.MeasurementHistory{}, fmt.Errorf("dashboard not configured")
	}
	if strings.TrimSpace(sloID) == "" {
		return models.MeasurementHistory{}, invalid("MeasurementHistory", "slo id is required")
	}
	if days < 0 {
		return models.MeasurementHistory{}, invalid("MeasurementHistory", "days must not be negative")
	}
	if days == 0 {
		days = DefaultHistoryDays
	}
	return s.dashboard.History(ctx, sloID, days)
}

// ListAlerts returns alerts matching q, most recent first.
func (s *SLOService) ListAlerts(ctx context.Context, q AlertQuery) ([]models.SLOAlert, error) {
	filter := models.AlertFilter{
		SLODefinitionID: strings.TrimSpace(q.SLOID),
		UnresolvedOnly:  q.UnresolvedOnly,
		Limit:           q.Limit,
	}
	if sev := strings.ToLower(strings.TrimSpace(q.Severity)); sev != "" {
		switch models.Severity(sev) {
		case models.SeverityInfo, models.SeverityWarning, models.SeverityCritical:
			filter.Severity = models.Severity(sev)
		default:
			return nil, invalid("ListAlerts", fmt.Sprintf("unknown severity %q", q.Severity))
		}
	}
	if q.SinceDays < 0 || q.Limit < 0 {
		return nil, invalid("ListAlerts", "sinceDays and limit must not be negative")
	}
	if q.SinceDays > 0 {
		filter.Since = models.LastDays(s.clock(), q.SinceDays).Start
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultAlertLimit
	}
	return s.store.ListAlerts(ctx, filter)
}

// ListSLOs returns the catalogue, optionally only active entries.
func (s *SLOService) ListSLOs(ctx context.Context, activeOnly bool) ([]models.SLODefinition, error) {
	return s.store.ListDefinitions(ctx, activeOnly)
}

// SetSLOActive enables or disables an SLO for batch runs and the dashboard.
func (s *SLOService) SetSLOActive(ctx context.Context, sloID string, active bool) error {
	if strings.TrimSpace(sloID) == "" {
		return invalid("SetSLOActive", "slo id is required")
	}
	if err := s.store.SetActive(ctx, sloID, active); err != nil {
		return err
	}
	s.logger.Info("slo activation changed", slog.String("slo_id", sloID), slog.Bool("active", active))
	return nil
}

// Ready reports whether the backing store answers.
func (s *SLOService) Ready(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("store not configured")
	}
	return s.store.Ping(ctx)
}

// ErrorKind groups errors by how transports should report them.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalid
	KindNotFound
	KindConflict
	KindUnavailable
)

// Classify maps an error from the service onto a transport-neutral kind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, utils.ErrInvalidInput), errors.Is(err, utils.ErrInvalidID), errors.Is(err, engine.ErrUnsupportedSLIType):
		return KindInvalid
	case errors.Is(err, utils.ErrNotFound):
		return KindNotFound
	case errors.Is(err, utils.ErrConflict):
		return KindConflict
	case errors.Is(err, engine.ErrBatchInProgress), errors.Is(err, context.DeadlineExceeded):
		return KindUnavailable
	default:
		return KindInternal
	}
}
