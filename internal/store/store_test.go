package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/apflow/ap-slo-engine/internal/models"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

var fixedNow = time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "slo.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s.WithClock(func() time.Time { return fixedNow })
}

func testDefinition(name string, typ models.SLIType, period models.MeasurementPeriod) models.SLODefinition {
	return models.SLODefinition{
		ID:                          uuid.NewString(),
		Name:                        name,
		SLIType:                     typ,
		TargetValue:                 5,
		TargetUnit:                  "minutes",
		ErrorBudgetPercentage:       10,
		AlertingThresholdPercentage: 5,
		MeasurementPeriod:           period,
		BurnRateAlertThreshold:      2,
		IsActive:                    true,
	}
}

func seedDefinition(t *testing.T, s *Store, def models.SLODefinition) models.SLODefinition {
	t.Helper()
	if _, err := s.SyncDefinitions(context.Background(), []models.SLODefinition{def}); err != nil {
		t.Fatalf("sync definitions: %v", err)
	}
	return def
}

func TestSyncDefinitionsPreservesActivation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ready := testDefinition("Time to ready", models.SLITimeToReady, models.PeriodHourly)
	approval := testDefinition("Approval latency", models.SLIApprovalLatency, models.PeriodDaily)

	res, err := s.SyncDefinitions(ctx, []models.SLODefinition{ready, approval})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Inserted != 2 || res.Updated != 0 {
		t.Fatalf("unexpected sync result %+v", res)
	}

	if err := s.SetActive(ctx, ready.ID, false); err != nil {
		t.Fatalf("set active: %v", err)
	}

	ready.TargetValue = 7
	res, err = s.SyncDefinitions(ctx, []models.SLODefinition{ready})
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if res.Updated != 1 {
		t.Fatalf("expected one update, got %+v", res)
	}

	got, err := s.GetDefinition(ctx, ready.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TargetValue != 7 || got.IsActive {
		t.Fatalf("expected updated target and preserved inactive flag, got %+v", got)
	}

	active, err := s.ListDefinitions(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 || active[0].ID != approval.ID {
		t.Fatalf("unexpected active definitions: %+v", active)
	}
	all, err := s.ListDefinitions(ctx, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[0].Name != "Approval latency" {
		t.Fatalf("expected name ordering, got %+v", all)
	}
}

func TestDefinitionLookupErrors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetDefinition(ctx, "not-a-uuid"); !errors.Is(err, utils.ErrInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
	if _, err := s.GetDefinition(ctx, uuid.NewString()); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.SetActive(ctx, uuid.NewString(), true); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected not found on toggle, got %v", err)
	}
}

func TestMeasurementsRoundTripAndOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	def := seedDefinition(t, s, testDefinition("Time to ready", models.SLITimeToReady, models.PeriodHourly))

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	batch := []models.SLIMeasurement{
		{SLODefinitionID: def.ID, PeriodStart: base.Add(time.Hour), PeriodEnd: base.Add(2 * time.Hour), AchievedPercentage: 80, ErrorBudgetConsumed: 20, GoodEventsCount: 8, TotalEventsCount: 10},
		{SLODefinitionID: def.ID, PeriodStart: base, PeriodEnd: base.Add(time.Hour), AchievedPercentage: 60, ErrorBudgetConsumed: 40, GoodEventsCount: 6, TotalEventsCount: 10},
	}
	if err := s.SaveMeasurements(ctx, batch); err != nil {
		t.Fatalf("save: %v", err)
	}
	if batch[0].ID == "" || batch[1].ID == "" {
		t.Fatalf("expected ids to be assigned in place")
	}

	got, err := s.GetMeasurement(ctx, batch[1].ID)
	if err != nil {
		t.Fatalf("get measurement: %v", err)
	}
	if !got.PeriodStart.Equal(base) || got.GoodEventsCount != 6 || got.Status != models.MeasurementOK || !got.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected measurement %+v", got)
	}

	history, err := s.ListMeasurements(ctx, def.ID, base)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(history) != 2 || history[0].AchievedPercentage != 60 || history[1].AchievedPercentage != 80 {
		t.Fatalf("expected oldest first, got %+v", history)
	}

	latest, err := s.LatestMeasurement(ctx, def.ID, base)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != batch[0].ID {
		t.Fatalf("expected latest to be the later window, got %+v", latest)
	}

	if _, err := s.LatestMeasurement(ctx, def.ID, base.Add(48*time.Hour)); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected not found outside range, got %v", err)
	}
}

func TestAlertLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	def := seedDefinition(t, s, testDefinition("Validation pass rate", models.SLIValidationPassRate, models.PeriodDaily))

	alerts := []models.SLOAlert{{
		SLODefinitionID: def.ID,
		AlertType:       models.AlertErrorBudgetExhausted,
		Severity:        models.SeverityCritical,
		Title:           "budget exhausted",
		Message:         "consumed 40%",
		CurrentValue:    60,
		TargetValue:     95,
		BreachedAt:      fixedNow.Add(-time.Minute),
	}}
	if err := s.SaveAlerts(ctx, alerts); err != nil {
		t.Fatalf("save alerts: %v", err)
	}
	id := alerts[0].ID

	acked, err := s.Acknowledge(ctx, id, "oncall@example.com")
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if acked.State() != models.AlertAcknowledged || acked.AcknowledgedBy != "oncall@example.com" {
		t.Fatalf("unexpected acked alert %+v", acked)
	}
	if _, err := s.Acknowledge(ctx, id, "someone"); !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("expected conflict on double acknowledge, got %v", err)
	}

	resolved, err := s.Resolve(ctx, id, "scaled workers")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.State() != models.AlertResolved || resolved.ResolutionNotes != "scaled workers" {
		t.Fatalf("unexpected resolved alert %+v", resolved)
	}
	if _, err := s.Resolve(ctx, id, "again"); !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("expected conflict on double resolve, got %v", err)
	}
	if _, err := s.Acknowledge(ctx, id, "late"); !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("expected conflict acknowledging a resolved alert, got %v", err)
	}

	stored, err := s.GetAlert(ctx, id)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if stored.AcknowledgedAt == nil || !stored.AcknowledgedAt.Equal(fixedNow) || stored.ResolvedAt == nil {
		t.Fatalf("lifecycle timestamps not persisted: %+v", stored)
	}
}

func TestResolveWithoutAcknowledge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	def := seedDefinition(t, s, testDefinition("Approval latency", models.SLIApprovalLatency, models.PeriodDaily))
	alerts := []models.SLOAlert{{SLODefinitionID: def.ID, AlertType: models.AlertCriticalPerformance, Severity: models.SeverityCritical, Title: "t", Message: "m"}}
	if err := s.SaveAlerts(ctx, alerts); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Resolve(ctx, alerts[0].ID, "")
	if err != nil {
		t.Fatalf("resolve open alert: %v", err)
	}
	if got.AcknowledgedAt != nil || got.ResolvedAt == nil {
		t.Fatalf("unexpected state %+v", got)
	}
}

func TestAlertIdentifierErrors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.Acknowledge(ctx, "bogus", "me"); !errors.Is(err, utils.ErrInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
	if _, err := s.Resolve(ctx, uuid.NewString(), ""); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListAlertsFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := seedDefinition(t, s, testDefinition("A", models.SLITimeToReady, models.PeriodHourly))
	b := seedDefinition(t, s, testDefinition("B", models.SLIApprovalLatency, models.PeriodHourly))

	alerts := []models.SLOAlert{
		{SLODefinitionID: a.ID, AlertType: models.AlertBurnRateWarning, Severity: models.SeverityWarning, Title: "a1", Message: "m", BreachedAt: fixedNow.Add(-3 * time.Hour)},
		{SLODefinitionID: a.ID, AlertType: models.AlertCriticalPerformance, Severity: models.SeverityCritical, Title: "a2", Message: "m", BreachedAt: fixedNow.Add(-2 * time.Hour)},
		{SLODefinitionID: b.ID, AlertType: models.AlertCriticalPerformance, Severity: models.SeverityCritical, Title: "b1", Message: "m", BreachedAt: fixedNow.Add(-time.Hour)},
	}
	if err := s.SaveAlerts(ctx, alerts); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.Resolve(ctx, alerts[1].ID, "done"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	critical, err := s.ListAlerts(ctx, models.AlertFilter{Severity: models.SeverityCritical})
	if err != nil {
		t.Fatalf("list critical: %v", err)
	}
	if len(critical) != 2 || critical[0].Title != "b1" {
		t.Fatalf("expected most recent critical first, got %+v", critical)
	}

	open, err := s.ListAlerts(ctx, models.AlertFilter{SLODefinitionID: a.ID, UnresolvedOnly: true})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 || open[0].Title != "a1" {
		t.Fatalf("unexpected open alerts %+v", open)
	}

	limited, err := s.ListAlerts(ctx, models.AlertFilter{Limit: 1, Since: fixedNow.Add(-150 * time.Minute)})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Title != "b1" {
		t.Fatalf("unexpected limited alerts %+v", limited)
	}
}
