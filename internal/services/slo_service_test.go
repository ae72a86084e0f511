package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/apflow/ap-slo-engine/internal/dashboard"
	"github.com/apflow/ap-slo-engine/internal/engine"
	"github.com/apflow/ap-slo-engine/internal/eventstore"
	"github.com/apflow/ap-slo-engine/internal/models"
	"github.com/apflow/ap-slo-engine/internal/store"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

var now = time.Date(2026, 5, 3, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func ptrTime(t time.Time) *time.Time { return &t }

type fixture struct {
	svc   *SLOService
	store *store.Store
	ready models.SLODefinition
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	st.WithClock(clock)

	ready := models.SLODefinition{
		ID:                          uuid.NewString(),
		Name:                        "Time to ready",
		SLIType:                     models.SLITimeToReady,
		TargetValue:                 5,
		ErrorBudgetPercentage:       10,
		AlertingThresholdPercentage: 5,
		MeasurementPeriod:           models.PeriodHourly,
		IsActive:                    true,
	}
	if _, err := st.SyncDefinitions(context.Background(), []models.SLODefinition{ready}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// Two of three invoices are slow: 33% achieved raises all three alerts.
	source := eventstore.SourceFunc(func(_ context.Context, _ eventstore.EventKind, start, _ time.Time) ([]models.InvoiceEvent, error) {
		return []models.InvoiceEvent{
			{InvoiceID: "fast", ReceivedAt: ptrTime(start), ReadyAt: ptrTime(start.Add(time.Minute))},
			{InvoiceID: "slow", ReceivedAt: ptrTime(start), ReadyAt: ptrTime(start.Add(20 * time.Minute))},
			{InvoiceID: "slower", ReceivedAt: ptrTime(start), ReadyAt: ptrTime(start.Add(30 * time.Minute))},
		}, nil
	})

	logger := utils.DiscardLogger()
	calc := engine.NewCalculator(logger, source, nil, time.Second).WithClock(clock)
	eval := engine.NewEvaluator(logger, st, 50).WithClock(clock)
	runner := engine.NewRunner(logger, st, st, calc, eval, nil, time.Minute).WithClock(clock)
	agg := dashboard.NewAggregator(logger, st, 50, 10, 0).WithClock(clock)
	svc := NewSLOService(logger, st, runner, agg)
	svc.clock = clock
	return fixture{svc: svc, store: st, ready: ready}
}

func TestRunMeasurementsEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.RunMeasurements(ctx, "Hourly", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Computed != 1 || res.AlertsCreated != 3 {
		t.Fatalf("unexpected batch result %+v", res)
	}

	snap, err := f.svc.Dashboard(ctx, 0, "")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if snap.Summary.CriticalSLOs != 1 || snap.Summary.OpenAlerts != 3 || len(snap.RecentCriticalAlerts) != 2 {
		t.Fatalf("unexpected snapshot %+v", snap.Summary)
	}

	hist, err := f.svc.MeasurementHistory(ctx, f.ready.ID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if hist.Summary.Count != 1 || !hist.Range.Start.Equal(now.Add(-DefaultHistoryDays*24*time.Hour)) {
		t.Fatalf("unexpected history %+v", hist)
	}
}

func TestAlertLifecycleThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	result, err := f.svc.CalculateSLO(ctx, f.ready.ID, 1)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(result.Alerts) == 0 {
		t.Fatalf("expected alerts")
	}
	id := result.Alerts[0].ID

	if _, err := f.svc.AcknowledgeAlert(ctx, id, "  "); Classify(err) != KindInvalid {
		t.Fatalf("expected invalid for blank actor, got %v", err)
	}
	if _, err := f.svc.AcknowledgeAlert(ctx, id, "ops"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if _, err := f.svc.AcknowledgeAlert(ctx, id, "ops"); Classify(err) != KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := f.svc.ResolveAlert(ctx, id, "fixed"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	open, err := f.svc.ListAlerts(ctx, AlertQuery{SLOID: f.ready.ID, UnresolvedOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != len(result.Alerts)-1 {
		t.Fatalf("expected %d open alerts, got %d", len(result.Alerts)-1, len(open))
	}
}

func TestServiceValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
		want ErrorKind
	}{
		{"bad period", func() error { _, err := f.svc.RunMeasurements(ctx, "yearly", 0); return err }, KindInvalid},
		{"negative hours", func() error { _, err := f.svc.RunMeasurements(ctx, "daily", -1); return err }, KindInvalid},
		{"bad sli type", func() error { _, err := f.svc.Dashboard(ctx, 1, "throughput"); return err }, KindInvalid},
		{"bad severity", func() error { _, err := f.svc.ListAlerts(ctx, AlertQuery{Severity: "loud"}); return err }, KindInvalid},
		{"malformed alert id", func() error { _, err := f.svc.ResolveAlert(ctx, "abc", ""); return err }, KindInvalid},
		{"missing alert", func() error { _, err := f.svc.ResolveAlert(ctx, uuid.NewString(), ""); return err }, KindNotFound},
		{"missing slo", func() error { _, err := f.svc.CalculateSLO(ctx, uuid.NewString(), 0); return err }, KindNotFound},
		{"toggle missing slo", func() error { return f.svc.SetSLOActive(ctx, uuid.NewString(), false) }, KindNotFound},
	}
	for _, tc := range cases {
		if got := Classify(tc.call()); got != tc.want {
			t.Fatalf("%s: expected kind %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestSetSLOActiveHidesFromRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.SetSLOActive(ctx, f.ready.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	res, err := f.svc.RunMeasurements(ctx, "hourly", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Processed != 0 {
		t.Fatalf("disabled slo should not be processed, got %+v", res)
	}
	active, err := f.svc.ListSLOs(ctx, true)
	if err != nil || len(active) != 0 {
		t.Fatalf("expected no active slos, got %v (%v)", active, err)
	}
}

func TestClassify(t *testing.T) {
	cases := map[error]ErrorKind{
		fmt.Errorf("wrap: %w", engine.ErrBatchInProgress):    KindUnavailable,
		fmt.Errorf("wrap: %w", engine.ErrUnsupportedSLIType): KindInvalid,
		fmt.Errorf("wrap: %w", utils.ErrConflict):            KindConflict,
		errors.New("boom"):                                    KindInternal,
	}
	for err, want := range cases {
		if got := Classify(err); got != want {
			t.Fatalf("%v: expected %d, got %d", err, want, got)
		}
	}
}
