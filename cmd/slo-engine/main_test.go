package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apflow/ap-slo-engine/internal/api"
	"github.com/apflow/ap-slo-engine/internal/catalogue"
	"github.com/apflow/ap-slo-engine/internal/models"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("logging:\n  level: error\ndatabase:\n  path: %s\n", filepath.Join(dir, "slo.db"))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeValidationEvents(t *testing.T, passed, failed int) string {
	t.Helper()
	at := time.Now().UTC().Add(-time.Hour)
	events := make([]models.InvoiceEvent, 0, passed+failed)
	for i := 0; i < passed+failed; i++ {
		ok := i < passed
		validated := at
		events = append(events, models.InvoiceEvent{
			InvoiceID:        fmt.Sprintf("inv-%03d", i),
			Status:           "ready",
			ValidatedAt:      &validated,
			ValidationPassed: &ok,
		})
	}
	data, err := json.Marshal(events)
	if err != nil {
		t.Fatalf("marshal events: %v", err)
	}
	path := filepath.Join(t.TempDir(), "events.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write events: %v", err)
	}
	return path
}

func TestImportRunAndAlerts(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "events", "import", writeValidationEvents(t, 19, 1))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "imported 20") {
		t.Fatalf("unexpected import output %q", out)
	}

	out, err = execute(t, "--config", cfg, "run", "--period", "daily")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var batch api.BatchResult
	if err := json.Unmarshal([]byte(out), &batch); err != nil {
		t.Fatalf("decode batch: %v\n%s", err, out)
	}
	// Daily catalogue entries: validation, duplicate recall, approval latency, extraction.
	if batch.Processed != 4 || batch.Computed != 4 || batch.Failed != 0 {
		t.Fatalf("unexpected batch counts %+v", batch)
	}
	// 95% against a 95% target consumes the whole 5% budget.
	if batch.AlertsCreated != 2 {
		t.Fatalf("expected 2 alerts, got %d", batch.AlertsCreated)
	}

	validationID := catalogue.DefinitionID("Validation pass rate")
	out, err = execute(t, "--config", cfg, "alerts", "list", "--slo", validationID, "--open")
	if err != nil {
		t.Fatalf("alerts list: %v", err)
	}
	var list api.ListAlertsResponse
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	if len(list.Alerts) != 2 {
		t.Fatalf("expected 2 open alerts, got %d", len(list.Alerts))
	}

	if _, err := execute(t, "--config", cfg, "alerts", "ack", list.Alerts[0].ID, "--actor", "ap-lead"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if _, err := execute(t, "--config", cfg, "alerts", "ack", list.Alerts[0].ID, "--actor", "ap-lead"); err == nil {
		t.Fatalf("expected second ack to fail")
	}
	if _, err := execute(t, "--config", cfg, "alerts", "resolve", list.Alerts[0].ID, "--notes", "vendor template fixed"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	out, err = execute(t, "--config", cfg, "history", validationID, "--days", "2")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var hist api.MeasurementHistory
	if err := json.Unmarshal([]byte(out), &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if hist.Summary.Count != 1 || hist.Summary.LatestAchieved != 95 {
		t.Fatalf("unexpected history summary %+v", hist.Summary)
	}

	out, err = execute(t, "--config", cfg, "dashboard", "--days", "2")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	var snap api.DashboardSnapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if snap.Summary.TotalSLOs != 7 || snap.Summary.CriticalSLOs != 1 || snap.Summary.OpenAlerts != 1 {
		t.Fatalf("unexpected dashboard summary %+v", snap.Summary)
	}
}

func TestSLOToggle(t *testing.T) {
	cfg := writeConfig(t)
	id := catalogue.DefinitionID("Duplicate recall")

	if _, err := execute(t, "--config", cfg, "slo", "disable", id); err != nil {
		t.Fatalf("disable: %v", err)
	}
	out, err := execute(t, "--config", cfg, "slo", "list", "--active")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var list api.ListSLOsResponse
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode slos: %v", err)
	}
	if len(list.SLOs) != 6 {
		t.Fatalf("expected 6 active slos, got %d", len(list.SLOs))
	}
	for _, s := range list.SLOs {
		if s.ID == id {
			t.Fatalf("disabled slo still listed as active")
		}
	}

	if _, err := execute(t, "--config", cfg, "slo", "enable", "not-an-id"); err == nil {
		t.Fatalf("expected error for malformed id")
	}
}

func TestCatalogueValidate(t *testing.T) {
	out, err := execute(t, "catalogue", "validate", filepath.Join("..", "..", "internal", "catalogue", "default.yaml"))
	if err != nil {
		t.Fatalf("validate default: %v", err)
	}
	if !strings.Contains(out, "7 SLO definition(s) valid") {
		t.Fatalf("unexpected output %q", out)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("slos:\n  - name: Broken\n    target: 5\n"), 0o644); err != nil {
		t.Fatalf("write catalogue: %v", err)
	}
	if _, err := execute(t, "catalogue", "validate", bad); err == nil {
		t.Fatalf("expected validation failure")
	}
}
