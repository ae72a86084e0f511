// Package store persists the SLO catalogue, computed measurements and alerts in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/apflow/ap-slo-engine/internal/models"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

// AlertWriter persists alerts raised by the evaluator.
type AlertWriter interface {
	SaveAlerts(ctx context.Context, alerts []models.SLOAlert) error
}

// MeasurementWriter persists computed measurements.
type MeasurementWriter interface {
	SaveMeasurements(ctx context.Context, measurements []models.SLIMeasurement) error
}

// Store is the SQLite-backed measurement, alert and catalogue store.
type Store struct {
	db  *sql.DB
	now utils.Clock
}

// Open creates (if needed) and migrates the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if strings.HasPrefix(path, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(home, path[1:])
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: utils.SystemClock}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// WithClock overrides the clock used for created/updated timestamps.
func (s *Store) WithClock(clock utils.Clock) *Store {
	if clock != nil {
		s.now = clock
	}
	return s
}

// DB exposes the handle so the SQLite event source can share the file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS slo_definitions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			sli_type TEXT NOT NULL,
			target_value REAL NOT NULL,
			target_unit TEXT NOT NULL DEFAULT '',
			error_budget_percentage REAL NOT NULL,
			alerting_threshold_percentage REAL NOT NULL,
			measurement_period TEXT NOT NULL,
			burn_rate_alert_threshold REAL NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sli_measurements (
			id TEXT PRIMARY KEY,
			slo_definition_id TEXT NOT NULL,
			period_start TEXT NOT NULL,
			period_end TEXT NOT NULL,
			actual_value REAL NOT NULL,
			target_value REAL NOT NULL,
			achieved_percentage REAL NOT NULL,
			good_events_count INTEGER NOT NULL,
			total_events_count INTEGER NOT NULL,
			error_budget_consumed REAL NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (slo_definition_id) REFERENCES slo_definitions(id)
		);

		CREATE TABLE IF NOT EXISTS slo_alerts (
			id TEXT PRIMARY KEY,
			slo_definition_id TEXT NOT NULL,
			measurement_id TEXT,
			alert_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			current_value REAL NOT NULL,
			target_value REAL NOT NULL,
			breached_at TEXT NOT NULL,
			acknowledged_at TEXT,
			acknowledged_by TEXT,
			resolved_at TEXT,
			resolution_notes TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY (slo_definition_id) REFERENCES slo_definitions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_measurements_slo_end ON sli_measurements(slo_definition_id, period_end);
		CREATE INDEX IF NOT EXISTS idx_alerts_slo_resolved ON slo_alerts(slo_definition_id, resolved_at);
		CREATE INDEX IF NOT EXISTS idx_alerts_breached ON slo_alerts(breached_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// checkID rejects identifiers that are not UUIDs.
func checkID(kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s id %q: %w", kind, id, utils.ErrInvalidID)
	}
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, utils.ErrNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func parseNullTime(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	t, err := utils.ParseDBTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: utils.FormatDBTime(*t), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
