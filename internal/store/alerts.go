package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/apflow/ap-slo-engine/internal/models"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

const alertColumns = `id, slo_definition_id, measurement_id, alert_type, severity, title, message,
	current_value, target_value, breached_at, acknowledged_at, acknowledged_by,
	resolved_at, resolution_notes, created_at`

// SaveAlerts writes alerts in one transaction, filling IDs and creation times in place.
func (s *Store) SaveAlerts(ctx context.Context, alerts []models.SLOAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save alerts: %w", err)
	}
	defer tx.Rollback()

	for i := range alerts {
		a := &alerts[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = s.now()
		}
		if a.BreachedAt.IsZero() {
			a.BreachedAt = a.CreatedAt
		}
		if err := checkID("slo", a.SLODefinitionID); err != nil {
			return err
		}
		var measurementID sql.NullString
		if a.MeasurementID != "" {
			measurementID = sql.NullString{String: a.MeasurementID, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO slo_alerts (`+alertColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.SLODefinitionID, measurementID, a.AlertType, string(a.Severity), a.Title, a.Message,
			a.CurrentValue, a.TargetValue, utils.FormatDBTime(a.BreachedAt),
			formatNullTime(a.AcknowledgedAt), nullString(a.AcknowledgedBy),
			formatNullTime(a.ResolvedAt), nullString(a.ResolutionNotes), utils.FormatDBTime(a.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert %s alert for slo %s: %w", a.AlertType, a.SLODefinitionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit alerts: %w", err)
	}
	return nil
}

// GetAlert loads one alert by id.
func (s *Store) GetAlert(ctx context.Context, id string) (models.SLOAlert, error) {
	if err := checkID("alert", id); err != nil {
		return models.SLOAlert{}, err
	}
	return getAlert(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAlert(ctx context.Context, q queryRower, id string) (models.SLOAlert, error) {
	row := q.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM slo_alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SLOAlert{}, notFound("alert", id)
	}
	return a, err
}

// ListAlerts returns alerts matching filter, most recently breached first.
func (s *Store) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.SLOAlert, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.SLODefinitionID != "" {
		if err := checkID("slo", filter.SLODefinitionID); err != nil {
			return nil, err
		}
		clauses = append(clauses, "slo_definition_id = ?")
		args = append(args, filter.SLODefinitionID)
	}
	if filter.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.UnresolvedOnly {
		clauses = append(clauses, "resolved_at IS NULL")
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "breached_at >= ?")
		args = append(args, utils.FormatDBTime(filter.Since))
	}

	query := `SELECT ` + alertColumns + ` FROM slo_alerts`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY breached_at DESC, created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	out := make([]models.SLOAlert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Acknowledge marks an open alert as seen by actor. Acknowledging an alert that
// is already acknowledged or resolved is a conflict.
func (s *Store) Acknowledge(ctx context.Context, id, actor string) (models.SLOAlert, error) {
	return s.transition(ctx, id, func(a *models.SLOAlert) error {
		switch a.State() {
		case models.AlertResolved:
			return fmt.Errorf("alert %s already resolved: %w", id, utils.ErrConflict)
		case models.AlertAcknowledged:
			return fmt.Errorf("alert %s already acknowledged: %w", id, utils.ErrConflict)
		}
		now := s.now()
		a.AcknowledgedAt = &now
		a.AcknowledgedBy = actor
		return nil
	})
}

// Resolve closes an alert from either the open or acknowledged state.
func (s *Store) Resolve(ctx context.Context, id, notes string) (models.SLOAlert, error) {
	return s.transition(ctx, id, func(a *models.SLOAlert) error {
		if a.State() == models.AlertResolved {
			return fmt.Errorf("alert %s already resolved: %w", id, utils.ErrConflict)
		}
		now := s.now()
		a.ResolvedAt = &now
		a.ResolutionNotes = notes
		return nil
	})
}

// transition loads, mutates and writes back the lifecycle fields in one transaction.
func (s *Store) transition(ctx context.Context, id string, apply func(*models.SLOAlert) error) (models.SLOAlert, error) {
	if err := checkID("alert", id); err != nil {
		return models.SLOAlert{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.SLOAlert{}, fmt.Errorf("begin alert transition: %w", err)
	}
	defer tx.Rollback()

	alert, err := getAlert(ctx, tx, id)
	if err != nil {
		return models.SLOAlert{}, err
	}
	if err := apply(&alert); err != nil {
		return models.SLOAlert{}, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE slo_alerts SET acknowledged_at = ?, acknowledged_by = ?, resolved_at = ?, resolution_notes = ?
		WHERE id = ?`,
		formatNullTime(alert.AcknowledgedAt), nullString(alert.AcknowledgedBy),
		formatNullTime(alert.ResolvedAt), nullString(alert.ResolutionNotes), id,
	)
	if err != nil {
		return models.SLOAlert{}, fmt.Errorf("update alert %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return models.SLOAlert{}, fmt.Errorf("commit alert transition: %w", err)
	}
	return alert, nil
}

func scanAlert(row rowScanner) (models.SLOAlert, error) {
	var (
		a                         models.SLOAlert
		measurementID, ackBy, res sql.NullString
		ackAt, resolvedAt         sql.NullString
		severity                  string
		breached, created         string
	)
	err := row.Scan(&a.ID, &a.SLODefinitionID, &measurementID, &a.AlertType, &severity, &a.Title, &a.Message,
		&a.CurrentValue, &a.TargetValue, &breached, &ackAt, &ackBy, &resolvedAt, &res, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("scan alert: %w", err)
	}
	a.MeasurementID = measurementID.String
	a.Severity = models.Severity(severity)
	a.AcknowledgedBy = ackBy.String
	a.ResolutionNotes = res.String
	if a.BreachedAt, err = utils.ParseDBTime(breached); err != nil {
		return a, err
	}
	if a.CreatedAt, err = utils.ParseDBTime(created); err != nil {
		return a, err
	}
	if a.AcknowledgedAt, err = parseNullTime(ackAt); err != nil {
		return a, err
	}
	if a.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
		return a, err
	}
	return a, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
