package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apflow/ap-slo-engine/internal/models"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

const measurementColumns = `id, slo_definition_id, period_start, period_end, actual_value, target_value,
	achieved_percentage, good_events_count, total_events_count, error_budget_consumed, status, created_at`

// SaveMeasurements writes the batch in one transaction. Missing IDs and
// creation times are filled in place so callers can reference the rows.
func (s *Store) SaveMeasurements(ctx context.Context, measurements []models.SLIMeasurement) error {
	if len(measurements) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save measurements: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sli_measurements (`+measurementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare measurement insert: %w", err)
	}
	defer stmt.Close()

	for i := range measurements {
		m := &measurements[i]
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now()
		}
		if m.Status == "" {
			m.Status = models.MeasurementOK
		}
		if err := checkID("slo", m.SLODefinitionID); err != nil {
			return err
		}
		_, err := stmt.ExecContext(ctx,
			m.ID, m.SLODefinitionID, utils.FormatDBTime(m.PeriodStart), utils.FormatDBTime(m.PeriodEnd),
			m.ActualValue, m.TargetValue, m.AchievedPercentage, m.GoodEventsCount, m.TotalEventsCount,
			m.ErrorBudgetConsumed, string(m.Status), utils.FormatDBTime(m.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert measurement for slo %s: %w", m.SLODefinitionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit measurements: %w", err)
	}
	return nil
}

// GetMeasurement loads one measurement by id.
func (s *Store) GetMeasurement(ctx context.Context, id string) (models.SLIMeasurement, error) {
	if err := checkID("measurement", id); err != nil {
		return models.SLIMeasurement{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+measurementColumns+` FROM sli_measurements WHERE id = ?`, id)
	m, err := scanMeasurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SLIMeasurement{}, notFound("measurement", id)
	}
	return m, err
}

// LatestMeasurement returns the measurement with the greatest period end at or
// after since. It returns utils.ErrNotFound when the SLO has none in range.
func (s *Store) LatestMeasurement(ctx context.Context, sloID string, since time.Time) (models.SLIMeasurement, error) {
	if err := checkID("slo", sloID); err != nil {
		return models.SLIMeasurement{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+measurementColumns+` FROM sli_measurements
		WHERE slo_definition_id = ? AND period_end >= ?
		ORDER BY period_end DESC, created_at DESC
		LIMIT 1`, sloID, utils.FormatDBTime(since))
	m, err := scanMeasurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SLIMeasurement{}, fmt.Errorf("latest measurement for slo %s: %w", sloID, utils.ErrNotFound)
	}
	return m, err
}

// ListMeasurements returns measurements ending at or after since, oldest first.
func (s *Store) ListMeasurements(ctx context.Context, sloID string, since time.Time) ([]models.SLIMeasurement, error) {
	if err := checkID("slo", sloID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+measurementColumns+` FROM sli_measurements
		WHERE slo_definition_id = ? AND period_end >= ?
		ORDER BY period_end ASC, created_at ASC`, sloID, utils.FormatDBTime(since))
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	defer rows.Close()

	out := make([]models.SLIMeasurement, 0)
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMeasurement(row rowScanner) (models.SLIMeasurement, error) {
	var (
		m                   models.SLIMeasurement
		start, end, created string
		status              string
	)
	err := row.Scan(&m.ID, &m.SLODefinitionID, &start, &end, &m.ActualValue, &m.TargetValue,
		&m.AchievedPercentage, &m.GoodEventsCount, &m.TotalEventsCount, &m.ErrorBudgetConsumed,
		&status, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, err
		}
		return m, fmt.Errorf("scan measurement: %w", err)
	}
	m.Status = models.MeasurementStatus(status)
	if m.PeriodStart, err = utils.ParseDBTime(start); err != nil {
		return m, err
	}
	if m.PeriodEnd, err = utils.ParseDBTime(end); err != nil {
		return m, err
	}
	if m.CreatedAt, err = utils.ParseDBTime(created); err != nil {
		return m, err
	}
	return m, nil
}
