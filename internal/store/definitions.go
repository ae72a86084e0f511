package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/apflow/ap-slo-engine/internal/models"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

const definitionColumns = `id, name, description, sli_type, target_value, target_unit,
	error_budget_percentage, alerting_threshold_percentage, measurement_period,
	burn_rate_alert_threshold, is_active, created_at, updated_at`

// SyncResult reports what SyncDefinitions changed.
type SyncResult struct {
	Inserted int
	Updated  int
}

// SyncDefinitions upserts catalogue entries. New rows take IsActive from the
// definition; existing rows keep their stored activation flag so operator
// toggles survive a catalogue reload.
func (s *Store) SyncDefinitions(ctx context.Context, defs []models.SLODefinition) (SyncResult, error) {
	var result SyncResult
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin sync: %w", err)
	}
	defer tx.Rollback()

	now := utils.FormatDBTime(s.now())
	for _, def := range defs {
		if err := checkID("slo", def.ID); err != nil {
			return SyncResult{}, err
		}
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM slo_definitions WHERE id = ?`, def.ID).Scan(&exists)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, `
				INSERT INTO slo_definitions (`+definitionColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				def.ID, def.Name, def.Description, string(def.SLIType), def.TargetValue, def.TargetUnit,
				def.ErrorBudgetPercentage, def.AlertingThresholdPercentage, string(def.MeasurementPeriod),
				def.BurnRateAlertThreshold, boolToInt(def.IsActive), now, now,
			)
			if err != nil {
				return SyncResult{}, fmt.Errorf("insert slo %s: %w", def.Name, err)
			}
			result.Inserted++
		case err != nil:
			return SyncResult{}, fmt.Errorf("lookup slo %s: %w", def.Name, err)
		default:
			_, err = tx.ExecContext(ctx, `
				UPDATE slo_definitions SET
					name = ?, description = ?, sli_type = ?, target_value = ?, target_unit = ?,
					error_budget_percentage = ?, alerting_threshold_percentage = ?,
					measurement_period = ?, burn_rate_alert_threshold = ?, updated_at = ?
				WHERE id = ?`,
				def.Name, def.Description, string(def.SLIType), def.TargetValue, def.TargetUnit,
				def.ErrorBudgetPercentage, def.AlertingThresholdPercentage, string(def.MeasurementPeriod),
				def.BurnRateAlertThreshold, now, def.ID,
			)
			if err != nil {
				return SyncResult{}, fmt.Errorf("update slo %s: %w", def.Name, err)
			}
			result.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return SyncResult{}, fmt.Errorf("commit sync: %w", err)
	}
	return result, nil
}

// ListDefinitions returns catalogue entries ordered by name.
func (s *Store) ListDefinitions(ctx context.Context, activeOnly bool) ([]models.SLODefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM slo_definitions`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list slo definitions: %w", err)
	}
	defer rows.Close()

	defs := make([]models.SLODefinition, 0)
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// GetDefinition loads one catalogue entry.
func (s *Store) GetDefinition(ctx context.Context, id string) (models.SLODefinition, error) {
	if err := checkID("slo", id); err != nil {
		return models.SLODefinition{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM slo_definitions WHERE id = ?`, id)
	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SLODefinition{}, notFound("slo", id)
	}
	return def, err
}

// SetActive toggles whether batch runs and the dashboard consider the SLO.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	if err := checkID("slo", id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE slo_definitions SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), utils.FormatDBTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("set slo %s active: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("slo", id)
	}
	return nil
}

func scanDefinition(row rowScanner) (models.SLODefinition, error) {
	var (
		def              models.SLODefinition
		sliType, period  string
		active           int
		created, updated string
	)
	err := row.Scan(&def.ID, &def.Name, &def.Description, &sliType, &def.TargetValue, &def.TargetUnit,
		&def.ErrorBudgetPercentage, &def.AlertingThresholdPercentage, &period,
		&def.BurnRateAlertThreshold, &active, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, err
		}
		return def, fmt.Errorf("scan slo definition: %w", err)
	}
	def.SLIType = models.SLIType(sliType)
	def.MeasurementPeriod = models.MeasurementPeriod(period)
	def.IsActive = active != 0
	if def.CreatedAt, err = utils.ParseDBTime(created); err != nil {
		return def, err
	}
	if def.UpdatedAt, err = utils.ParseDBTime(updated); err != nil {
		return def, err
	}
	return def, nil
}
