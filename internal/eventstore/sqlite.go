package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/apflow/ap-slo-engine/internal/models"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

// kindQuery maps a kind to its window column and the columns that must be non-null.
var kindQuery = map[EventKind]struct {
	column   string
	required []string
}{
	KindReady:      {column: "ready_at", required: []string{"received_at"}},
	KindValidation: {column: "validated_at", required: []string{"validation_passed"}},
	KindApproval:   {column: "approved_at", required: []string{"approval_requested_at"}},
	KindProcessing: {column: "received_at", required: []string{"status"}},
	KindExtraction: {column: "extracted_at", required: []string{"extraction_confidence"}},
}

const eventColumns = `invoice_id, status, received_at, ready_at, validated_at, validation_passed,
	approval_requested_at, approved_at, extracted_at, extraction_confidence, updated_at`

// SQLSource reads invoice outcomes from the invoice_events table written by the
// invoice pipeline. It shares the engine's SQLite database.
type SQLSource struct {
	db *sql.DB
}

// NewSQLSource ensures the invoice_events table exists and returns a Source over it.
func NewSQLSource(db *sql.DB) (*SQLSource, error) {
	s := &SQLSource{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate invoice_events: %w", err)
	}
	return s, nil
}

func (s *SQLSource) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS invoice_events (
			invoice_id TEXT PRIMARY KEY,
			status TEXT,
			received_at TEXT,
			ready_at TEXT,
			validated_at TEXT,
			validation_passed INTEGER,
			approval_requested_at TEXT,
			approved_at TEXT,
			extracted_at TEXT,
			extraction_confidence REAL,
			updated_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_invoice_events_ready ON invoice_events(ready_at);
		CREATE INDEX IF NOT EXISTS idx_invoice_events_validated ON invoice_events(validated_at);
		CREATE INDEX IF NOT EXISTS idx_invoice_events_approved ON invoice_events(approved_at);
		CREATE INDEX IF NOT EXISTS idx_invoice_events_received ON invoice_events(received_at);
		CREATE INDEX IF NOT EXISTS idx_invoice_events_extracted ON invoice_events(extracted_at);
	`)
	return err
}

// FetchEvents implements Source.
func (s *SQLSource) FetchEvents(ctx context.Context, kind EventKind, start, end time.Time) ([]models.InvoiceEvent, error) {
	q, ok := kindQuery[kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	query := fmt.Sprintf("SELECT %s FROM invoice_events WHERE %s >= ? AND %s < ?", eventColumns, q.column, q.column)
	for _, col := range q.required {
		query += fmt.Sprintf(" AND %s IS NOT NULL", col)
	}
	query += fmt.Sprintf(" ORDER BY %s", q.column)

	rows, err := s.db.QueryContext(ctx, query, utils.FormatDBTime(start), utils.FormatDBTime(end))
	if err != nil {
		return nil, fmt.Errorf("query %s events: %w", kind, err)
	}
	defer rows.Close()

	events := make([]models.InvoiceEvent, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Record upserts one invoice outcome. The invoice pipeline owns this table;
// the engine only writes to it when seeding local or test data.
func (s *SQLSource) Record(ctx context.Context, e models.InvoiceEvent) error {
	if e.InvoiceID == "" {
		return fmt.Errorf("invoice_id is required")
	}
	var passed sql.NullInt64
	if e.ValidationPassed != nil {
		passed = sql.NullInt64{Valid: true}
		if *e.ValidationPassed {
			passed.Int64 = 1
		}
	}
	var confidence sql.NullFloat64
	if e.ExtractionConfidence != nil {
		confidence = sql.NullFloat64{Float64: *e.ExtractionConfidence, Valid: true}
	}
	var status sql.NullString
	if e.Status != "" {
		status = sql.NullString{String: e.Status, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoice_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(invoice_id) DO UPDATE SET
			status = excluded.status,
			received_at = excluded.received_at,
			ready_at = excluded.ready_at,
			validated_at = excluded.validated_at,
			validation_passed = excluded.validation_passed,
			approval_requested_at = excluded.approval_requested_at,
			approved_at = excluded.approved_at,
			extracted_at = excluded.extracted_at,
			extraction_confidence = excluded.extraction_confidence,
			updated_at = excluded.updated_at`,
		e.InvoiceID, status, nullTime(e.ReceivedAt), nullTime(e.ReadyAt), nullTime(e.ValidatedAt), passed,
		nullTime(e.ApprovalRequestedAt), nullTime(e.ApprovedAt), nullTime(e.ExtractedAt), confidence, nullTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("record invoice event %s: %w", e.InvoiceID, err)
	}
	return nil
}

func scanEvent(rows *sql.Rows) (models.InvoiceEvent, error) {
	var (
		e          models.InvoiceEvent
		status     sql.NullString
		passed     sql.NullInt64
		confidence sql.NullFloat64
	)
	var received, ready, validated, requested, approved, extracted, updated sql.NullString
	if err := rows.Scan(&e.InvoiceID, &status, &received, &ready, &validated, &passed,
		&requested, &approved, &extracted, &confidence, &updated); err != nil {
		return models.InvoiceEvent{}, fmt.Errorf("scan invoice event: %w", err)
	}
	e.Status = status.String
	if passed.Valid {
		v := passed.Int64 != 0
		e.ValidationPassed = &v
	}
	if confidence.Valid {
		v := confidence.Float64
		e.ExtractionConfidence = &v
	}
	targets := []struct {
		raw sql.NullString
		dst **time.Time
	}{
		{received, &e.ReceivedAt},
		{ready, &e.ReadyAt},
		{validated, &e.ValidatedAt},
		{requested, &e.ApprovalRequestedAt},
		{approved, &e.ApprovedAt},
		{extracted, &e.ExtractedAt},
		{updated, &e.UpdatedAt},
	}
	for _, t := range targets {
		if !t.raw.Valid {
			continue
		}
		parsed, err := utils.ParseDBTime(t.raw.String)
		if err != nil {
			return models.InvoiceEvent{}, err
		}
		*t.dst = &parsed
	}
	return e, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: utils.FormatDBTime(*t), Valid: true}
}
