package models

import "time"

// InvoiceEvent is one invoice-level outcome record read from the event store.
// Stage timestamps and outcome fields are optional; each indicator only reads
// the fields it needs and skips records where they are missing.
type InvoiceEvent struct {
	InvoiceID            string     `json:"invoice_id"`
	Status               string     `json:"status,omitempty"`
	ReceivedAt           *time.Time `json:"received_at,omitempty"`
	ReadyAt              *time.Time `json:"ready_at,omitempty"`
	ValidatedAt          *time.Time `json:"validated_at,omitempty"`
	ValidationPassed     *bool      `json:"validation_passed,omitempty"`
	ApprovalRequestedAt  *time.Time `json:"approval_requested_at,omitempty"`
	ApprovedAt           *time.Time `json:"approved_at,omitempty"`
	ExtractedAt          *time.Time `json:"extracted_at,omitempty"`
	ExtractionConfidence *float64   `json:"extraction_confidence,omitempty"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty"`
}
