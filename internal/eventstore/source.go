package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/apflow/ap-slo-engine/internal/models"
)

// EventKind selects which invoice stage an indicator reads. Each kind names the
// timestamp that places an event in a window and the fields that must be present.
type EventKind string

const (
	KindReady      EventKind = "ready"
	KindValidation EventKind = "validation"
	KindApproval   EventKind = "approval"
	KindProcessing EventKind = "processing"
	KindExtraction EventKind = "extraction"
)

// Kinds lists every queryable kind.
var Kinds = []EventKind{KindReady, KindValidation, KindApproval, KindProcessing, KindExtraction}

// Source is the read-only view over historical invoice outcomes.
// FetchEvents returns events whose relevant timestamp lies in [start, end) and
// whose relevant fields are non-null; an empty window yields an empty slice.
type Source interface {
	FetchEvents(ctx context.Context, kind EventKind, start, end time.Time) ([]models.InvoiceEvent, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, kind EventKind, start, end time.Time) ([]models.InvoiceEvent, error)

// FetchEvents implements Source.
func (f SourceFunc) FetchEvents(ctx context.Context, kind EventKind, start, end time.Time) ([]models.InvoiceEvent, error) {
	return f(ctx, kind, start, end)
}

// Timestamp returns the event time that places e in a window for this kind.
func (k EventKind) Timestamp(e models.InvoiceEvent) *time.Time {
	switch k {
	case KindReady:
		return e.ReadyAt
	case KindValidation:
		return e.ValidatedAt
	case KindApproval:
		return e.ApprovedAt
	case KindProcessing:
		return e.ReceivedAt
	case KindExtraction:
		return e.ExtractedAt
	default:
		return nil
	}
}

// Complete reports whether e carries every field this kind needs.
func (k EventKind) Complete(e models.InvoiceEvent) bool {
	if k.Timestamp(e) == nil {
		return false
	}
	switch k {
	case KindReady:
		return e.ReceivedAt != nil
	case KindValidation:
		return e.ValidationPassed != nil
	case KindApproval:
		return e.ApprovalRequestedAt != nil
	case KindProcessing:
		return e.Status != ""
	case KindExtraction:
		return e.ExtractionConfidence != nil
	default:
		return false
	}
}

// Validate rejects kinds the adapters do not know.
func (k EventKind) Validate() error {
	for _, known := range Kinds {
		if k == known {
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", k)
}

// Within keeps the events that are complete for kind and fall in [start, end).
func Within(kind EventKind, events []models.InvoiceEvent, start, end time.Time) []models.InvoiceEvent {
	out := make([]models.InvoiceEvent, 0, len(events))
	window := models.TimeRange{Start: start, End: end}
	for _, e := range events {
		if !kind.Complete(e) {
			continue
		}
		if window.Contains(*kind.Timestamp(e)) {
			out = append(out, e)
		}
	}
	return out
}
