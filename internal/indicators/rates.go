package indicators

import (
	"strings"

	"github.com/apflow/ap-slo-engine/internal/eventstore"
	"github.com/apflow/ap-slo-engine/internal/models"
)

// ValidationPassRate is the share of validated invoices that passed.
type ValidationPassRate struct{}

// Kind implements Indicator.
func (ValidationPassRate) Kind() eventstore.EventKind { return eventstore.KindValidation }

// Measure implements Indicator.
func (ValidationPassRate) Measure(_ models.SLODefinition, events []models.InvoiceEvent) Result {
	return measureRate(eventstore.KindValidation, events, func(e models.InvoiceEvent) bool {
		return *e.ValidationPassed
	})
}

// SuccessfulStatuses are the terminal invoice statuses counted as processed.
var SuccessfulStatuses = map[string]struct{}{
	"ready":  {},
	"staged": {},
	"done":   {},
}

// ProcessingSuccessRate is the share of received invoices that reached a successful status.
type ProcessingSuccessRate struct{}

// Kind implements Indicator.
func (ProcessingSuccessRate) Kind() eventstore.EventKind { return eventstore.KindProcessing }

// Measure implements Indicator.
func (ProcessingSuccessRate) Measure(_ models.SLODefinition, events []models.InvoiceEvent) Result {
	return measureRate(eventstore.KindProcessing, events, func(e models.InvoiceEvent) bool {
		_, ok := SuccessfulStatuses[strings.ToLower(e.Status)]
		return ok
	})
}

// measureRate reports the percentage of events satisfying good; Actual equals Achieved.
func measureRate(kind eventstore.EventKind, events []models.InvoiceEvent, good func(models.InvoiceEvent) bool) Result {
	events = complete(kind, events)
	if len(events) == 0 {
		return NoData()
	}
	count := 0
	for _, e := range events {
		if good(e) {
			count++
		}
	}
	pct := ratio(count, len(events))
	return Result{
		Actual:   pct,
		Achieved: pct,
		Good:     count,
		Total:    len(events),
		Status:   models.MeasurementOK,
	}
}
