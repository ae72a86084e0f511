// Package indicators holds one calculation strategy per SLI type. Every strategy
// returns the same Result shape so the calculator can treat them uniformly.
package indicators

import (
	"github.com/apflow/ap-slo-engine/internal/eventstore"
	"github.com/apflow/ap-slo-engine/internal/models"
)

// Result is the uniform output of an indicator over one window.
type Result struct {
	Actual   float64
	Achieved float64
	Good     int
	Total    int
	Status   models.MeasurementStatus
}

// Indicator classifies events for one SLI type.
type Indicator interface {
	// Kind is the event family to query. Indicators that need no events return "".
	Kind() eventstore.EventKind
	Measure(def models.SLODefinition, events []models.InvoiceEvent) Result
}

// NoData is the sentinel for a window without qualifying events.
func NoData() Result {
	return Result{Status: models.MeasurementNoData}
}

// Registry maps SLI types to their indicator.
type Registry map[models.SLIType]Indicator

// DefaultRegistry wires every known SLI type.
func DefaultRegistry() Registry {
	return Registry{
		models.SLITimeToReady:             TimeToReady{},
		models.SLIValidationPassRate:      ValidationPassRate{},
		models.SLIApprovalLatency:         ApprovalLatency{},
		models.SLIProcessingSuccessRate:   ProcessingSuccessRate{},
		models.SLIExtractionAccuracy:      ExtractionAccuracy{},
		models.SLIDuplicateRecall:         NotImplemented{},
		models.SLIExceptionResolutionTime: NotImplemented{},
	}
}

// Lookup returns the indicator for t.
func (r Registry) Lookup(t models.SLIType) (Indicator, bool) {
	ind, ok := r[t]
	return ind, ok
}

// complete drops events missing the fields kind needs.
func complete(kind eventstore.EventKind, events []models.InvoiceEvent) []models.InvoiceEvent {
	out := make([]models.InvoiceEvent, 0, len(events))
	for _, e := range events {
		if kind.Complete(e) {
			out = append(out, e)
		}
	}
	return out
}

func ratio(good, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(good) / float64(total) * 100
}
