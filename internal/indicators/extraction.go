package indicators

import (
	"github.com/apflow/ap-slo-engine/internal/eventstore"
	"github.com/apflow/ap-slo-engine/internal/models"
)

// ExtractionAccuracy compares mean extraction confidence with the target confidence.
// Achieved is not capped: beating the target yields more than 100.
type ExtractionAccuracy struct{}

// Kind implements Indicator.
func (ExtractionAccuracy) Kind() eventstore.EventKind { return eventstore.KindExtraction }

// Measure implements Indicator.
func (ExtractionAccuracy) Measure(def models.SLODefinition, events []models.InvoiceEvent) Result {
	events = complete(eventstore.KindExtraction, events)
	if len(events) == 0 || def.TargetValue <= 0 {
		return NoData()
	}

	sum := 0.0
	good := 0
	for _, e := range events {
		sum += *e.ExtractionConfidence
		if *e.ExtractionConfidence >= def.TargetValue {
			good++
		}
	}
	mean := sum / float64(len(events))
	return Result{
		Actual:   mean,
		Achieved: mean / def.TargetValue * 100,
		Good:     good,
		Total:    len(events),
		Status:   models.MeasurementOK,
	}
}

// NotImplemented stands in for SLI types without a calculation yet. It never
// queries events and always yields a zero measurement tagged not_implemented.
type NotImplemented struct{}

// Kind implements Indicator.
func (NotImplemented) Kind() eventstore.EventKind { return "" }

// Measure implements Indicator.
func (NotImplemented) Measure(models.SLODefinition, []models.InvoiceEvent) Result {
	return Result{Status: models.MeasurementNotImplemented}
}
