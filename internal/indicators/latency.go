package indicators

import (
	"time"

	"github.com/apflow/ap-slo-engine/internal/eventstore"
	"github.com/apflow/ap-slo-engine/internal/models"
)

// TimeToReady measures receipt-to-ready duration against a target in minutes.
type TimeToReady struct{}

// Kind implements Indicator.
func (TimeToReady) Kind() eventstore.EventKind { return eventstore.KindReady }

// Measure implements Indicator.
func (TimeToReady) Measure(def models.SLODefinition, events []models.InvoiceEvent) Result {
	return measureWithinTarget(eventstore.KindReady, events, def.TargetValue*60, func(e models.InvoiceEvent) time.Duration {
		return e.ReadyAt.Sub(*e.ReceivedAt)
	})
}

// ApprovalLatency measures approval turnaround against a target in hours.
type ApprovalLatency struct{}

// Kind implements Indicator.
func (ApprovalLatency) Kind() eventstore.EventKind { return eventstore.KindApproval }

// Measure implements Indicator.
func (ApprovalLatency) Measure(def models.SLODefinition, events []models.InvoiceEvent) Result {
	return measureWithinTarget(eventstore.KindApproval, events, def.TargetValue*3600, func(e models.InvoiceEvent) time.Duration {
		return e.ApprovedAt.Sub(*e.ApprovalRequestedAt)
	})
}

// measureWithinTarget counts events whose duration is at or under targetSeconds.
// Actual is the mean duration in seconds.
func measureWithinTarget(kind eventstore.EventKind, events []models.InvoiceEvent, targetSeconds float64, duration func(models.InvoiceEvent) time.Duration) Result {
	events = complete(kind, events)
	if len(events) == 0 {
		return NoData()
	}

	good := 0
	sum := 0.0
	for _, e := range events {
		seconds := duration(e).Seconds()
		sum += seconds
		if seconds <= targetSeconds {
			good++
		}
	}
	return Result{
		Actual:   sum / float64(len(events)),
		Achieved: ratio(good, len(events)),
		Good:     good,
		Total:    len(events),
		Status:   models.MeasurementOK,
	}
}
