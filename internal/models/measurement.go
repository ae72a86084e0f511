package models

import "time"

// MeasurementStatus tags how a measurement was produced.
type MeasurementStatus string

const (
	MeasurementOK             MeasurementStatus = "ok"
	MeasurementNoData         MeasurementStatus = "no_data"
	MeasurementNotImplemented MeasurementStatus = "not_implemented"
)

// SLIMeasurement is one computed data point for one SLO over [PeriodStart, PeriodEnd).
type SLIMeasurement struct {
	ID                  string
	SLODefinitionID     string
	PeriodStart         time.Time
	PeriodEnd           time.Time
	ActualValue         float64
	TargetValue         float64
	AchievedPercentage  float64
	GoodEventsCount     int
	TotalEventsCount    int
	ErrorBudgetConsumed float64
	Status              MeasurementStatus
	CreatedAt           time.Time
}

// HasSignal reports whether the measurement was computed from real events.
func (m SLIMeasurement) HasSignal() bool {
	return m.Status == MeasurementOK
}

// BudgetConsumed derives error budget consumption from an achieved percentage.
func BudgetConsumed(achieved float64) float64 {
	consumed := 100 - achieved
	if consumed < 0 {
		return 0
	}
	if consumed > 100 {
		return 100
	}
	return consumed
}

// TimeRange bounds a half-open window.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// LastDays returns the window ending at now and covering the previous days.
func LastDays(now time.Time, days int) TimeRange {
	if days <= 0 {
		days = 1
	}
	return TimeRange{Start: now.Add(-time.Duration(days) * 24 * time.Hour), End: now}
}
