package models

import "time"

// Severity captures alert impact levels.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert types raised by the evaluator. The set is open; stored values are plain strings.
const (
	AlertErrorBudgetExhausted = "error_budget_exhausted"
	AlertBurnRateWarning      = "burn_rate_warning"
	AlertCriticalPerformance  = "critical_performance"
)

// AlertState is derived from the lifecycle timestamps.
type AlertState string

const (
	AlertOpen         AlertState = "open"
	AlertAcknowledged AlertState = "acknowledged"
	AlertResolved     AlertState = "resolved"
)

// SLOAlert is a raised condition tied to an SLO and usually one measurement.
type SLOAlert struct {
	ID              string
	SLODefinitionID string
	MeasurementID   string
	AlertType       string
	Severity        Severity
	Title           string
	Message         string
	CurrentValue    float64
	TargetValue     float64
	BreachedAt      time.Time
	AcknowledgedAt  *time.Time
	AcknowledgedBy  string
	ResolvedAt      *time.Time
	ResolutionNotes string
	CreatedAt       time.Time
}

// State reports the lifecycle position of the alert.
func (a SLOAlert) State() AlertState {
	switch {
	case a.ResolvedAt != nil:
		return AlertResolved
	case a.AcknowledgedAt != nil:
		return AlertAcknowledged
	default:
		return AlertOpen
	}
}

// AlertFilter narrows alert listings. Zero values mean "any".
type AlertFilter struct {
	SLODefinitionID string
	Severity        Severity
	UnresolvedOnly  bool
	Since           time.Time
	Limit           int
}
