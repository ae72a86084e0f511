package models

import (
	"fmt"
	"strings"
	"time"
)

// SLIType enumerates the monitored indicators.
type SLIType string

const (
	SLITimeToReady             SLIType = "time_to_ready"
	SLIValidationPassRate      SLIType = "validation_pass_rate"
	SLIDuplicateRecall         SLIType = "duplicate_recall"
	SLIApprovalLatency         SLIType = "approval_latency"
	SLIProcessingSuccessRate   SLIType = "processing_success_rate"
	SLIExtractionAccuracy      SLIType = "extraction_accuracy"
	SLIExceptionResolutionTime SLIType = "exception_resolution_time"
)

// SLITypes lists every known indicator in declaration order.
var SLITypes = []SLIType{
	SLITimeToReady,
	SLIValidationPassRate,
	SLIDuplicateRecall,
	SLIApprovalLatency,
	SLIProcessingSuccessRate,
	SLIExtractionAccuracy,
	SLIExceptionResolutionTime,
}

// ParseSLIType validates a raw indicator name.
func ParseSLIType(value string) (SLIType, error) {
	candidate := SLIType(strings.ToLower(strings.TrimSpace(value)))
	for _, t := range SLITypes {
		if t == candidate {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown sli type %q", value)
}

// MeasurementPeriod controls how often an SLO is measured and the window it covers.
type MeasurementPeriod string

const (
	PeriodHourly    MeasurementPeriod = "hourly"
	PeriodDaily     MeasurementPeriod = "daily"
	PeriodWeekly    MeasurementPeriod = "weekly"
	PeriodMonthly   MeasurementPeriod = "monthly"
	PeriodQuarterly MeasurementPeriod = "quarterly"
)

// MeasurementPeriods lists every supported period, shortest first.
var MeasurementPeriods = []MeasurementPeriod{
	PeriodHourly,
	PeriodDaily,
	PeriodWeekly,
	PeriodMonthly,
	PeriodQuarterly,
}

// ParseMeasurementPeriod validates a raw period name.
func ParseMeasurementPeriod(value string) (MeasurementPeriod, error) {
	candidate := MeasurementPeriod(strings.ToLower(strings.TrimSpace(value)))
	for _, p := range MeasurementPeriods {
		if p == candidate {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown measurement period %q", value)
}

// DefaultWindow is the lookback used when a run does not specify one.
func (p MeasurementPeriod) DefaultWindow() time.Duration {
	switch p {
	case PeriodHourly:
		return time.Hour
	case PeriodDaily:
		return 24 * time.Hour
	case PeriodWeekly:
		return 7 * 24 * time.Hour
	case PeriodMonthly:
		return 30 * 24 * time.Hour
	case PeriodQuarterly:
		return 90 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// SLODefinition is the static configuration of one monitored indicator.
type SLODefinition struct {
	ID                          string
	Name                        string
	Description                 string
	SLIType                     SLIType
	TargetValue                 float64
	TargetUnit                  string
	ErrorBudgetPercentage       float64
	AlertingThresholdPercentage float64
	MeasurementPeriod           MeasurementPeriod
	BurnRateAlertThreshold      float64
	IsActive                    bool
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}
