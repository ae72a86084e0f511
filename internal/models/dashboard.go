package models

import "time"

// HealthStatus is the derived per-SLO dashboard status.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	HealthNoData   HealthStatus = "no_data"
)

// SLOHealth joins a definition with its latest measurement and open alerts.
type SLOHealth struct {
	Definition        SLODefinition
	Status            HealthStatus
	LatestMeasurement *SLIMeasurement
	OpenAlerts        []SLOAlert
	BurnRate          float64
}

// DashboardSummary aggregates status counts across all active SLOs.
type DashboardSummary struct {
	TotalSLOs    int
	HealthySLOs  int
	WarningSLOs  int
	CriticalSLOs int
	NoDataSLOs   int
	OpenAlerts   int
}

// DashboardSnapshot is the read-side health view for a time range.
type DashboardSnapshot struct {
	GeneratedAt          time.Time
	Range                TimeRange
	SLIType              SLIType
	Summary              DashboardSummary
	SLOs                 []SLOHealth
	RecentCriticalAlerts []SLOAlert
}

// HistorySummary carries derived statistics over a measurement series.
type HistorySummary struct {
	Count                 int
	LatestAchieved        float64
	AverageAchieved       float64
	MinAchieved           float64
	MaxAchieved           float64
	LatestBudgetConsumed  float64
	AverageBudgetConsumed float64
	MaxBudgetConsumed     float64
}

// MeasurementHistory is the measurement series for one SLO plus summary statistics.
type MeasurementHistory struct {
	Definition   SLODefinition
	Range        TimeRange
	Measurements []SLIMeasurement
	Summary      HistorySummary
}
