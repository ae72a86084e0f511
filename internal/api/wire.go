package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/apflow/ap-slo-engine/internal/engine"
	"github.com/apflow/ap-slo-engine/internal/models"
)

// Wire types shared by the gRPC and REST surfaces. Field names are camelCase JSON.

type RunMeasurementsRequest struct {
	Period string `json:"period"`
	Hours  int    `json:"hours,omitempty"`
}

type CalculateSLORequest struct {
	SLOID string `json:"sloId"`
	Hours int    `json:"hours,omitempty"`
}

type AcknowledgeAlertRequest struct {
	AlertID string `json:"alertId"`
	Actor   string `json:"actor"`
}

type ResolveAlertRequest struct {
	AlertID string `json:"alertId"`
	Notes   string `json:"notes,omitempty"`
}

type DashboardRequest struct {
	Days    int    `json:"days,omitempty"`
	SLIType string `json:"sliType,omitempty"`
}

type HistoryRequest struct {
	SLOID string `json:"sloId"`
	Days  int    `json:"days,omitempty"`
}

type ListAlertsRequest struct {
	SLOID          string `json:"sloId,omitempty"`
	Severity       string `json:"severity,omitempty"`
	UnresolvedOnly bool   `json:"unresolvedOnly,omitempty"`
	SinceDays      int    `json:"sinceDays,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

type ListAlertsResponse struct {
	Alerts []Alert `json:"alerts"`
}

type ListSLOsResponse struct {
	SLOs []SLO `json:"slos"`
}

type SLO struct {
	ID                          string    `json:"id"`
	Name                        string    `json:"name"`
	Description                 string    `json:"description,omitempty"`
	SLIType                     string    `json:"sliType"`
	Target                      float64   `json:"target"`
	TargetUnit                  string    `json:"targetUnit,omitempty"`
	ErrorBudgetPercentage       float64   `json:"errorBudgetPercentage"`
	AlertingThresholdPercentage float64   `json:"alertingThresholdPercentage"`
	MeasurementPeriod           string    `json:"measurementPeriod"`
	BurnRateAlertThreshold      float64   `json:"burnRateAlertThreshold"`
	Active                      bool      `json:"active"`
	CreatedAt                   time.Time `json:"createdAt"`
	UpdatedAt                   time.Time `json:"updatedAt"`
}

type Measurement struct {
	ID                  string    `json:"id"`
	SLOID               string    `json:"sloId"`
	PeriodStart         time.Time `json:"periodStart"`
	PeriodEnd           time.Time `json:"periodEnd"`
	ActualValue         float64   `json:"actualValue"`
	TargetValue         float64   `json:"targetValue"`
	AchievedPercentage  float64   `json:"achievedPercentage"`
	GoodEventsCount     int       `json:"goodEventsCount"`
	TotalEventsCount    int       `json:"totalEventsCount"`
	ErrorBudgetConsumed float64   `json:"errorBudgetConsumed"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"createdAt"`
}

type Alert struct {
	ID              string     `json:"id"`
	SLOID           string     `json:"sloId"`
	MeasurementID   string     `json:"measurementId,omitempty"`
	AlertType       string     `json:"alertType"`
	Severity        string     `json:"severity"`
	State           string     `json:"state"`
	Title           string     `json:"title"`
	Message         string     `json:"message"`
	CurrentValue    float64    `json:"currentValue"`
	TargetValue     float64    `json:"targetValue"`
	BreachedAt      time.Time  `json:"breachedAt"`
	AcknowledgedAt  *time.Time `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy  string     `json:"acknowledgedBy,omitempty"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	ResolutionNotes string     `json:"resolutionNotes,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type BatchError struct {
	SLOID   string `json:"sloId"`
	SLOName string `json:"sloName"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

type BatchResult struct {
	Period        string        `json:"period"`
	WindowStart   time.Time     `json:"windowStart"`
	WindowEnd     time.Time     `json:"windowEnd"`
	Processed     int           `json:"processed"`
	Computed      int           `json:"computed"`
	Failed        int           `json:"failed"`
	AlertsCreated int           `json:"alertsCreated"`
	Measurements  []Measurement `json:"measurements"`
	Errors        []BatchError  `json:"errors,omitempty"`
}

type SLOResult struct {
	SLO         SLO         `json:"slo"`
	Measurement Measurement `json:"measurement"`
	Alerts      []Alert     `json:"alerts"`
}

type DashboardSummary struct {
	TotalSLOs    int `json:"totalSlos"`
	HealthySLOs  int `json:"healthySlos"`
	WarningSLOs  int `json:"warningSlos"`
	CriticalSLOs int `json:"criticalSlos"`
	NoDataSLOs   int `json:"noDataSlos"`
	OpenAlerts   int `json:"openAlerts"`
}

type SLOHealth struct {
	SLO               SLO          `json:"slo"`
	Status            string       `json:"status"`
	LatestMeasurement *Measurement `json:"latestMeasurement,omitempty"`
	OpenAlerts        []Alert      `json:"openAlerts"`
	BurnRate          float64      `json:"burnRate"`
}

type DashboardSnapshot struct {
	GeneratedAt          time.Time        `json:"generatedAt"`
	Start                time.Time        `json:"start"`
	End                  time.Time        `json:"end"`
	SLIType              string           `json:"sliType,omitempty"`
	Summary              DashboardSummary `json:"summary"`
	SLOs                 []SLOHealth      `json:"slos"`
	RecentCriticalAlerts []Alert          `json:"recentCriticalAlerts"`
}

type HistorySummary struct {
	Count                 int     `json:"count"`
	LatestAchieved        float64 `json:"latestAchieved"`
	AverageAchieved       float64 `json:"averageAchieved"`
	MinAchieved           float64 `json:"minAchieved"`
	MaxAchieved           float64 `json:"maxAchieved"`
	LatestBudgetConsumed  float64 `json:"latestBudgetConsumed"`
	AverageBudgetConsumed float64 `json:"averageBudgetConsumed"`
	MaxBudgetConsumed     float64 `json:"maxBudgetConsumed"`
}

type MeasurementHistory struct {
	SLO          SLO            `json:"slo"`
	Start        time.Time      `json:"start"`
	End          time.Time      `json:"end"`
	Measurements []Measurement  `json:"measurements"`
	Summary      HistorySummary `json:"summary"`
}

// ToSLO converts a catalogue entry to its wire form.
func ToSLO(def models.SLODefinition) SLO {
	return SLO{
		ID:                          def.ID,
		Name:                        def.Name,
		Description:                 def.Description,
		SLIType:                     string(def.SLIType),
		Target:                      def.TargetValue,
		TargetUnit:                  def.TargetUnit,
		ErrorBudgetPercentage:       def.ErrorBudgetPercentage,
		AlertingThresholdPercentage: def.AlertingThresholdPercentage,
		MeasurementPeriod:           string(def.MeasurementPeriod),
		BurnRateAlertThreshold:      def.BurnRateAlertThreshold,
		Active:                      def.IsActive,
		CreatedAt:                   def.CreatedAt,
		UpdatedAt:                   def.UpdatedAt,
	}
}

// ToSLOs converts a catalogue listing.
func ToSLOs(defs []models.SLODefinition) []SLO {
	out := make([]SLO, 0, len(defs))
	for _, def := range defs {
		out = append(out, ToSLO(def))
	}
	return out
}

// ToMeasurement converts a measurement to its wire form.
func ToMeasurement(m models.SLIMeasurement) Measurement {
	return Measurement{
		ID:                  m.ID,
		SLOID:               m.SLODefinitionID,
		PeriodStart:         m.PeriodStart,
		PeriodEnd:           m.PeriodEnd,
		ActualValue:         m.ActualValue,
		TargetValue:         m.TargetValue,
		AchievedPercentage:  m.AchievedPercentage,
		GoodEventsCount:     m.GoodEventsCount,
		TotalEventsCount:    m.TotalEventsCount,
		ErrorBudgetConsumed: m.ErrorBudgetConsumed,
		Status:              string(m.Status),
		CreatedAt:           m.CreatedAt,
	}
}

func toMeasurements(ms []models.SLIMeasurement) []Measurement {
	out := make([]Measurement, 0, len(ms))
	for _, m := range ms {
		out = append(out, ToMeasurement(m))
	}
	return out
}

// ToAlert converts an alert to its wire form, including the derived state.
func ToAlert(a models.SLOAlert) Alert {
	return Alert{
		ID:              a.ID,
		SLOID:           a.SLODefinitionID,
		MeasurementID:   a.MeasurementID,
		AlertType:       a.AlertType,
		Severity:        string(a.Severity),
		State:           string(a.State()),
		Title:           a.Title,
		Message:         a.Message,
		CurrentValue:    a.CurrentValue,
		TargetValue:     a.TargetValue,
		BreachedAt:      a.BreachedAt,
		AcknowledgedAt:  a.AcknowledgedAt,
		AcknowledgedBy:  a.AcknowledgedBy,
		ResolvedAt:      a.ResolvedAt,
		ResolutionNotes: a.ResolutionNotes,
		CreatedAt:       a.CreatedAt,
	}
}

// ToAlerts converts an alert listing.
func ToAlerts(alerts []models.SLOAlert) []Alert {
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, ToAlert(a))
	}
	return out
}

// ToBatchResult converts a batch run summary.
func ToBatchResult(res engine.BatchResult) BatchResult {
	out := BatchResult{
		Period:        string(res.Period),
		WindowStart:   res.WindowStart,
		WindowEnd:     res.WindowEnd,
		Processed:     res.Processed,
		Computed:      res.Computed,
		Failed:        res.Failed,
		AlertsCreated: res.AlertsCreated,
		Measurements:  toMeasurements(res.Measurements),
	}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, BatchError{SLOID: e.SLODefinitionID, SLOName: e.SLOName, Stage: e.Stage, Message: e.Message})
	}
	return out
}

// ToSLOResult converts an on-demand measurement.
func ToSLOResult(res engine.SLOResult) SLOResult {
	return SLOResult{
		SLO:         ToSLO(res.Definition),
		Measurement: ToMeasurement(res.Measurement),
		Alerts:      ToAlerts(res.Alerts),
	}
}

// ToDashboard converts a dashboard snapshot.
func ToDashboard(snap models.DashboardSnapshot) DashboardSnapshot {
	out := DashboardSnapshot{
		GeneratedAt: snap.GeneratedAt,
		Start:       snap.Range.Start,
		End:         snap.Range.End,
		SLIType:     string(snap.SLIType),
		Summary: DashboardSummary{
			TotalSLOs:    snap.Summary.TotalSLOs,
			HealthySLOs:  snap.Summary.HealthySLOs,
			WarningSLOs:  snap.Summary.WarningSLOs,
			CriticalSLOs: snap.Summary.CriticalSLOs,
			NoDataSLOs:   snap.Summary.NoDataSLOs,
			OpenAlerts:   snap.Summary.OpenAlerts,
		},
		SLOs:                 make([]SLOHealth, 0, len(snap.SLOs)),
		RecentCriticalAlerts: ToAlerts(snap.RecentCriticalAlerts),
	}
	for _, h := range snap.SLOs {
		entry := SLOHealth{
			SLO:        ToSLO(h.Definition),
			Status:     string(h.Status),
			OpenAlerts: ToAlerts(h.OpenAlerts),
			BurnRate:   h.BurnRate,
		}
		if h.LatestMeasurement != nil {
			m := ToMeasurement(*h.LatestMeasurement)
			entry.LatestMeasurement = &m
		}
		out.SLOs = append(out.SLOs, entry)
	}
	return out
}

// ToHistory converts a measurement history.
func ToHistory(h models.MeasurementHistory) MeasurementHistory {
	return MeasurementHistory{
		SLO:          ToSLO(h.Definition),
		Start:        h.Range.Start,
		End:          h.Range.End,
		Measurements: toMeasurements(h.Measurements),
		Summary: HistorySummary{
			Count:                 h.Summary.Count,
			LatestAchieved:        h.Summary.LatestAchieved,
			AverageAchieved:       h.Summary.AverageAchieved,
			MinAchieved:           h.Summary.MinAchieved,
			MaxAchieved:           h.Summary.MaxAchieved,
			LatestBudgetConsumed:  h.Summary.LatestBudgetConsumed,
			AverageBudgetConsumed: h.Summary.AverageBudgetConsumed,
			MaxBudgetConsumed:     h.Summary.MaxBudgetConsumed,
		},
	}
}

// ToStruct encodes a wire value as a protobuf Struct via its JSON form.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return out, nil
}

// FromStruct decodes a protobuf Struct into a wire value. Unknown fields are rejected.
func FromStruct(s *structpb.Struct, out any) error {
	if s == nil {
		return fmt.Errorf("request is nil")
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
