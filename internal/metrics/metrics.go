package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels batch runs where every SLO was measured.
	OutcomeSuccess = "success"
	// OutcomePartial labels batch runs where some SLOs failed.
	OutcomePartial = "partial"
	// OutcomeError labels batch runs that could not start or aborted.
	OutcomeError = "error"
	// OutcomeSkipped labels batch runs refused because another run held the lock.
	OutcomeSkipped = "skipped"
)

var (
	measurementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ap_slo",
			Name:      "measurements_total",
			Help:      "Total number of SLI measurements computed, partitioned by SLI type and status.",
		},
		[]string{"sli_type", "status"},
	)

	measurementFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ap_slo",
			Name:      "measurement_failures_total",
			Help:      "Total number of SLI measurements that failed to compute or persist.",
		},
		[]string{"sli_type"},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ap_slo",
			Name:      "alerts_total",
			Help:      "Total number of SLO alerts raised, partitioned by type and severity.",
		},
		[]string{"alert_type", "severity"},
	)

	batchRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ap_slo",
			Name:      "batch_runs_total",
			Help:      "Total number of measurement batch runs, partitioned by period and outcome.",
		},
		[]string{"period", "outcome"},
	)

	batchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ap_slo",
			Name:      "batch_seconds",
			Help:      "Measurement batch latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
)

// Register attaches SLO engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		measurementsTotal,
		measurementFailuresTotal,
		alertsTotal,
		batchRunsTotal,
		batchDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveMeasurement counts one computed measurement.
func ObserveMeasurement(sliType, status string) {
	measurementsTotal.WithLabelValues(sliType, status).Inc()
}

// ObserveMeasurementFailure counts one SLO that could not be measured.
func ObserveMeasurementFailure(sliType string) {
	measurementFailuresTotal.WithLabelValues(sliType).Inc()
}

// ObserveAlert counts one raised alert.
func ObserveAlert(alertType, severity string) {
	alertsTotal.WithLabelValues(alertType, severity).Inc()
}

// ObserveBatch records a batch duration and outcome label.
func ObserveBatch(period string, duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomePartial, OutcomeSkipped:
	default:
		outcome = OutcomeError
	}
	batchRunsTotal.WithLabelValues(period, outcome).Inc()
	if outcome == OutcomeSkipped {
		return
	}
	if duration < 0 {
		duration = 0
	}
	batchDurationSeconds.Observe(duration.Seconds())
}
