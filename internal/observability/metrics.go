package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aqi_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	RunsStarted  prometheus.Counter
	RunsFinished *prometheus.CounterVec // labels: result={SUCCESS,QUALITY_FAILED,ERROR}
	RunsInFlight prometheus.Gauge
	RunDuration  prometheus.Histogram
	RunsRejected prometheus.Counter

	// Stage metrics.
	StageAttempts *prometheus.CounterVec // labels: stage
	StageFailures *prometheus.CounterVec // labels: stage
	TriggerErrors prometheus.Counter
	PollTimeouts  prometheus.Counter

	// Data metrics.
	ArtifactsSeen           prometheus.Histogram
	ObservationsAccepted    *prometheus.CounterVec // labels: kind
	ObservationsQuarantined *prometheus.CounterVec // labels: reason
	QuarantineWriteErrors   prometheus.Counter
	RowsWritten             *prometheus.CounterVec // labels: table

	// Notification metrics.
	EventsPublished prometheus.Counter
	PublishErrors   prometheus.Counter
	AlertErrors     prometheus.Counter

	SchedulerRunning prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Partition runs started.",
		}),
		RunsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Partition runs finished by result.",
		}, []string{"result"}),
		RunsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Partition runs currently executing.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time from trigger to notification.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		RunsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_rejected_total",
			Help:      "Run requests rejected because the partition already had a live run.",
		}),
		StageAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_attempts_total",
			Help:      "Stage attempts including retries.",
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Stages that exhausted their retry budget.",
		}, []string{"stage"}),
		TriggerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_errors_total",
			Help:      "Failed calls to the ingestor trigger endpoint.",
		}),
		PollTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_timeouts_total",
			Help:      "Runs whose artifact poll hit the timeout.",
		}),
		ArtifactsSeen: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifacts_per_run",
			Help:      "Raw artifacts listed for a partition when the gate ran.",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 12},
		}),
		ObservationsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_accepted_total",
			Help:      "Observations produced by normalization.",
		}, []string{"kind"}),
		ObservationsQuarantined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_quarantined_total",
			Help:      "Quarantine records produced by normalization.",
		}, []string{"reason"}),
		QuarantineWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quarantine_write_errors_total",
			Help:      "Quarantine batches that could not be persisted.",
		}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows merged into the warehouse.",
		}, []string{"table"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Partition-loaded events published.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Partition-loaded events that failed to publish.",
		}),
		AlertErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_errors_total",
			Help:      "Operator alerts that failed to send.",
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 when the hourly scheduler is active, 0 when stopped.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsStarted,
		m.RunsFinished,
		m.RunsInFlight,
		m.RunDuration,
		m.RunsRejected,
		m.StageAttempts,
		m.StageFailures,
		m.TriggerErrors,
		m.PollTimeouts,
		m.ArtifactsSeen,
		m.ObservationsAccepted,
		m.ObservationsQuarantined,
		m.QuarantineWriteErrors,
		m.RowsWritten,
		m.EventsPublished,
		m.PublishErrors,
		m.AlertErrors,
		m.SchedulerRunning,
	}
}
