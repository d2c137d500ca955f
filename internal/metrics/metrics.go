package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vigil"

// Metrics groups every collector the daemon updates.
type Metrics struct {
	registry *prometheus.Registry

	FramesProcessed     prometheus.Counter
	FramesAdmitted      prometheus.Counter
	EventsAccepted      prometheus.Counter
	EventsSuppressed    prometheus.Counter
	InferenceSkips      *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	ConnectionState     prometheus.Gauge
	ReconnectAttempts   *prometheus.CounterVec
	StorageBytes        prometheus.Gauge
	StoragePercent      prometheus.Gauge
	StorageRotations    prometheus.Counter
	InferenceLatency    *prometheus.HistogramVec
	NotificationsDrop   *prometheus.CounterVec
	StagePanics         *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		FramesProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Frames pulled from the source.",
		}),
		FramesAdmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_admitted_total",
			Help:      "Frames admitted for inference.",
		}),
		EventsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_accepted_total",
			Help:      "Events that passed suppression and were persisted.",
		}),
		EventsSuppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_suppressed_total",
			Help:      "Candidate events suppressed as near-duplicates.",
		}),
		InferenceSkips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_skips_total",
			Help:      "Admitted frames dropped by the inference stage, by reason.",
		}, []string{"reason"}),
		PersistenceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Failed sink writes, by sink.",
		}, []string{"sink"}),
		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_connection_state",
			Help:      "Source connection state (0=disconnected, 1=connecting, 2=connected, 3=backoff).",
		}),
		ReconnectAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_connect_attempts_total",
			Help:      "Source connection attempts, by result.",
		}, []string{"result"}),
		StorageBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_used_bytes",
			Help:      "Bytes used under the data directory at the last check.",
		}),
		StoragePercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_used_percent",
			Help:      "Used share of the storage ceiling at the last check.",
		}),
		StorageRotations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_shards_rotated_total",
			Help:      "Day shards deleted by rotation.",
		}),
		InferenceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_latency_seconds",
			Help:      "Inference call latency, by stage.",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10},
		}, []string{"stage"}),
		NotificationsDrop: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Events dropped because a subscriber queue was full, by subscriber.",
		}, []string{"subscriber"}),
		StagePanics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_panics_total",
			Help:      "Recovered panics inside pipeline stages, by stage.",
		}, []string{"stage"}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveLatency records one inference call.
func (m *Metrics) ObserveLatency(stage string, d time.Duration) {
	m.InferenceLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordAttempt counts a connection attempt.
func (m *Metrics) RecordAttempt(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.ReconnectAttempts.WithLabelValues(result).Inc()
}

// RecordPersistenceFailure counts a failed sink write.
func (m *Metrics) RecordPersistenceFailure(sink string) {
	m.PersistenceFailures.WithLabelValues(sink).Inc()
}

// RecordDrop counts a dropped notification.
func (m *Metrics) RecordDrop(subscriber string) {
	m.NotificationsDrop.WithLabelValues(subscriber).Inc()
}

// SetStorage publishes the latest storage check.
func (m *Metrics) SetStorage(totalBytes int64, percent float64) {
	m.StorageBytes.Set(float64(totalBytes))
	m.StoragePercent.Set(percent)
}

// FrameProcessed counts a frame pulled from the source.
func (m *Metrics) FrameProcessed() { m.FramesProcessed.Inc() }

// FrameAdmitted counts a frame passed to inference.
func (m *Metrics) FrameAdmitted() { m.FramesAdmitted.Inc() }

// EventAccepted counts a persisted event.
func (m *Metrics) EventAccepted() { m.EventsAccepted.Inc() }

// EventSuppressed counts a near-duplicate candidate.
func (m *Metrics) EventSuppressed() { m.EventsSuppressed.Inc() }

// InferenceSkipped counts an admitted frame dropped by inference.
func (m *Metrics) InferenceSkipped(reason string) { m.InferenceSkips.WithLabelValues(reason).Inc() }

// StageError counts a recovered stage panic.
func (m *Metrics) StageError(stage string) { m.StagePanics.WithLabelValues(stage).Inc() }

// SetConnectionState publishes the numeric source connection state.
func (m *Metrics) SetConnectionState(state int) { m.ConnectionState.Set(float64(state)) }
