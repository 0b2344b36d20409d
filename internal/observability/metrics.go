// Package observability holds the Prometheus collectors shared by the
// aggregation loop, the telemetry ingest and the consumer API.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meterwatch"

// Cycle outcomes recorded by the aggregation loop.
const (
	CycleComputed = "computed"
	CycleIdle     = "idle"
	CycleSkipped  = "skipped"
	CycleFailed   = "failed"
)

// Ingest outcomes recorded per received telemetry message.
const (
	IngestStored  = "stored"
	IngestInvalid = "invalid"
	IngestFailed  = "failed"
)

// Metrics bundles every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cycles         *prometheus.CounterVec
	skips          *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	windowSize     prometheus.Gauge
	activePower    prometheus.Gauge
	reactivePower  prometheus.Gauge
	apparentPower  prometheus.Gauge
	powerFactor    prometheus.Gauge
	ingestMessages *prometheus.CounterVec
	sinkFailures   *prometheus.CounterVec
	alertsSent     prometheus.Counter
}

// New builds and registers the collector set.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aggregator",
				Name:      "cycles_total",
				Help:      "Aggregation cycles by outcome",
			},
			[]string{"result"},
		),

		skips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aggregator",
				Name:      "skipped_batches_total",
				Help:      "Batches dropped without a window append, by reason",
			},
			[]string{"reason"},
		),

		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "aggregator",
				Name:      "cycle_duration_seconds",
				Help:      "Wall time of one aggregation cycle",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),

		windowSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "window",
				Name:      "entries",
				Help:      "Records currently held by the rolling window",
			},
		),

		activePower: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "power",
				Name:      "active_watts",
				Help:      "Active power of the newest computed record",
			},
		),

		reactivePower: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "power",
				Name:      "reactive_var",
				Help:      "Reactive power of the newest computed record",
			},
		),

		apparentPower: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "power",
				Name:      "apparent_va",
				Help:      "Apparent power of the newest computed record",
			},
		),

		powerFactor: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "power",
				Name:      "factor",
				Help:      "Power factor of the newest computed record",
			},
		),

		ingestMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "messages_total",
				Help:      "Telemetry messages received, by outcome",
			},
			[]string{"result"},
		),

		sinkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sink",
				Name:      "failures_total",
				Help:      "Failed metric deliveries, by sink",
			},
			[]string{"sink"},
		),

		alertsSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerting",
				Name:      "sent_total",
				Help:      "Power-factor alerts dispatched",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cycles,
		m.skips,
		m.cycleDuration,
		m.windowSize,
		m.activePower,
		m.reactivePower,
		m.apparentPower,
		m.powerFactor,
		m.ingestMessages,
		m.sinkFailures,
		m.alertsSent,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveCycle records one cycle outcome and its duration.
func (m *Metrics) ObserveCycle(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(elapsed.Seconds())
}

// SkippedBatch counts a batch dropped for reason.
func (m *Metrics) SkippedBatch(reason string) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(reason).Inc()
}

// SetWindowSize publishes the current window occupancy.
func (m *Metrics) SetWindowSize(n int) {
	if m == nil {
		return
	}
	m.windowSize.Set(float64(n))
}

// SetPower publishes the newest computed values.
func (m *Metrics) SetPower(active, reactive, apparent, factor float64) {
	if m == nil {
		return
	}
	m.activePower.Set(active)
	m.reactivePower.Set(reactive)
	m.apparentPower.Set(apparent)
	m.powerFactor.Set(factor)
}

// IngestMessage counts one received telemetry message.
func (m *Metrics) IngestMessage(result string) {
	if m == nil {
		return
	}
	m.ingestMessages.WithLabelValues(result).Inc()
}

// SinkFailed counts a failed delivery to the named sink.
func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

// AlertSent counts a dispatched alert.
func (m *Metrics) AlertSent() {
	if m == nil {
		return
	}
	m.alertsSent.Inc()
}
