package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MathewBravo/realtime-db/pkg/listener"
)

const namespace = "realtime"

type Histogram interface {
	Observe(float64)
}

type Counter interface {
	Inc()
	Add(float64)
}

type Gauge interface {
	Set(float64)
}

type CounterVec interface {
	With(labels ...string) Counter
}

type GaugeVec interface {
	With(labels ...string) Gauge
	Delete(labels ...string)
}

type HistogramVec interface {
	With(labels ...string) Histogram
}

type NoopStat struct{}

type noopCounterVec struct{}
type noopGaugeVec struct{}
type noopHistogramVec struct{}

func (n noopCounterVec) With(labels ...string) Counter     { return NoopStat{} }
func (n noopGaugeVec) With(labels ...string) Gauge         { return NoopStat{} }
func (n noopHistogramVec) With(labels ...string) Histogram { return NoopStat{} }

func (n noopGaugeVec) Delete(labels ...string) {}

func (n NoopStat) Observe(float64) {}
func (n NoopStat) Set(float64)     {}
func (n NoopStat) Inc()            {}
func (n NoopStat) Add(float64)     {}

type prometheusCounterVec struct {
	vec *prometheus.CounterVec
}

func (p *prometheusCounterVec) With(labelValues ...string) Counter {
	return p.vec.WithLabelValues(labelValues...)
}

type prometheusGaugeVec struct {
	vec *prometheus.GaugeVec
}

func (p *prometheusGaugeVec) With(labelValues ...string) Gauge {
	return p.vec.WithLabelValues(labelValues...)
}

func (p *prometheusGaugeVec) Delete(labelValues ...string) {
	p.vec.DeleteLabelValues(labelValues...)
}

type prometheusHistogramVec struct {
	vec *prometheus.HistogramVec
}

func (p *prometheusHistogramVec) With(labelValues ...string) Histogram {
	return p.vec.WithLabelValues(labelValues...)
}

// NewRegistry returns a registry carrying the process and Go runtime
// collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

// Telemetry records engine activity. It satisfies poller.Metrics.
type Telemetry struct {
	registry *prometheus.Registry

	ticks          CounterVec
	fetchErrors    CounterVec
	changes        CounterVec
	newRows        CounterVec
	listenerCalls  CounterVec
	listenerPanics CounterVec
	snapshotRows   GaugeVec
	subscriptions  Gauge
	tickDuration   HistogramVec
}

// New registers the engine metrics on registry. A nil registry yields a
// Telemetry that records nothing.
func New(registry *prometheus.Registry) *Telemetry {
	t := &Telemetry{registry: registry}
	t.ticks = t.counterVec("ticks_total", "Completed poll ticks.", "table")
	t.fetchErrors = t.counterVec("fetch_errors_total", "Failed table reads.", "table")
	t.changes = t.counterVec("changes_total", "Ticks that observed a change.", "table")
	t.newRows = t.counterVec("new_rows_total", "Rows reported as new values.", "table")
	t.listenerCalls = t.counterVec("listener_calls_total", "Listener invocations.", "table", "kind")
	t.listenerPanics = t.counterVec("listener_panics_total", "Listener invocations that panicked.", "table", "kind")
	t.snapshotRows = t.gaugeVec("snapshot_rows", "Rows in the latest snapshot.", "table")
	t.subscriptions = t.gaugeVec("subscriptions_active", "Tables currently polled.").With()
	t.tickDuration = t.histogramVec("tick_duration_seconds", "Time spent in one tick.", prometheus.DefBuckets, "table")
	return t
}

func (t *Telemetry) counterVec(name, help string, labels ...string) CounterVec {
	if t.registry == nil {
		return noopCounterVec{}
	}
	ret := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
	t.registry.MustRegister(ret)
	return &prometheusCounterVec{vec: ret}
}

func (t *Telemetry) gaugeVec(name, help string, labels ...string) GaugeVec {
	if t.registry == nil {
		return noopGaugeVec{}
	}
	ret := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
	t.registry.MustRegister(ret)
	return &prometheusGaugeVec{vec: ret}
}

func (t *Telemetry) histogramVec(name, help string, buckets []float64, labels ...string) HistogramVec {
	if t.registry == nil {
		return noopHistogramVec{}
	}
	ret := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	t.registry.MustRegister(ret)
	return &prometheusHistogramVec{vec: ret}
}

func (t *Telemetry) TickCompleted(table string, rows int, took time.Duration) {
	t.ticks.With(table).Inc()
	t.snapshotRows.With(table).Set(float64(rows))
	t.tickDuration.With(table).Observe(took.Seconds())
}

func (t *Telemetry) FetchFailed(table string) {
	t.fetchErrors.With(table).Inc()
}

func (t *Telemetry) ChangeDetected(table string, newRows int) {
	t.changes.With(table).Inc()
	t.newRows.With(table).Add(float64(newRows))
}

func (t *Telemetry) ListenerCalled(table string, kind listener.Kind, panicked bool) {
	t.listenerCalls.With(table, kind.String()).Inc()
	if panicked {
		t.listenerPanics.With(table, kind.String()).Inc()
	}
}

// TableStopped drops the per-table gauges so a stopped table no longer
// reports its last row count.
func (t *Telemetry) TableStopped(table string) {
	t.snapshotRows.Delete(table)
}

func (t *Telemetry) SubscriptionsActive(n int) {
	t.subscriptions.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format, or 404 when
// metrics are disabled.
func (t *Telemetry) Handler() http.Handler {
	if t.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry})
}
