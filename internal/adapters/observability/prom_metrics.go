package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromObs records collector, query and render activity as Prometheus
// metrics. It satisfies the observer interfaces of the collector, the
// backfill, the series service and the dashboard handler.
type PromObs struct {
	recorded   prometheus.Counter
	skipped    *prometheus.CounterVec
	backfilled prometheus.Counter
	lastLoad   prometheus.Gauge

	queryLatency  prometheus.Histogram
	renderLatency prometheus.Histogram
	renderErrors  prometheus.Counter
}

func NewPromObs(reg prometheus.Registerer) *PromObs {
	recorded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cpumon_samples_recorded_total",
		Help: "Live CPU samples written to the store.",
	})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cpumon_samples_skipped_total",
		Help: "Collector cycles that stored nothing, by reason.",
	}, []string{"reason"})
	backfilled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cpumon_backfill_placeholders_total",
		Help: "Zero-valued placeholders inserted to cover downtime.",
	})
	lastLoad := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpumon_cpu_load_percent",
		Help: "Most recently recorded CPU load.",
	})
	queryLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cpumon_series_query_seconds",
		Help:    "Latency of the range query behind a series request.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
	renderLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cpumon_chart_render_seconds",
		Help:    "Latency of rendering one chart image.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	})
	renderErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cpumon_chart_render_errors_total",
		Help: "Chart renders that failed.",
	})

	reg.MustRegister(recorded, skipped, backfilled, lastLoad, queryLatency, renderLatency, renderErrors)

	return &PromObs{
		recorded:      recorded,
		skipped:       skipped,
		backfilled:    backfilled,
		lastLoad:      lastLoad,
		queryLatency:  queryLatency,
		renderLatency: renderLatency,
		renderErrors:  renderErrors,
	}
}

func (p *PromObs) SampleRecorded(value float64) {
	p.recorded.Inc()
	p.lastLoad.Set(value)
}

func (p *PromObs) SampleSkipped(reason string) {
	p.skipped.WithLabelValues(reason).Inc()
}

func (p *PromObs) BackfillInserted(n int) {
	p.backfilled.Add(float64(n))
}

func (p *PromObs) ObserveQuery(d time.Duration) {
	p.queryLatency.Observe(d.Seconds())
}

func (p *PromObs) ObserveRender(d time.Duration, err error) {
	p.renderLatency.Observe(d.Seconds())
	if err != nil {
		p.renderErrors.Inc()
	}
}
