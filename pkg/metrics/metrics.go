// Package metrics exposes Prometheus metrics for usage aggregation runs and
// the series queries they issue.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/bouncestorage/bounce-stats/pkg/series"
	"github.com/bouncestorage/bounce-stats/pkg/usagestats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registry for all bounce-stats metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Metrics holds the aggregation metrics.
type Metrics struct {
	QueriesTotal  *prometheus.CounterVec   // bounce_stats_queries_total{kind}
	QueryFailures *prometheus.CounterVec   // bounce_stats_query_failures_total{kind}
	QueryDuration *prometheus.HistogramVec // bounce_stats_query_duration_seconds{kind}

	RunsTotal      prometheus.Counter
	RunDuration    prometheus.Histogram
	LastCompletion prometheus.Gauge // unix seconds

	StoreSizeBytes *prometheus.GaugeVec // bounce_store_size_bytes{store}
	StoreObjects   *prometheus.GaugeVec // bounce_store_objects{store}
}

// NewMetrics registers the aggregation metrics with registry. A nil registry
// means Registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = Registry
	}
	f := promauto.With(registry)

	return &Metrics{
		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bounce_stats_queries_total",
			Help: "Series queries issued, by query kind",
		}, []string{"kind"}),
		QueryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bounce_stats_query_failures_total",
			Help: "Series queries that failed and were absorbed, by query kind",
		}, []string{"kind"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bounce_stats_query_duration_seconds",
			Help:    "Series query latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		RunsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "bounce_stats_runs_total",
			Help: "Completed aggregation runs",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bounce_stats_run_duration_seconds",
			Help:    "Aggregation run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		LastCompletion: f.NewGauge(prometheus.GaugeOpts{
			Name: "bounce_stats_last_completion_timestamp_seconds",
			Help: "Unix time of the last completed aggregation run",
		}),

		StoreSizeBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bounce_store_size_bytes",
			Help: "Estimated bytes stored per object store",
		}, []string{"store"}),
		StoreObjects: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bounce_store_objects",
			Help: "Object count per object store as of its latest snapshot",
		}, []string{"store"}),
	}
}

// NotifyComplete records a finished run. It makes Metrics a
// usagestats.Notifier.
func (m *Metrics) NotifyComplete(_ context.Context, c usagestats.Completion) error {
	m.RunsTotal.Inc()
	m.RunDuration.Observe(c.Duration().Seconds())
	m.LastCompletion.Set(float64(c.CompletedAt.Unix()))

	m.StoreSizeBytes.Reset()
	m.StoreObjects.Reset()
	for _, s := range c.Results {
		m.StoreSizeBytes.WithLabelValues(s.Key).Set(float64(s.Data.Size))
		m.StoreObjects.WithLabelValues(s.Key).Set(float64(s.Data.Objects))
	}
	return nil
}

// InstrumentQuerier wraps q so every query is counted and timed.
func (m *Metrics) InstrumentQuerier(q series.Querier) series.Querier {
	return &instrumentedQuerier{next: q, m: m}
}

type instrumentedQuerier struct {
	next series.Querier
	m    *Metrics
}

func (iq *instrumentedQuerier) Query(ctx context.Context, q series.Query) ([]series.Series, error) {
	kind := q.Kind().String()
	start := time.Now()

	result, err := iq.next.Query(ctx, q)

	iq.m.QueriesTotal.WithLabelValues(kind).Inc()
	iq.m.QueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		iq.m.QueryFailures.WithLabelValues(kind).Inc()
	}
	return result, err
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
