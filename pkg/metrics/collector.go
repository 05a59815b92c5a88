package metrics

import (
	"context"
	"time"

	log "github.com/cloud-bulldozer/avap-bench/pkg/logging"
	result "github.com/cloud-bulldozer/avap-bench/pkg/results"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "avap_bench"

// Collector records per-call outcomes and the run summary into a private
// registry that can be pushed to a Pushgateway.
type Collector struct {
	runID    string
	registry *prometheus.Registry

	calls    *prometheus.CounterVec
	duration prometheus.Histogram

	rps       prometheus.Gauge
	p95       prometheus.Gauge
	p99       prometheus.Gauge
	passed    prometheus.Gauge
	bulkBytes prometheus.Gauge
	bulkSecs  prometheus.Gauge
}

// NewCollector builds a Collector whose series are grouped under runID.
func NewCollector(runID string) *Collector {
	c := &Collector{
		runID:    runID,
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "GetCommand calls by outcome and status code.",
		}, []string{"outcome", "code"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Latency of successful GetCommand calls.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		rps:       gauge("requests_per_second", "Successful calls per second of the batch."),
		p95:       gauge("p95_latency_seconds", "95th percentile latency of the batch."),
		p99:       gauge("p99_latency_seconds", "99th percentile latency of the batch."),
		passed:    gauge("verdict_passed", "1 when the batch met the throughput budget."),
		bulkBytes: gauge("sync_bytes", "Code bytes carried by SyncCatalog."),
		bulkSecs:  gauge("sync_duration_seconds", "Duration of the SyncCatalog exchange."),
	}
	c.registry.MustRegister(c.calls, c.duration, c.rps, c.p95, c.p99, c.passed, c.bulkBytes, c.bulkSecs)
	return c
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Observe counts one call. It is safe for concurrent use.
func (c *Collector) Observe(success bool, code string, elapsed time.Duration) {
	if success {
		c.calls.WithLabelValues("success", code).Inc()
		c.duration.Observe(elapsed.Seconds())
		return
	}
	c.calls.WithLabelValues("failure", code).Inc()
}

// RecordSummary sets the run level gauges.
func (c *Collector) RecordSummary(s result.Summary) {
	c.rps.Set(s.Throughput.RequestsPerSecond)
	c.p95.Set(s.Throughput.P95LatencyMs / 1000)
	c.p99.Set(s.Throughput.P99LatencyMs / 1000)
	if s.Verdict.Passed {
		c.passed.Set(1)
	} else {
		c.passed.Set(0)
	}
	if s.Bulk != nil {
		c.bulkBytes.Set(float64(s.Bulk.TotalBytes))
		c.bulkSecs.Set(s.Bulk.DurationSeconds)
	}
}

// Push sends every collected series to the Pushgateway at url.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	log.Debugf("Pushing metrics to %s (job %s)", url, job)
	return push.New(url, job).
		Gatherer(c.registry).
		Grouping("uuid", c.runID).
		PushContext(ctx)
}
