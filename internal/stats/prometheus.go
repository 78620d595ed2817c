package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Exporter exposes a Collector as Prometheus metrics. Values are read from
// the Collector at scrape time.
type Exporter struct {
	collector *Collector
	memoBytes func() uint64

	executions *prometheus.Desc
	validated  *prometheus.Desc
	diskHits   *prometheus.Desc
	diskMisses *prometheus.Desc
	checks     *prometheus.Desc
	seconds    *prometheus.Desc
	maxSeconds *prometheus.Desc
	bytes      *prometheus.Desc
}

var _ prometheus.Collector = (*Exporter)(nil)

// NewExporter returns an Exporter under namespace. memoBytes, if non-nil,
// is reported as the memo footprint gauge.
func NewExporter(namespace string, c *Collector, memoBytes func() uint64) *Exporter {
	label := []string{"query"}
	desc := func(name, help string, labels []string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "query", name), help, labels, nil)
	}
	return &Exporter{
		collector:  c,
		memoBytes:  memoBytes,
		executions: desc("executions_total", "Query body executions.", label),
		validated:  desc("validated_total", "Memoized values re-validated without execution.", label),
		diskHits:   desc("disk_hits_total", "Warm-start cache hits.", label),
		diskMisses: desc("disk_misses_total", "Warm-start cache misses.", label),
		checks:     desc("cancel_checks_total", "Cancellation checkpoints reached.", label),
		seconds:    desc("seconds_total", "Total wall-clock time spent executing.", label),
		maxSeconds: desc("max_seconds", "Longest single execution.", label),
		bytes:      desc("memo_bytes", "Estimated bytes held by memoized values.", nil),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.executions
	ch <- e.validated
	ch <- e.diskHits
	ch <- e.diskMisses
	ch <- e.checks
	ch <- e.seconds
	ch <- e.maxSeconds
	if e.memoBytes != nil {
		ch <- e.bytes
	}
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.collector.Snapshot()
	for _, name := range snap.Names() {
		s := snap[name]
		ch <- prometheus.MustNewConstMetric(e.executions, prometheus.CounterValue, float64(s.Executions), name)
		ch <- prometheus.MustNewConstMetric(e.validated, prometheus.CounterValue, float64(s.ValidatedMemoized), name)
		ch <- prometheus.MustNewConstMetric(e.diskHits, prometheus.CounterValue, float64(s.DiskHits), name)
		ch <- prometheus.MustNewConstMetric(e.diskMisses, prometheus.CounterValue, float64(s.DiskMisses), name)
		ch <- prometheus.MustNewConstMetric(e.checks, prometheus.CounterValue, float64(s.CancelChecks), name)
		ch <- prometheus.MustNewConstMetric(e.seconds, prometheus.CounterValue, s.TotalTime.Seconds(), name)
		ch <- prometheus.MustNewConstMetric(e.maxSeconds, prometheus.GaugeValue, s.MaxTime.Seconds(), name)
	}
	if e.memoBytes != nil {
		ch <- prometheus.MustNewConstMetric(e.bytes, prometheus.GaugeValue, float64(e.memoBytes()))
	}
}
