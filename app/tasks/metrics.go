package tasks

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records pass outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	passes       prometheus.Counter
	feedResults  *prometheus.CounterVec
	newEntries   prometheus.Counter
	diagnostics  *prometheus.CounterVec
	passDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lazyfeed",
			Name:      "sync_passes_total",
			Help:      "Completed synchronization passes.",
		}),
		feedResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lazyfeed",
			Name:      "sync_feed_results_total",
			Help:      "Per-feed sync outcomes by status.",
		}, []string{"status"}),
		newEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lazyfeed",
			Name:      "sync_new_entries_total",
			Help:      "Entries inserted by synchronization passes.",
		}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lazyfeed",
			Name:      "sync_diagnostics_total",
			Help:      "Diagnostics emitted by kind.",
		}, []string{"kind"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lazyfeed",
			Name:      "sync_pass_duration_seconds",
			Help:      "Wall time of synchronization passes.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.passes, m.feedResults, m.newEntries, m.diagnostics, m.passDuration)
	}

	return m
}

func (m *Metrics) observePass(result *PassResult) {
	if m == nil {
		return
	}

	m.passes.Inc()
	m.passDuration.Observe(result.Duration.Seconds())
	m.newEntries.Add(float64(result.NewEntries))
	for _, fr := range result.Feeds {
		m.feedResults.WithLabelValues(string(fr.Status)).Inc()
	}
}

// Notify counts diagnostics so Metrics can sit in a MultiNotifier.
func (m *Metrics) Notify(_ context.Context, d Diagnostic) {
	if m == nil {
		return
	}
	m.diagnostics.WithLabelValues(string(d.Kind)).Inc()
}

var _ Notifier = (*Metrics)(nil)
