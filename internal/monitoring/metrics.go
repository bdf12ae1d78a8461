package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Metrics holds the run metrics. They are registered on the Registerer passed
// to NewMetrics so tests and one-shot commands can use a private registry.
type Metrics struct {
	runsTotal      *prometheus.CounterVec
	groupsTotal    *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	orphans        prometheus.Gauge
	malformed      prometheus.Gauge
	duplicates     prometheus.Gauge
	indexEntries   prometheus.Gauge
	lastRunSuccess prometheus.Gauge
}

// NewMetrics creates and registers the run metrics on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profile_dedupe_runs_total",
				Help: "Reconciliation runs by mode and outcome",
			},
			[]string{"mode", "outcome"}, // dry|commit, ok|fatal|cancelled
		),
		groupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profile_dedupe_groups_total",
				Help: "Identity groups processed by outcome",
			},
			[]string{"outcome"}, // succeeded, failed, skipped, noop
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "profile_dedupe_run_duration_seconds",
				Help:    "Wall time of a reconciliation run",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"mode"},
		),
		orphans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profile_dedupe_orphans",
			Help: "Documents without a usable handle in the last run",
		}),
		malformed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profile_dedupe_malformed_keys",
			Help: "Keys that did not hold a readable document in the last run",
		}),
		duplicates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profile_dedupe_duplicate_groups",
			Help: "Identity groups with more than one document in the last run",
		}),
		indexEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profile_dedupe_index_entries",
			Help: "Index entries written or planned by the last run",
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profile_dedupe_last_run_success",
			Help: "1 when the last run finished without a fatal error",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.runsTotal, m.groupsTotal, m.runDuration, m.orphans,
		m.malformed, m.duplicates, m.indexEntries, m.lastRunSuccess,
	} {
		if err := reg.Register(c); err != nil {
			return nil, eris.Wrap(err, "monitoring: register metrics")
		}
	}
	return m, nil
}

// Observe records one run.
func (m *Metrics) Observe(s *Snapshot, cancelled bool) {
	mode := "commit"
	if s.DryRun {
		mode = "dry"
	}
	outcome := "ok"
	switch {
	case s.Fatal != "":
		outcome = "fatal"
	case cancelled:
		outcome = "cancelled"
	}
	m.runsTotal.WithLabelValues(mode, outcome).Inc()
	m.runDuration.WithLabelValues(mode).Observe(s.Duration.Seconds())

	if !s.DryRun {
		m.groupsTotal.WithLabelValues("succeeded").Add(float64(s.Succeeded))
		m.groupsTotal.WithLabelValues("failed").Add(float64(s.Failed))
		m.groupsTotal.WithLabelValues("skipped").Add(float64(s.Skipped))
		m.groupsTotal.WithLabelValues("noop").Add(float64(s.Noop))
	}

	m.orphans.Set(float64(s.Orphans))
	m.malformed.Set(float64(s.Malformed))
	m.duplicates.Set(float64(s.Duplicates))
	m.indexEntries.Set(float64(s.IndexEntries))
	if s.Fatal == "" {
		m.lastRunSuccess.Set(1)
	} else {
		m.lastRunSuccess.Set(0)
	}
}

// WriteTextfile writes every metric of g in the node_exporter textfile
// format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	return nil
}
