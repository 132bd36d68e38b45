// Package prometheus provides a prefs.MetricsProvider backed by
// Prometheus collectors.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/secureguard/prefs"
)

const namespace = "prefs"

// Metrics records store, manager and theme events as Prometheus series.
type Metrics struct {
	writes             *prometheus.HistogramVec
	writeFailures      *prometheus.CounterVec
	evictions          prometheus.Counter
	evictionPasses     prometheus.Counter
	corruptedRecords   prometheus.Counter
	validationFailures *prometheus.CounterVec
	violations         *prometheus.CounterVec
	themeTransitions   *prometheus.CounterVec
	themeState         *prometheus.GaugeVec
}

// New creates Metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		writes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "write_duration_seconds",
				Help:      "Duration of store writes by outcome",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"outcome"},
		),
		writeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "write_failures_total",
				Help:      "Store writes given up, by reason",
			},
			[]string{"reason"},
		),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "evicted_keys_total",
			Help:      "Keys removed by eviction",
		}),
		evictionPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "eviction_passes_total",
			Help:      "Eviction passes that removed at least one key",
		}),
		corruptedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "corrupted_records_total",
			Help:      "Undecodable records evicted on read",
		}),
		validationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settings",
				Name:      "validation_failures_total",
				Help:      "Settings that failed the schema, by stage",
			},
			[]string{"stage"},
		),
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settings",
				Name:      "violations_total",
				Help:      "Schema violations found, by stage",
			},
			[]string{"stage"},
		),
		themeTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "theme",
				Name:      "transitions_total",
				Help:      "Theme resolver state transitions",
			},
			[]string{"from", "to"},
		),
		themeState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "theme",
				Name:      "state",
				Help:      "Current theme resolver state, 1 for the active state",
			},
			[]string{"state"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.writes, m.writeFailures, m.evictions, m.evictionPasses, m.corruptedRecords,
		m.validationFailures, m.violations, m.themeTransitions, m.themeState,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew is New that panics on registration errors.
func MustNew(reg prometheus.Registerer) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

// OnThemeStateChange implements prefs.MetricsProvider.
func (m *Metrics) OnThemeStateChange(from, to prefs.ThemeState) {
	m.themeTransitions.WithLabelValues(from.String(), to.String()).Inc()
	m.themeState.WithLabelValues(from.String()).Set(0)
	m.themeState.WithLabelValues(to.String()).Set(1)
}

// OnWriteSuccess implements prefs.MetricsProvider.
func (m *Metrics) OnWriteSuccess(d time.Duration) {
	m.writes.WithLabelValues("success").Observe(d.Seconds())
}

// OnWriteFailure implements prefs.MetricsProvider.
func (m *Metrics) OnWriteFailure(reason string, d time.Duration) {
	m.writes.WithLabelValues("failure").Observe(d.Seconds())
	m.writeFailures.WithLabelValues(reason).Inc()
}

// OnEviction implements prefs.MetricsProvider.
func (m *Metrics) OnEviction(n int) {
	m.evictionPasses.Inc()
	m.evictions.Add(float64(n))
}

// OnCorruptedRecord implements prefs.MetricsProvider.
func (m *Metrics) OnCorruptedRecord() {
	m.corruptedRecords.Inc()
}

// OnValidationFailure implements prefs.MetricsProvider.
func (m *Metrics) OnValidationFailure(stage string, violations int) {
	m.validationFailures.WithLabelValues(stage).Inc()
	m.violations.WithLabelValues(stage).Add(float64(violations))
}

var _ prefs.MetricsProvider = (*Metrics)(nil)
