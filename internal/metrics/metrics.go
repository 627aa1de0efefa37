// Package metrics exposes pipeline counters on a dedicated Prometheus
// registry, optionally exported as a node-exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/crimson-sun/dumpsift/internal/model"
)

const namespace = "dumpsift"

// Metrics holds the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg *prometheus.Registry

	artifacts     *prometheus.CounterVec
	events        *prometheus.CounterVec
	warnings      *prometheus.CounterVec
	ruleMatches   *prometheus.CounterVec
	groups        prometheus.Gauge
	parseDuration *prometheus.HistogramVec
	caseDuration  prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_total",
			Help:      "Artifacts seen, by classified kind and outcome.",
		}, []string{"kind", "status"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Normalized events, by source.",
		}, []string{"source"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Non-fatal warnings, by kind.",
		}, []string{"kind"}),
		ruleMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_matches_total",
			Help:      "Rule matches, by rule id.",
		}, []string{"rule"}),
		groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "signature_groups",
			Help:      "Signature groups in the last case.",
		}),
		parseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time spent parsing one artifact.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"kind"}),
		caseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "case_duration_seconds",
			Help:      "Wall time of a whole case run.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}
	m.reg.MustRegister(m.artifacts, m.events, m.warnings, m.ruleMatches, m.groups, m.parseDuration, m.caseDuration)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Artifact counts one artifact. Status is "parsed" or "skipped".
func (m *Metrics) Artifact(kind model.ArtifactKind, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.artifacts.WithLabelValues(string(kind), status).Inc()
	if status == StatusParsed {
		m.parseDuration.WithLabelValues(string(kind)).Observe(took.Seconds())
	}
}

// Artifact statuses.
const (
	StatusParsed  = "parsed"
	StatusSkipped = "skipped"
)

// Event counts one normalized event.
func (m *Metrics) Event(src model.Source) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(src)).Inc()
}

// Warning counts one warning.
func (m *Metrics) Warning(kind model.WarningKind) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(string(kind)).Inc()
}

// Matches counts rule matches.
func (m *Metrics) Matches(matches []model.RuleMatch) {
	if m == nil {
		return
	}
	for _, mt := range matches {
		m.ruleMatches.WithLabelValues(mt.RuleID).Inc()
	}
}

// Case records the end of a case run.
func (m *Metrics) Case(groups int, took time.Duration) {
	if m == nil {
		return
	}
	m.groups.Set(float64(groups))
	m.caseDuration.Observe(took.Seconds())
}

// WriteTextfile writes the registry in the text exposition format to path,
// atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
