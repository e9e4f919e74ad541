// Package metrics exposes Prometheus counters for the detection engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine's counters on a private registry.
type Collector struct {
	registry *prometheus.Registry

	ObservationsTotal *prometheus.CounterVec
	AnomaliesTotal    *prometheus.CounterVec
	SuppressedTotal   *prometheus.CounterVec
	RuleFailures      *prometheus.CounterVec
	HandlerFailures   prometheus.Counter
	QueueDropped      prometheus.Counter
	RulesLoaded       *prometheus.GaugeVec
}

// New creates a collector and registers its metrics.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ObservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "observations_total",
			Help:      "Observations evaluated, by domain.",
		}, []string{"domain"}),
		AnomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "anomalies_total",
			Help:      "Anomalies emitted, by domain, rule kind and severity.",
		}, []string{"domain", "kind", "severity"}),
		SuppressedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "cooldown_suppressed_total",
			Help:      "Heuristic matches suppressed by the rule cooldown.",
		}, []string{"domain"}),
		RuleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "rule_failures_total",
			Help:      "Rules skipped during evaluation because of an internal failure.",
		}, []string{"kind"}),
		HandlerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "anomaly_handler_failures_total",
			Help:      "Anomaly consumer callbacks that returned an error.",
		}),
		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "observation_queue_dropped_total",
			Help:      "Observations dropped because the intake queue was full.",
		}),
		RulesLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "rules_loaded",
			Help:      "Rules currently held by the engine, by kind.",
		}, []string{"kind"}),
	}
	c.registry.MustRegister(
		c.ObservationsTotal,
		c.AnomaliesTotal,
		c.SuppressedTotal,
		c.RuleFailures,
		c.HandlerFailures,
		c.QueueDropped,
		c.RulesLoaded,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// The recording helpers below accept a nil receiver so callers that run
// without metrics need no guards.

// ObservationEvaluated counts one evaluated observation.
func (c *Collector) ObservationEvaluated(domain string) {
	if c == nil {
		return
	}
	c.ObservationsTotal.WithLabelValues(domain).Inc()
}

// AnomalyEmitted counts one emitted anomaly.
func (c *Collector) AnomalyEmitted(domain, kind, severity string) {
	if c == nil {
		return
	}
	c.AnomaliesTotal.WithLabelValues(domain, kind, severity).Inc()
}

// Suppressed counts one heuristic match held back by its cooldown.
func (c *Collector) Suppressed(domain string) {
	if c == nil {
		return
	}
	c.SuppressedTotal.WithLabelValues(domain).Inc()
}

// RuleFailed counts one rule skipped during evaluation.
func (c *Collector) RuleFailed(kind string) {
	if c == nil {
		return
	}
	c.RuleFailures.WithLabelValues(kind).Inc()
}

// HandlerFailed counts one failed anomaly callback.
func (c *Collector) HandlerFailed() {
	if c == nil {
		return
	}
	c.HandlerFailures.Inc()
}

// Dropped counts one observation rejected by a full queue.
func (c *Collector) Dropped() {
	if c == nil {
		return
	}
	c.QueueDropped.Inc()
}

// SetRules records the number of rules of a kind.
func (c *Collector) SetRules(kind string, n int) {
	if c == nil {
		return
	}
	c.RulesLoaded.WithLabelValues(kind).Set(float64(n))
}
