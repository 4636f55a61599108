// Package metrics exports support pipeline events in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/supportdesk/ai/observability"
)

const (
	namespace = "supportdesk"
	subsystem = "ai"
)

// PrometheusExporter is an observability.Observer backed by Prometheus collectors.
type PrometheusExporter struct {
	registry *prometheus.Registry

	inferenceAttempts *prometheus.CounterVec
	inferenceLatency  *prometheus.HistogramVec
	inferenceTokens   *prometheus.CounterVec

	routingDecisions *prometheus.CounterVec
	sanitizerMatches *prometheus.CounterVec
	sanitizerErrors  prometheus.Counter

	escalations *prometheus.CounterVec
	failures    *prometheus.CounterVec

	turns       *prometheus.CounterVec
	turnLatency *prometheus.HistogramVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.inferenceAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "inference_attempts_total",
			Help:      "Inference backend attempts by outcome",
		},
		[]string{"backend", "outcome"},
	)
	e.inferenceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "inference_latency_seconds",
			Help:      "Inference backend attempt latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"backend"},
	)
	e.inferenceTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "inference_tokens_total",
			Help:      "Tokens consumed by successful inference attempts",
		},
		[]string{"backend", "model"},
	)
	e.routingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "routing_decisions_total",
			Help:      "Dispatcher decisions by target and method",
		},
		[]string{"target", "method"},
	)
	e.sanitizerMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sanitizer_matches_total",
			Help:      "Sensitive spans masked by type",
		},
		[]string{"type"},
	)
	e.sanitizerErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sanitizer_malformed_total",
			Help:      "Inputs passed through unmodified because they were malformed",
		},
	)
	e.escalations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "escalations_total",
			Help:      "Conversations handed off to a human by trigger",
		},
		[]string{"trigger"},
	)
	e.failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "failures_total",
			Help:      "Non-fatal pipeline failures by stage",
		},
		[]string{"stage"},
	)
	e.turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turns_total",
			Help:      "Completed turns by specialist",
		},
		[]string{"specialist", "escalated"},
	)
	e.turnLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turn_latency_seconds",
			Help:      "End-to-end turn latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"specialist"},
	)

	registry.MustRegister(
		e.inferenceAttempts,
		e.inferenceLatency,
		e.inferenceTokens,
		e.routingDecisions,
		e.sanitizerMatches,
		e.sanitizerErrors,
		e.escalations,
		e.failures,
		e.turns,
		e.turnLatency,
	)
	return e
}

func (e *PrometheusExporter) InferenceAttempt(_ context.Context, ev observability.AttemptEvent) {
	e.inferenceAttempts.WithLabelValues(ev.Backend, ev.Outcome).Inc()
	e.inferenceLatency.WithLabelValues(ev.Backend).Observe(ev.Latency.Seconds())
	if ev.Tokens > 0 {
		e.inferenceTokens.WithLabelValues(ev.Backend, ev.Model).Add(float64(ev.Tokens))
	}
}

func (e *PrometheusExporter) RoutingDecided(_ context.Context, ev observability.RoutingEvent) {
	e.routingDecisions.WithLabelValues(ev.Target, ev.Method).Inc()
}

func (e *PrometheusExporter) Sanitized(_ context.Context, ev observability.SanitizeEvent) {
	if ev.Malformed {
		e.sanitizerErrors.Inc()
	}
	for typ, n := range ev.Matches {
		e.sanitizerMatches.WithLabelValues(typ).Add(float64(n))
	}
}

func (e *PrometheusExporter) Escalated(_ context.Context, ev observability.EscalationEvent) {
	e.escalations.WithLabelValues(ev.Trigger).Inc()
}

func (e *PrometheusExporter) Failed(_ context.Context, ev observability.FailureEvent) {
	e.failures.WithLabelValues(ev.Stage).Inc()
}

func (e *PrometheusExporter) TurnCompleted(_ context.Context, ev observability.TurnEvent) {
	escalated := "false"
	if ev.Escalated {
		escalated = "true"
	}
	e.turns.WithLabelValues(ev.Specialist, escalated).Inc()
	e.turnLatency.WithLabelValues(ev.Specialist).Observe(ev.Latency.Seconds())
}

// Handler returns an HTTP handler serving the registry.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// GetRegistry returns the underlying registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}

// ExportText renders the current metrics in the text exposition format.
func (e *PrometheusExporter) ExportText() (string, error) {
	families, err := e.registry.Gather()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			sb.WriteString(mf.GetName())
			for _, lp := range m.GetLabel() {
				sb.WriteString(" ")
				sb.WriteString(lp.GetName())
				sb.WriteString("=")
				sb.WriteString(lp.GetValue())
			}
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

var _ observability.Observer = (*PrometheusExporter)(nil)
