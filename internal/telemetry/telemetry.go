// Package telemetry implements the Telemetry sink: an OTel span per
// dispatch decision plus structured logging and Prometheus metrics.
//
// Grounded on original_source/aegis/telemetry.py's Telemetry.record_decision
// (one "policy.decision" span carrying agent/tool/decision/params-hash
// attributes, plus a nested "tool.call" span when the request reached the
// adapter) and on the teacher's engine/metrics.go promauto metric set.
package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aegis-gateway/aegis/internal/decisionring"
)

// Metrics mirrors the teacher's engine/metrics.go shape, renamed to the
// aegis domain's labels.
type Metrics struct {
	RequestDuration     *prometheus.HistogramVec
	RequestsTotal       *prometheus.CounterVec
	DecisionsTotal      *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// NewMetrics registers the gateway's metric set against reg. A nil
// Registerer gets a private registry, matching the teacher's null-object
// fallback.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_request_duration_seconds",
			Help:    "Histogram of dispatch request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"agent_id", "tool", "outcome"}),

		RequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_requests_total",
			Help: "Total dispatch requests processed.",
		}, []string{"agent_id", "tool"}),

		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_decisions_total",
			Help: "Total decisions by outcome.",
		}, []string{"outcome"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "aegis_circuit_breaker_state",
			Help: "Current circuit breaker state per tool (0=closed, 1=open).",
		}, []string{"tool"}),
	}
}

// Sink is the Telemetry boundary the Dispatch Orchestrator writes every
// decision to.
type Sink interface {
	RecordDecision(ctx context.Context, d decisionring.Decision)
	Shutdown(ctx context.Context) error
}

// OTelSink emits one "policy.decision" span per decision (with a nested
// "tool.call" span when an adapter call happened), logs the same record via
// zap, and updates Prometheus metrics.
type OTelSink struct {
	tracer  trace.Tracer
	logger  *zap.Logger
	metrics *Metrics
}

// NewOTelSink wraps an already-configured global tracer provider (set up by
// cmd/aegis/main.go) into a Sink.
func NewOTelSink(logger *zap.Logger, metrics *Metrics) *OTelSink {
	return &OTelSink{
		tracer:  otel.Tracer("aegis-gateway"),
		logger:  logger.Named("telemetry"),
		metrics: metrics,
	}
}

func (s *OTelSink) RecordDecision(ctx context.Context, d decisionring.Decision) {
	spanCtx, span := s.tracer.Start(ctx, "policy.decision")
	span.SetAttributes(
		attribute.String("agent.id", d.AgentID),
		attribute.String("tool.name", d.Tool),
		attribute.String("tool.action", d.Action),
		attribute.String("decision.outcome", d.Outcome),
		attribute.String("params.hash", d.ParamsHash),
		attribute.Int64("latency.ms", d.LatencyMS),
		attribute.String("policy.fingerprint", d.PolicyFingerprint),
	)
	if d.ParentAgent != "" {
		span.SetAttributes(attribute.String("parent.agent", d.ParentAgent))
	}
	if d.Reason != "" {
		span.SetAttributes(attribute.String("decision.reason", d.Reason))
	}

	// Nested child span for the adapter call itself, when one happened —
	// mirrors original_source/aegis/telemetry.py's separate "tool.call" span.
	if d.ToolLatencyMS > 0 {
		_, toolSpan := s.tracer.Start(spanCtx, "tool.call")
		toolSpan.SetAttributes(
			attribute.String("tool.name", d.Tool),
			attribute.String("tool.action", d.Action),
			attribute.Int64("latency.ms", d.ToolLatencyMS),
		)
		toolSpan.End()
	}

	span.End()

	s.logger.Info("decision",
		zap.Time("timestamp", d.Timestamp),
		zap.String("agent_id", d.AgentID),
		zap.String("parent_agent", d.ParentAgent),
		zap.String("tool", d.Tool),
		zap.String("action", d.Action),
		zap.String("decision", d.Outcome),
		zap.String("reason", d.Reason),
		zap.String("params_hash", d.ParamsHash),
		zap.Int64("latency_ms", d.LatencyMS),
		zap.Int64("tool_latency_ms", d.ToolLatencyMS),
		zap.String("trace_id", d.TraceID),
		zap.String("policy_fingerprint", d.PolicyFingerprint))

	if s.metrics != nil {
		outcome := d.Outcome
		s.metrics.DecisionsTotal.WithLabelValues(outcome).Inc()
		s.metrics.RequestsTotal.WithLabelValues(d.AgentID, d.Tool).Inc()
		s.metrics.RequestDuration.WithLabelValues(d.AgentID, d.Tool, outcome).
			Observe(time.Duration(d.LatencyMS * int64(time.Millisecond)).Seconds())
	}
}

func (s *OTelSink) Shutdown(ctx context.Context) error {
	return nil // the global TracerProvider's own Shutdown is called by main.go
}
