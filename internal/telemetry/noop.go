package telemetry

import (
	"context"

	"go.uber.org/zap"

	"github.com/aegis-gateway/aegis/internal/decisionring"
)

// NoopSink still logs via zap (ambient logging is never optional) but skips
// span export entirely. Used when OTEL_ENDPOINT is unset.
type NoopSink struct {
	logger *zap.Logger
}

func NewNoopSink(logger *zap.Logger) *NoopSink {
	return &NoopSink{logger: logger.Named("telemetry")}
}

func (s *NoopSink) RecordDecision(ctx context.Context, d decisionring.Decision) {
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
}

func (s *NoopSink) Shutdown(ctx context.Context) error { return nil }
