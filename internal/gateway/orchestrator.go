// Package gateway implements the Dispatch Orchestrator (G): the one
// component that ties Evaluator, ApprovalStore, Decision Ring, ToolAdapter,
// and Telemetry together per request.
//
// Grounded on the teacher's engine/gateway.go UAGCore.ProcessAction: metrics
// on entry, trace-id extraction, a policy check, a dispatch to the executor,
// and an audit write on every terminal path. The teacher's kill-switch,
// quarantine, and sandbox branches are dropped — their domain (forced
// sandboxing, org-wide agent blocking) has no analogue in this spec; the
// approval-required branch plays their role as the "don't execute yet" path.
package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aegis-gateway/aegis/internal/approval"
	"github.com/aegis-gateway/aegis/internal/decisionring"
	"github.com/aegis-gateway/aegis/internal/evaluator"
	"github.com/aegis-gateway/aegis/internal/policyindex"
	"github.com/aegis-gateway/aegis/internal/telemetry"
	"github.com/aegis-gateway/aegis/internal/toolapi"
)

// OutcomeKind is the closed sum of DispatchOutcome's possible shapes.
type OutcomeKind int

const (
	OutcomeDenied OutcomeKind = iota
	OutcomePendingApproval
	OutcomeForwarded
	OutcomeAdapterError
	OutcomeAdapterTimeout
	OutcomeApprovalNotFound
	OutcomeApprovalConflict
	OutcomeApprovalExpired
)

// DispatchOutcome is what Dispatch and Release return to the HTTP layer.
type DispatchOutcome struct {
	Kind          OutcomeKind
	Reason        string // for OutcomeDenied
	ApprovalID    string // for OutcomePendingApproval
	AdapterResult toolapi.Result
	CurrentStatus approval.Status // for OutcomeApprovalConflict
}

// Orchestrator is component G.
type Orchestrator struct {
	index    *policyindex.Index
	approval *approval.Store
	ring     *decisionring.Ring
	adapters map[string]toolapi.Adapter
	sink     telemetry.Sink
	logger   *zap.Logger
}

// New wires the core services into an Orchestrator. adapters maps tool name
// (e.g. "payments", "files") to the Adapter that serves it.
func New(index *policyindex.Index, store *approval.Store, ring *decisionring.Ring, adapters map[string]toolapi.Adapter, sink telemetry.Sink, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		index:    index,
		approval: store,
		ring:     ring,
		adapters: adapters,
		sink:     sink,
		logger:   logger.Named("gateway"),
	}
}

// Dispatch implements §4.7's dispatch operation.
func (o *Orchestrator) Dispatch(ctx context.Context, req evaluator.Request) DispatchOutcome {
	start := time.Now()
	traceID := traceIDFromContext(ctx)
	snapshot := o.index.Current()

	dec := evaluator.Evaluate(snapshot, req)

	switch dec.Outcome {
	case evaluator.OutcomeDeny:
		o.record(ctx, req, "deny", dec.Reason, start, traceID, snapshot.VersionFingerprint, 0)
		return DispatchOutcome{Kind: OutcomeDenied, Reason: dec.Reason}

	case evaluator.OutcomeApprovalRequired:
		id := o.approval.Create(req, *dec.MatchedPermission)
		o.record(ctx, req, "approval_required", "", start, traceID, snapshot.VersionFingerprint, 0)
		return DispatchOutcome{Kind: OutcomePendingApproval, ApprovalID: id}

	case evaluator.OutcomeAllow:
		adapter, ok := o.adapters[req.Tool]
		if !ok {
			o.record(ctx, req, "allow", "", start, traceID, snapshot.VersionFingerprint, 0)
			return DispatchOutcome{Kind: OutcomeAdapterError}
		}
		toolStart := time.Now()
		result, err := adapter.Invoke(ctx, req.Action, req.Params)
		toolLatency := time.Since(toolStart)
		o.record(ctx, req, "allow", "", start, traceID, snapshot.VersionFingerprint, toolLatency)
		if err != nil {
			if ctx.Err() != nil {
				return DispatchOutcome{Kind: OutcomeAdapterTimeout}
			}
			return DispatchOutcome{Kind: OutcomeAdapterError}
		}
		return DispatchOutcome{Kind: OutcomeForwarded, AdapterResult: result}
	}

	return DispatchOutcome{Kind: OutcomeAdapterError}
}

// Release implements §4.7's release operation: it never re-evaluates
// policy, only re-plays the permission issued at approval-creation time.
func (o *Orchestrator) Release(ctx context.Context, approvalID, approverID string) DispatchOutcome {
	result := o.approval.Release(approvalID, approverID)

	switch result.Outcome {
	case approval.ReleaseNotFound:
		return DispatchOutcome{Kind: OutcomeApprovalNotFound}
	case approval.ReleaseConflict:
		return DispatchOutcome{Kind: OutcomeApprovalConflict, CurrentStatus: result.CurrentStatus}
	case approval.ReleaseExpired:
		return DispatchOutcome{Kind: OutcomeApprovalExpired}
	}

	start := time.Now()
	traceID := traceIDFromContext(ctx)
	snapshot := o.index.Current()

	adapter, ok := o.adapters[result.Request.Tool]
	if !ok {
		o.record(ctx, result.Request, "approved_executed", "", start, traceID, snapshot.VersionFingerprint, 0)
		return DispatchOutcome{Kind: OutcomeAdapterError}
	}

	toolStart := time.Now()
	adapterResult, err := adapter.Invoke(ctx, result.Request.Action, result.Request.Params)
	toolLatency := time.Since(toolStart)
	o.record(ctx, result.Request, "approved_executed", "", start, traceID, snapshot.VersionFingerprint, toolLatency)
	if err != nil {
		if ctx.Err() != nil {
			return DispatchOutcome{Kind: OutcomeAdapterTimeout}
		}
		return DispatchOutcome{Kind: OutcomeAdapterError}
	}
	return DispatchOutcome{Kind: OutcomeForwarded, AdapterResult: adapterResult}
}

// ListAgents, ListSources, RecentDecisions, PendingApprovals back the admin
// surface (§6).
func (o *Orchestrator) ListAgents() []string {
	return o.index.Current().AgentIDs()
}

func (o *Orchestrator) ListSources() []struct {
	Path       string
	Version    int
	AgentCount int
} {
	snapshot := o.index.Current()
	out := make([]struct {
		Path       string
		Version    int
		AgentCount int
	}, 0, len(snapshot.Sources))
	for _, s := range snapshot.Sources {
		out = append(out, struct {
			Path       string
			Version    int
			AgentCount int
		}{s.Path, s.Version, s.AgentCount})
	}
	return out
}

func (o *Orchestrator) RecentDecisions(limit int) []decisionring.Decision {
	return o.ring.Snapshot(limit)
}

// PendingApprovalView is the admin-facing projection of an approval.Record:
// Params is replaced by its hash, never exported verbatim (§7, §4.7).
type PendingApprovalView struct {
	ID          string
	AgentID     string
	ParentAgent string
	Tool        string
	Action      string
	ParamsHash  string
	Status      approval.Status
	CreatedAt   time.Time
}

func (o *Orchestrator) PendingApprovals() []PendingApprovalView {
	records := o.approval.ListPending()
	out := make([]PendingApprovalView, 0, len(records))
	for _, rec := range records {
		out = append(out, PendingApprovalView{
			ID:          rec.ID,
			AgentID:     rec.Request.AgentID,
			ParentAgent: rec.Request.ParentAgent,
			Tool:        rec.Request.Tool,
			Action:      rec.Request.Action,
			ParamsHash:  HashParams(rec.Request.Params),
			Status:      rec.Status,
			CreatedAt:   rec.CreatedAt,
		})
	}
	return out
}

func (o *Orchestrator) record(ctx context.Context, req evaluator.Request, outcome, reason string, start time.Time, traceID, fingerprint string, toolLatency time.Duration) {
	d := decisionring.Decision{
		Timestamp:         start,
		AgentID:           req.AgentID,
		ParentAgent:       req.ParentAgent,
		Tool:              req.Tool,
		Action:            req.Action,
		Outcome:           outcome,
		Reason:            reason,
		ParamsHash:        HashParams(req.Params),
		LatencyMS:         time.Since(start).Milliseconds(),
		ToolLatencyMS:     toolLatency.Milliseconds(),
		TraceID:           traceID,
		PolicyFingerprint: fingerprint,
	}
	o.ring.Append(d)
	o.sink.RecordDecision(ctx, d)
}

type traceIDKeyType struct{}

var traceIDKey traceIDKeyType

// WithTraceID attaches a trace id to ctx, mirroring the teacher's
// middleware.go TracingMiddleware context key pattern.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

func traceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}
