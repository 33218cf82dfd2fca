package gateway

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aegis-gateway/aegis/internal/approval"
	"github.com/aegis-gateway/aegis/internal/decisionring"
	"github.com/aegis-gateway/aegis/internal/evaluator"
	"github.com/aegis-gateway/aegis/internal/policyindex"
	"github.com/aegis-gateway/aegis/internal/policytypes"
	"github.com/aegis-gateway/aegis/internal/telemetry"
	"github.com/aegis-gateway/aegis/internal/toolapi"
)

// stubAdapter records the last invocation and returns a canned result.
type stubAdapter struct {
	lastAction string
	lastParams map[string]interface{}
	result     toolapi.Result
	err        error
}

func (s *stubAdapter) Invoke(ctx context.Context, action string, params map[string]interface{}) (toolapi.Result, error) {
	s.lastAction = action
	s.lastParams = params
	return s.result, s.err
}

func newTestOrchestrator() (*Orchestrator, *stubAdapter) {
	idx := policyindex.New()
	idx.Swap(&policytypes.PolicySet{
		Agents: map[string]policytypes.AgentRule{
			"refund-agent": {
				ID: "refund-agent",
				Permissions: []policytypes.Permission{
					{
						Tool:            "payments",
						Actions:         map[string]struct{}{"refund": {}},
						RequireApproval: true,
					},
				},
			},
			"worker-agent": {
				ID: "worker-agent",
				Permissions: []policytypes.Permission{
					{
						Tool:    "payments",
						Actions: map[string]struct{}{"charge": {}},
					},
				},
			},
		},
		VersionFingerprint: "fp-1",
	})

	adapter := &stubAdapter{result: toolapi.Result{Body: map[string]interface{}{"status": "ok"}}}
	orch := New(
		idx,
		approval.New(time.Minute, zap.NewNop()),
		decisionring.New(10),
		map[string]toolapi.Adapter{"payments": adapter},
		telemetry.NewNoopSink(zap.NewNop()),
		zap.NewNop(),
	)
	return orch, adapter
}

func TestOrchestrator_Dispatch_UnknownAgentDenied(t *testing.T) {
	orch, _ := newTestOrchestrator()
	out := orch.Dispatch(context.Background(), evaluator.Request{AgentID: "ghost", Tool: "payments", Action: "charge"})
	if out.Kind != OutcomeDenied {
		t.Fatalf("expected OutcomeDenied, got %v", out.Kind)
	}
}

func TestOrchestrator_Dispatch_AllowForwardsToAdapter(t *testing.T) {
	orch, adapter := newTestOrchestrator()
	out := orch.Dispatch(context.Background(), evaluator.Request{
		AgentID: "worker-agent", Tool: "payments", Action: "charge",
		Params: map[string]interface{}{"amount": 10.0},
	})
	if out.Kind != OutcomeForwarded {
		t.Fatalf("expected OutcomeForwarded, got %v", out.Kind)
	}
	if adapter.lastAction != "charge" {
		t.Fatalf("expected adapter to be invoked with action charge, got %q", adapter.lastAction)
	}
	if len(orch.RecentDecisions(10)) != 1 {
		t.Fatalf("expected one recorded decision")
	}
}

// Scenario 5: a require_approval permission parks the request, a human
// releases it, and only then does the adapter get invoked.
func TestOrchestrator_ApprovalLifecycle_EndToEnd(t *testing.T) {
	orch, adapter := newTestOrchestrator()

	req := evaluator.Request{
		AgentID: "refund-agent", Tool: "payments", Action: "refund",
		Params: map[string]interface{}{"amount": 500.0},
	}
	out := orch.Dispatch(context.Background(), req)
	if out.Kind != OutcomePendingApproval {
		t.Fatalf("expected OutcomePendingApproval, got %v", out.Kind)
	}
	if out.ApprovalID == "" {
		t.Fatalf("expected a non-empty approval id")
	}
	if adapter.lastAction != "" {
		t.Fatalf("adapter must not be invoked before release")
	}

	pending := orch.PendingApprovals()
	if len(pending) != 1 || pending[0].ID != out.ApprovalID {
		t.Fatalf("expected the approval to show up in PendingApprovals, got %+v", pending)
	}
	if pending[0].ParamsHash != HashParams(req.Params) {
		t.Fatalf("expected PendingApprovals to expose the params hash, got %q", pending[0].ParamsHash)
	}

	released := orch.Release(context.Background(), out.ApprovalID, "approver-1")
	if released.Kind != OutcomeForwarded {
		t.Fatalf("expected OutcomeForwarded on release, got %v", released.Kind)
	}
	if adapter.lastAction != "refund" {
		t.Fatalf("expected adapter to be invoked with action refund after release, got %q", adapter.lastAction)
	}

	// Releasing twice must not re-execute.
	again := orch.Release(context.Background(), out.ApprovalID, "approver-1")
	if again.Kind != OutcomeApprovalConflict {
		t.Fatalf("expected OutcomeApprovalConflict on replay, got %v", again.Kind)
	}
}

func TestOrchestrator_Release_UnknownID(t *testing.T) {
	orch, _ := newTestOrchestrator()
	out := orch.Release(context.Background(), "does-not-exist", "approver")
	if out.Kind != OutcomeApprovalNotFound {
		t.Fatalf("expected OutcomeApprovalNotFound, got %v", out.Kind)
	}
}

func TestOrchestrator_Dispatch_NoAdapterRegistered(t *testing.T) {
	idx := policyindex.New()
	idx.Swap(&policytypes.PolicySet{
		Agents: map[string]policytypes.AgentRule{
			"worker-agent": {
				ID: "worker-agent",
				Permissions: []policytypes.Permission{
					{Tool: "files", Actions: map[string]struct{}{"read": {}}},
				},
			},
		},
	})
	orch := New(idx, approval.New(time.Minute, zap.NewNop()), decisionring.New(10), map[string]toolapi.Adapter{}, telemetry.NewNoopSink(zap.NewNop()), zap.NewNop())

	out := orch.Dispatch(context.Background(), evaluator.Request{AgentID: "worker-agent", Tool: "files", Action: "read"})
	if out.Kind != OutcomeAdapterError {
		t.Fatalf("expected OutcomeAdapterError when no adapter is registered, got %v", out.Kind)
	}
}
