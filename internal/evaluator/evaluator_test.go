package evaluator

import (
	"testing"

	"github.com/aegis-gateway/aegis/internal/policytypes"
)

func financeSnapshot() *policytypes.PolicySet {
	agents := map[string]policytypes.AgentRule{
		"finance-agent": {
			ID: "finance-agent",
			Permissions: []policytypes.Permission{
				{
					Tool:    "payments",
					Actions: map[string]struct{}{"charge": {}, "refund": {}},
					Conditions: map[string]policytypes.Condition{
						"max_amount": policytypes.MaxAmount{Value: 5000},
						"currencies": policytypes.Currencies{Set: map[string]struct{}{"USD": {}}},
					},
				},
			},
		},
		"hr-agent": {
			ID: "hr-agent",
			Permissions: []policytypes.Permission{
				{
					Tool:       "files",
					Actions:    map[string]struct{}{"read": {}},
					Conditions: map[string]policytypes.Condition{"folder_prefix": policytypes.FolderPrefix{Prefix: "/hr-docs/"}},
				},
			},
		},
		"worker-agent": {
			ID:               "worker-agent",
			AllowOnlyParents: map[string]struct{}{"orchestrator-agent": {}},
			Permissions: []policytypes.Permission{
				{Tool: "files", Actions: map[string]struct{}{"read": {}}},
			},
		},
		"refund-agent": {
			ID: "refund-agent",
			Permissions: []policytypes.Permission{
				{Tool: "payments", Actions: map[string]struct{}{"refund": {}}, RequireApproval: true},
			},
		},
	}
	return &policytypes.PolicySet{Agents: agents, VersionFingerprint: policytypes.Fingerprint(agents)}
}

// P1: unknown agent always denies with the same reason.
func TestEvaluate_UnknownAgent(t *testing.T) {
	dec := Evaluate(financeSnapshot(), Request{AgentID: "ghost-agent", Tool: "payments", Action: "charge"})
	if dec.Outcome != OutcomeDeny || dec.Reason != "unknown agent" {
		t.Fatalf("got %+v", dec)
	}
}

// Scenario 1: amount over the limit denies.
func TestEvaluate_AmountExceedsLimit(t *testing.T) {
	req := Request{AgentID: "finance-agent", Tool: "payments", Action: "charge",
		Params: map[string]interface{}{"amount": 50000.0, "currency": "USD"}}
	dec := Evaluate(financeSnapshot(), req)
	if dec.Outcome != OutcomeDeny || dec.Reason != "amount exceeds limit" {
		t.Fatalf("got %+v", dec)
	}
}

// Scenario 2: within-limit amount allows.
func TestEvaluate_AmountWithinLimit_Allows(t *testing.T) {
	req := Request{AgentID: "finance-agent", Tool: "payments", Action: "charge",
		Params: map[string]interface{}{"amount": 2000.0, "currency": "USD"}}
	dec := Evaluate(financeSnapshot(), req)
	if dec.Outcome != OutcomeAllow {
		t.Fatalf("got %+v", dec)
	}
}

// Scenario 3: folder_prefix condition.
func TestEvaluate_FolderPrefix(t *testing.T) {
	snap := financeSnapshot()

	allowed := Evaluate(snap, Request{AgentID: "hr-agent", Tool: "files", Action: "read",
		Params: map[string]interface{}{"path": "/hr-docs/employee-handbook.txt"}})
	if allowed.Outcome != OutcomeAllow {
		t.Fatalf("expected allow, got %+v", allowed)
	}

	denied := Evaluate(snap, Request{AgentID: "hr-agent", Tool: "files", Action: "read",
		Params: map[string]interface{}{"path": "/legal/contract.docx"}})
	if denied.Outcome != OutcomeDeny || denied.Reason != "path outside allowed folder" {
		t.Fatalf("expected deny, got %+v", denied)
	}
}

// Scenario 4: allow_only_parents.
func TestEvaluate_AllowOnlyParents(t *testing.T) {
	snap := financeSnapshot()

	missing := Evaluate(snap, Request{AgentID: "worker-agent", Tool: "files", Action: "read"})
	if missing.Outcome != OutcomeDeny || missing.Reason != "parent required" {
		t.Fatalf("got %+v", missing)
	}

	wrong := Evaluate(snap, Request{AgentID: "worker-agent", ParentAgent: "other", Tool: "files", Action: "read"})
	if wrong.Outcome != OutcomeDeny || wrong.Reason != "parent not permitted" {
		t.Fatalf("got %+v", wrong)
	}

	ok := Evaluate(snap, Request{AgentID: "worker-agent", ParentAgent: "orchestrator-agent", Tool: "files", Action: "read"})
	if ok.Outcome != OutcomeAllow {
		t.Fatalf("got %+v", ok)
	}
}

// Scenario 5 (partial — the approval lifecycle itself lives in the approval package).
func TestEvaluate_RequireApproval(t *testing.T) {
	dec := Evaluate(financeSnapshot(), Request{AgentID: "refund-agent", Tool: "payments", Action: "refund"})
	if dec.Outcome != OutcomeApprovalRequired {
		t.Fatalf("got %+v", dec)
	}
}

func TestEvaluate_ActionNotPermitted(t *testing.T) {
	dec := Evaluate(financeSnapshot(), Request{AgentID: "finance-agent", Tool: "payments", Action: "delete"})
	if dec.Outcome != OutcomeDeny || dec.Reason != "action not permitted" {
		t.Fatalf("got %+v", dec)
	}
}

// P2: evaluation is deterministic and side-effect-free across repeated calls.
func TestEvaluate_Deterministic(t *testing.T) {
	snap := financeSnapshot()
	req := Request{AgentID: "finance-agent", Tool: "payments", Action: "charge",
		Params: map[string]interface{}{"amount": 2000.0, "currency": "USD"}}

	first := Evaluate(snap, req)
	for i := 0; i < 10; i++ {
		again := Evaluate(snap, req)
		if again.Outcome != first.Outcome || again.Reason != first.Reason {
			t.Fatalf("evaluation is not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestEvaluate_MissingAmount(t *testing.T) {
	dec := Evaluate(financeSnapshot(), Request{AgentID: "finance-agent", Tool: "payments", Action: "charge",
		Params: map[string]interface{}{"currency": "USD"}})
	if dec.Outcome != OutcomeDeny || dec.Reason != "amount required" {
		t.Fatalf("got %+v", dec)
	}
}

func TestEvaluate_CurrencyNotAllowed(t *testing.T) {
	dec := Evaluate(financeSnapshot(), Request{AgentID: "finance-agent", Tool: "payments", Action: "charge",
		Params: map[string]interface{}{"amount": 100.0, "currency": "JPY"}})
	if dec.Outcome != OutcomeDeny || dec.Reason != "currency not allowed" {
		t.Fatalf("got %+v", dec)
	}
}
