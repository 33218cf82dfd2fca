package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aegis-gateway/aegis/internal/approval"
	"github.com/aegis-gateway/aegis/internal/decisionring"
	"github.com/aegis-gateway/aegis/internal/gateway"
	"github.com/aegis-gateway/aegis/internal/policyindex"
	"github.com/aegis-gateway/aegis/internal/policyload"
	"github.com/aegis-gateway/aegis/internal/policytypes"
	"github.com/aegis-gateway/aegis/internal/telemetry"
	"github.com/aegis-gateway/aegis/internal/toolapi"
)

type okAdapter struct{}

func (okAdapter) Invoke(ctx context.Context, action string, params map[string]interface{}) (toolapi.Result, error) {
	return toolapi.Result{Body: map[string]interface{}{"action": action}}, nil
}

func newTestServer() *Server {
	idx := policyindex.New()
	idx.Swap(&policytypes.PolicySet{
		Agents: map[string]policytypes.AgentRule{
			"worker-agent": {
				ID: "worker-agent",
				Permissions: []policytypes.Permission{
					{Tool: "payments", Actions: map[string]struct{}{"charge": {}}},
				},
			},
			"refund-agent": {
				ID: "refund-agent",
				Permissions: []policytypes.Permission{
					{Tool: "payments", Actions: map[string]struct{}{"refund": {}}, RequireApproval: true},
				},
			},
		},
	})
	orch := gateway.New(
		idx,
		approval.New(time.Minute, zap.NewNop()),
		decisionring.New(10),
		map[string]toolapi.Adapter{"payments": okAdapter{}},
		telemetry.NewNoopSink(zap.NewNop()),
		zap.NewNop(),
	)
	warnings := func() []policyload.LoadWarning {
		return []policyload.LoadWarning{{Path: "bad.yaml", Reason: "parse error"}}
	}
	return New(orch, zap.NewNop(), warnings)
}

func TestHealth_Returns200(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestDispatch_MissingAgentHeader_Returns400(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/tools/payments/charge", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDispatch_Allowed_Returns200WithAdapterBody(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/tools/payments/charge", strings.NewReader(`{"amount":10}`))
	req.Header.Set("X-Agent-ID", "worker-agent")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if body["action"] != "charge" {
		t.Fatalf("expected adapter body passthrough, got %v", body)
	}
}

func TestDispatch_Denied_Returns403WithReason(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/tools/payments/charge", strings.NewReader("{}"))
	req.Header.Set("X-Agent-ID", "ghost-agent")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["reason"] == "" {
		t.Fatalf("expected a sanitized reason field, got %v", body)
	}
}

func TestDispatch_InvalidJSON_Returns400(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/tools/payments/charge", strings.NewReader("not json"))
	req.Header.Set("X-Agent-ID", "worker-agent")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDispatch_RequiresApproval_Returns202(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/tools/payments/refund", strings.NewReader("{}"))
	req.Header.Set("X-Agent-ID", "refund-agent")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["approval_id"] == "" {
		t.Fatalf("expected approval_id in response, got %v", body)
	}
}

func TestApprove_UnknownID_Returns404(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/approve/does-not-exist", nil)
	req.Header.Set("X-Agent-ID", "approver")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestApprove_FullLifecycle_Returns200(t *testing.T) {
	s := newTestServer()

	dispatchReq := httptest.NewRequest(http.MethodPost, "/tools/payments/refund", strings.NewReader("{}"))
	dispatchReq.Header.Set("X-Agent-ID", "refund-agent")
	dispatchRec := httptest.NewRecorder()
	s.ServeHTTP(dispatchRec, dispatchReq)

	var dispatched map[string]string
	_ = json.Unmarshal(dispatchRec.Body.Bytes(), &dispatched)
	approvalID := dispatched["approval_id"]

	approveReq := httptest.NewRequest(http.MethodPost, "/api/approve/"+approvalID, nil)
	approveReq.Header.Set("X-Agent-ID", "approver-1")
	approveRec := httptest.NewRecorder()
	s.ServeHTTP(approveRec, approveReq)

	if approveRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on release, got %d: %s", approveRec.Code, approveRec.Body.String())
	}
}

func TestAdminAgents_ListsKnownAgents(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/agents", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var body map[string][]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body["agents"]) != 2 {
		t.Fatalf("expected 2 agents, got %v", body["agents"])
	}
}

func TestAdminPolicies_IncludesLastWarnings(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/policies", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	warnings, ok := body["last_warnings"].([]interface{})
	if !ok || len(warnings) != 1 {
		t.Fatalf("expected one last_warnings entry, got %v", body["last_warnings"])
	}
}

// §7/§4.7: admin export of pending approvals must carry a params hash, never
// the raw request params.
func TestAdminPendingApprovals_NeverLeaksRawParams(t *testing.T) {
	s := newTestServer()

	dispatchReq := httptest.NewRequest(http.MethodPost, "/tools/payments/refund", strings.NewReader(`{"amount":500,"account":"acct-secret-123"}`))
	dispatchReq.Header.Set("X-Agent-ID", "refund-agent")
	s.ServeHTTP(httptest.NewRecorder(), dispatchReq)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/approvals/pending", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if strings.Contains(rec.Body.String(), "acct-secret-123") {
		t.Fatalf("expected raw params to be absent from the admin pending-approvals response, got %s", rec.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	pending, ok := body["pending_approvals"].([]interface{})
	if !ok || len(pending) != 1 {
		t.Fatalf("expected one pending approval, got %v", body["pending_approvals"])
	}
	entry := pending[0].(map[string]interface{})
	if _, hasParams := entry["params"]; hasParams {
		t.Fatalf("expected no raw params field in admin export, got %v", entry)
	}
	if entry["params_hash"] == "" || entry["params_hash"] == nil {
		t.Fatalf("expected a non-empty params_hash field, got %v", entry)
	}
}

func TestAdminDecisions_DefaultLimit(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/decisions", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestTraceID_EchoedAndMintedWhenAbsent(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Fatalf("expected a minted X-Trace-ID header")
	}
}

func TestTraceID_EchoesProvidedValue(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Trace-ID"); got != "trace-123" {
		t.Fatalf("expected echoed trace id trace-123, got %q", got)
	}
}
