package httpapi

import (
	"net/http"
	"strconv"

	"github.com/aegis-gateway/aegis/internal/decisionring"
	"github.com/aegis-gateway/aegis/internal/gateway"
)

const defaultDecisionsLimit = 50

// handleAdminAgents implements GET /api/admin/agents (§6).
func (s *Server) handleAdminAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": s.orch.ListAgents()})
}

// handleAdminPolicies implements GET /api/admin/policies (§6), plus the §10
// supplemented last_warnings field surfacing why a source file was dropped.
func (s *Server) handleAdminPolicies(w http.ResponseWriter, r *http.Request) {
	sources := s.orch.ListSources()
	policies := make([]map[string]interface{}, 0, len(sources))
	for _, src := range sources {
		policies = append(policies, map[string]interface{}{
			"path":        src.Path,
			"version":     src.Version,
			"agent_count": src.AgentCount,
		})
	}

	body := map[string]interface{}{"policies": policies}
	if s.warningsFn != nil {
		warnings := s.warningsFn()
		reasons := make([]string, 0, len(warnings))
		for _, w := range warnings {
			reasons = append(reasons, w.String())
		}
		body["last_warnings"] = reasons
	}
	writeJSON(w, http.StatusOK, body)
}

// handleAdminDecisions implements GET /api/admin/decisions?limit= (§6). The
// §6 decision record JSON shape is snake_case with decision/parent_agent
// keys, which decisionring.Decision's Go-cased fields don't match, so each
// record is projected into an explicit map rather than serialized raw.
func (s *Server) handleAdminDecisions(w http.ResponseWriter, r *http.Request) {
	limit := defaultDecisionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	recent := s.orch.RecentDecisions(limit)
	decisions := make([]map[string]interface{}, 0, len(recent))
	for _, d := range recent {
		decisions = append(decisions, decisionJSON(d))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decisions": decisions})
}

func decisionJSON(d decisionring.Decision) map[string]interface{} {
	return map[string]interface{}{
		"timestamp":          d.Timestamp,
		"agent_id":           d.AgentID,
		"parent_agent":       nullableString(d.ParentAgent),
		"tool":               d.Tool,
		"action":             d.Action,
		"decision":           d.Outcome,
		"reason":             d.Reason,
		"params_hash":        d.ParamsHash,
		"latency_ms":         d.LatencyMS,
		"tool_latency_ms":    d.ToolLatencyMS,
		"trace_id":           d.TraceID,
		"policy_fingerprint": d.PolicyFingerprint,
	}
}

// handleAdminPendingApprovals implements GET /api/admin/approvals/pending
// (§6), projected into the same snake_case shape as handleAdminDecisions.
func (s *Server) handleAdminPendingApprovals(w http.ResponseWriter, r *http.Request) {
	pending := s.orch.PendingApprovals()
	views := make([]map[string]interface{}, 0, len(pending))
	for _, p := range pending {
		views = append(views, pendingApprovalJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pending_approvals": views})
}

func pendingApprovalJSON(p gateway.PendingApprovalView) map[string]interface{} {
	return map[string]interface{}{
		"id":           p.ID,
		"agent_id":     p.AgentID,
		"parent_agent": nullableString(p.ParentAgent),
		"tool":         p.Tool,
		"action":       p.Action,
		"params_hash":  p.ParamsHash,
		"status":       p.Status,
		"created_at":   p.CreatedAt,
	}
}

// nullableString returns nil for "" so it marshals as JSON null rather than
// an empty string, matching §6's parent_agent|null shape.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
