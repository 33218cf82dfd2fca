package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-gateway/aegis/internal/evaluator"
	"github.com/aegis-gateway/aegis/internal/gateway"
)

// handleDispatch implements POST /tools/{tool}/{action} (§6).
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	agentID := r.Header.Get("X-Agent-ID")
	if agentID == "" {
		writeReason(w, http.StatusBadRequest, "X-Agent-ID header is required")
		return
	}

	var params map[string]interface{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeReason(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	req := evaluator.Request{
		AgentID:     agentID,
		ParentAgent: r.Header.Get("X-Parent-Agent"),
		Tool:        chi.URLParam(r, "tool"),
		Action:      chi.URLParam(r, "action"),
		Params:      params,
	}

	outcome := s.orch.Dispatch(r.Context(), req)

	switch outcome.Kind {
	case gateway.OutcomeDenied:
		writeReason(w, http.StatusForbidden, outcome.Reason)
	case gateway.OutcomePendingApproval:
		writeJSON(w, http.StatusAccepted, map[string]string{"approval_id": outcome.ApprovalID})
	case gateway.OutcomeForwarded:
		writeJSON(w, http.StatusOK, outcome.AdapterResult.Body)
	case gateway.OutcomeAdapterTimeout:
		writeReason(w, http.StatusGatewayTimeout, "adapter timed out")
	default:
		writeReason(w, http.StatusBadGateway, "adapter error")
	}
}
