package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-gateway/aegis/internal/gateway"
)

// handleApprove implements POST /api/approve/{approval_id} (§6).
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	approverID := r.Header.Get("X-Agent-ID")
	if approverID == "" {
		writeReason(w, http.StatusBadRequest, "X-Agent-ID header is required")
		return
	}

	approvalID := chi.URLParam(r, "approval_id")
	outcome := s.orch.Release(r.Context(), approvalID, approverID)

	switch outcome.Kind {
	case gateway.OutcomeApprovalNotFound:
		writeReason(w, http.StatusNotFound, "unknown approval id")
	case gateway.OutcomeApprovalConflict:
		writeReason(w, http.StatusConflict, "approval is "+string(outcome.CurrentStatus))
	case gateway.OutcomeApprovalExpired:
		writeReason(w, http.StatusConflict, "approval expired")
	case gateway.OutcomeForwarded:
		writeJSON(w, http.StatusOK, outcome.AdapterResult.Body)
	case gateway.OutcomeAdapterTimeout:
		writeReason(w, http.StatusGatewayTimeout, "adapter timed out")
	default:
		writeReason(w, http.StatusBadGateway, "adapter error")
	}
}
