package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/aegis-gateway/aegis/internal/gateway"
)

// traceIDMiddleware mirrors the teacher's middleware.go TracingMiddleware:
// reuse an inbound X-Trace-ID or mint a fresh uuid, echo it back, and stash
// it in the request context for the orchestrator's decision records.
func traceIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set("X-Trace-ID", traceID)
		next.ServeHTTP(w, r.WithContext(gateway.WithTraceID(r.Context(), traceID)))
	})
}
