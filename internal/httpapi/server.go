// Package httpapi exposes the Dispatch Orchestrator over HTTP per §6.
//
// Grounded on the teacher's console/server/server.go: a chi.Mux, the same
// RequestID/RealIP/Logger/Recoverer middleware chain, and one route group
// per concern. The teacher's RS256 auth middleware group is dropped —
// authentication beyond trusting X-Agent-ID is an explicit Non-goal here.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aegis-gateway/aegis/internal/gateway"
	"github.com/aegis-gateway/aegis/internal/policyload"
)

// Server is the HTTP surface over an Orchestrator.
type Server struct {
	router     *chi.Mux
	orch       *gateway.Orchestrator
	logger     *zap.Logger
	warningsFn func() []policyload.LoadWarning
}

// New builds the router and wires every route from §6. warningsFn supplies
// the most recent policy load warnings for /api/admin/policies (§10
// supplemented feature); pass nil if no warning source is available.
func New(orch *gateway.Orchestrator, logger *zap.Logger, warningsFn func() []policyload.LoadWarning) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		orch:       orch,
		logger:     logger.Named("httpapi"),
		warningsFn: warningsFn,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(traceIDMiddleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/tools/{tool}/{action}", s.handleDispatch)
	r.Post("/api/approve/{approval_id}", s.handleApprove)

	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/agents", s.handleAdminAgents)
		r.Get("/policies", s.handleAdminPolicies)
		r.Get("/decisions", s.handleAdminDecisions)
		r.Get("/approvals/pending", s.handleAdminPendingApprovals)
	})
}

// ServeHTTP lets Server stand in as a plain http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
