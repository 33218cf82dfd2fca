// Package approval implements the Approval Store (E): pending human-in-the-
// loop releases, keyed by UUID, with an atomic pending->approved->executed
// claim and a TTL sweeper.
//
// Grounded on the teacher's approval_repo.go UpdateApprovalStatus, which
// uses `UPDATE ... WHERE status = 'PENDING' RETURNING ...` as a single
// atomic claim to prevent double-decision. Persistence is an explicit
// spec Non-goal, so the same claim is reimplemented here as a mutex-guarded
// in-memory map rather than a SQL statement — same invariant, no database.
package approval

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegis-gateway/aegis/internal/evaluator"
	"github.com/aegis-gateway/aegis/internal/policytypes"

	"sync"
)

// Status is the lifecycle state of a PendingApproval.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusExecuted Status = "executed"
	StatusExpired  Status = "expired"
)

// Record is a PendingApproval.
type Record struct {
	ID                string
	Request           evaluator.Request
	MatchedPermission policytypes.Permission
	Status            Status
	CreatedAt         time.Time
	ApproverID        string
}

// ReleaseOutcome is the closed sum of Release's possible results.
type ReleaseOutcome int

const (
	ReleaseNotFound ReleaseOutcome = iota
	ReleaseConflict
	ReleaseExpired
	ReleaseReady
)

// ReleaseResult is what Release returns.
type ReleaseResult struct {
	Outcome ReleaseOutcome
	// CurrentStatus is populated on ReleaseConflict, for the 409 body.
	CurrentStatus Status
	// Request/MatchedPermission are populated on ReleaseReady; the caller
	// (the Dispatch Orchestrator) invokes the adapter with this snapshot
	// without re-evaluating policy.
	Request           evaluator.Request
	MatchedPermission policytypes.Permission
}

// Store holds pending approvals under a single mutex. The mutex guards both
// the map and each entry's status transition, which is what makes Release
// atomic across concurrent callers racing the same id.
type Store struct {
	mu      sync.Mutex
	records map[string]*Record
	ttl     time.Duration
	logger  *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// New creates a Store with the given approval TTL.
func New(ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{
		records: map[string]*Record{},
		ttl:     ttl,
		logger:  logger.Named("approval-store"),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Create allocates a new pending approval and returns its id.
func (s *Store) Create(req evaluator.Request, perm policytypes.Permission) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.records[id] = &Record{
		ID:                id,
		Request:           req,
		MatchedPermission: perm,
		Status:            StatusPending,
		CreatedAt:         time.Now(),
	}
	s.mu.Unlock()
	return id
}

// Release attempts the pending -> approved -> executed transition for id.
// The entire check-TTL-then-transition sequence runs under s.mu, so two
// concurrent Release calls for the same id can never both observe
// StatusPending (§8 P4).
func (s *Store) Release(id, approverID string) ReleaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ReleaseResult{Outcome: ReleaseNotFound}
	}

	if rec.Status != StatusPending {
		return ReleaseResult{Outcome: ReleaseConflict, CurrentStatus: rec.Status}
	}

	if time.Since(rec.CreatedAt) > s.ttl {
		rec.Status = StatusExpired
		return ReleaseResult{Outcome: ReleaseExpired}
	}

	rec.Status = StatusApproved
	rec.ApproverID = approverID
	rec.Status = StatusExecuted // single critical section: pending -> executed

	return ReleaseResult{
		Outcome:           ReleaseReady,
		Request:           rec.Request,
		MatchedPermission: rec.MatchedPermission,
	}
}

// ListPending returns a snapshot of currently-pending records, for the admin view.
func (s *Store) ListPending() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if rec.Status == StatusPending {
			out = append(out, *rec)
		}
	}
	return out
}

// RunSweeper periodically marks expired pending entries as expired. Blocks
// until ctx-equivalent Stop is called; run it in its own goroutine.
func (s *Store) RunSweeper(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, rec := range s.records {
		if rec.Status == StatusPending && now.Sub(rec.CreatedAt) > s.ttl {
			rec.Status = StatusExpired
			s.logger.Info("approval expired", zap.String("approval_id", id))
		}
	}
}

// Stop terminates the sweeper goroutine and waits for it to exit.
func (s *Store) Stop() {
	close(s.stop)
	<-s.done
}
