// Package policyindex implements the Policy Index (B): a single-writer,
// many-reader atomic reference over the current policytypes.PolicySet.
//
// Grounded on the teacher's KillSwitchManager/SandboxManager "L1 cache behind
// an RWMutex" shape, but generalized to a lock-free atomic.Pointer swap
// (design note "Snapshot publication") since PolicySet is immutable once
// published and the evaluator must never block (§5).
package policyindex

import (
	"sync/atomic"

	"github.com/aegis-gateway/aegis/internal/policytypes"
)

// Index holds the currently-published PolicySet.
type Index struct {
	current atomic.Pointer[policytypes.PolicySet]
}

// New creates an Index seeded with an empty snapshot so Current never
// returns nil before the first Watcher reload completes.
func New() *Index {
	idx := &Index{}
	idx.current.Store(policytypes.Empty())
	return idx
}

// Current returns the current snapshot. Non-blocking.
func (idx *Index) Current() *policytypes.PolicySet {
	return idx.current.Load()
}

// Swap publishes a new snapshot. Only the Watcher calls this.
func (idx *Index) Swap(next *policytypes.PolicySet) {
	idx.current.Store(next)
}
