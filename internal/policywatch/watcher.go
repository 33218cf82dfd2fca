// Package policywatch implements the Policy Watcher (C): it watches
// POLICY_DIR for filesystem events and triggers a reload into the
// Policy Index on a debounce.
//
// Grounded on ppiankov-chainwatch's internal/daemon watcher.go and
// internal/server/reload.go: a single time.Timer reset on every event,
// never a per-event goroutine or a queue (design note "no thundering herd
// of reload goroutines"). Logging follows the teacher's zap idiom instead
// of chainwatch's fmt.Fprintf(os.Stderr, ...).
package policywatch

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/aegis-gateway/aegis/internal/policyindex"
	"github.com/aegis-gateway/aegis/internal/policyload"
)

const debounceWindow = 300 * time.Millisecond

// Watcher reloads dir into idx on every debounced filesystem change.
type Watcher struct {
	dir    string
	idx    *policyindex.Index
	logger *zap.Logger

	// lastWarnings is the most recent set of per-file load warnings,
	// exposed for the admin surface (§10 supplemented "last load warnings").
	// Reload runs on the watcher goroutine; LastWarnings is read concurrently
	// from HTTP handler goroutines, so access is guarded by warningsMu.
	warningsMu   sync.RWMutex
	lastWarnings []policyload.LoadWarning
}

// New creates a Watcher. Call Reload once before Run to populate idx
// with the initial snapshot; Run only reacts to subsequent changes.
func New(dir string, idx *policyindex.Index, logger *zap.Logger) *Watcher {
	return &Watcher{
		dir:    dir,
		idx:    idx,
		logger: logger.Named("policy-watcher"),
	}
}

// Reload loads dir synchronously and publishes the result to the index
// regardless of whether every file validated — a directory with zero
// valid files still publishes an empty PolicySet (§4.1).
func (w *Watcher) Reload() {
	set, warnings := policyload.Load(w.dir, w.logger)
	w.warningsMu.Lock()
	w.lastWarnings = warnings
	w.warningsMu.Unlock()
	w.idx.Swap(set)
	w.logger.Info("policy reloaded",
		zap.String("fingerprint", set.VersionFingerprint),
		zap.Int("agent_count", len(set.Agents)),
		zap.Int("warning_count", len(warnings)))
}

// LastWarnings returns the warnings produced by the most recent Reload.
func (w *Watcher) LastWarnings() []policyload.LoadWarning {
	w.warningsMu.RLock()
	defer w.warningsMu.RUnlock()
	return w.lastWarnings
}

// Run watches w.dir for changes and reloads on a single debounce timer.
// Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}

	// Single debounce timer, reset on every relevant event. Never spawns
	// a goroutine per event and never accumulates a queue: only the
	// existence of a pending reload matters, not how many events caused it.
	timer := time.NewTimer(debounceWindow)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			w.Reload()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounceWindow)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watch error", zap.Error(err))
		}
	}
}
