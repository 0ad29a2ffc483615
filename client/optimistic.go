package client

import (
	"log/slog"
	"sync"
)

// Engine keeps the client's speculative state: the last server-confirmed
// snapshot, the ordered log of still-pending actions, and the optimistic
// snapshot derived from replaying the log over the confirmed one.
//
// Rolling back or confirming one action never collapses the speculative
// state outright; the optimistic snapshot is always rebuilt by replaying the
// remaining log, so a failed action cannot discard the visible effect of
// other, unrelated, in-flight actions.
type Engine struct {
	mu         sync.Mutex
	original   *BoardState
	optimistic *BoardState
	pending    []Action
}

func NewEngine(initial *BoardState) *Engine {
	return &Engine{
		original:   initial.Clone(),
		optimistic: initial.Clone(),
	}
}

// State returns the current optimistic snapshot. The caller gets a clone
// and may hold it across further mutations.
func (e *Engine) State() *BoardState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.optimistic.Clone()
}

// Pending returns the ids of the still-pending actions, oldest first.
func (e *Engine) Pending() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, len(e.pending))
	for i, a := range e.pending {
		ids[i] = a.ActionID()
	}
	return ids
}

// Apply runs the action against the optimistic snapshot and appends it to
// the pending log. It returns synchronously, before any network round trip:
// this is what makes the mutation visible immediately.
func (e *Engine) Apply(a Action) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.optimistic = reduce(e.optimistic, a)
	e.pending = append(e.pending, a)
}

// Confirm settles a pending action. When the server supplied a state, that
// state wins: it becomes the confirmed snapshot and the action's own
// speculative delta is discarded with it. Without a server state the action
// is folded into the confirmed snapshot. Either way the optimistic snapshot
// is rebuilt by replaying whatever is still pending.
//
// Returns false if no pending action has that id (a late confirmation that
// already rolled back, or a duplicate).
func (e *Engine) Confirm(actionID string, serverState *BoardState) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	confirmed, ok := e.take(actionID)
	if !ok {
		return false
	}
	if serverState != nil {
		e.original = serverState.Clone()
	} else {
		e.original = reduce(e.original, confirmed)
	}
	e.rebuild()
	return true
}

// Settle removes a pending action without folding its speculative effect
// into the confirmed snapshot. The caller merges the server's authoritative
// version of the effect instead, so entities the action invented under
// temporary ids disappear with the replayed log.
func (e *Engine) Settle(actionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.take(actionID); !ok {
		return false
	}
	e.rebuild()
	return true
}

// Rollback discards a pending action and rebuilds the optimistic snapshot
// from the confirmed one plus the remaining log.
func (e *Engine) Rollback(actionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.take(actionID); !ok {
		return false
	}
	e.rebuild()
	slog.Debug("rolled back optimistic action", "action", actionID, "stillPending", len(e.pending))
	return true
}

// MergeRemote applies a server-pushed change to the confirmed snapshot and
// rebuilds the optimistic one on top. This is the single state-update
// pipeline: remote events and local speculation converge on the same log
// replay instead of racing through separate merge paths.
func (e *Engine) MergeRemote(merge func(*BoardState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	merge(e.original)
	e.rebuild()
}

// take removes and returns the pending action with the given id. Caller
// holds the lock.
func (e *Engine) take(actionID string) (Action, bool) {
	for i, a := range e.pending {
		if a.ActionID() == actionID {
			e.pending = append(e.pending[:i:i], e.pending[i+1:]...)
			return a, true
		}
	}
	return nil, false
}

// rebuild replays the pending log over the confirmed snapshot. Caller holds
// the lock.
func (e *Engine) rebuild() {
	next := e.original.Clone()
	for _, a := range e.pending {
		next = reduce(next, a)
	}
	e.optimistic = next
}
