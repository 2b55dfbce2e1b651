// Package review implements the pending-change state machine for
// AI-proposed plan mutations: propose, accept/reject, single-level undo.
package review

import (
	"context"
	"fmt"

	"github.com/Seasonsling/clarion/internal/change"
	"github.com/Seasonsling/clarion/internal/diff"
	"github.com/Seasonsling/clarion/internal/models"
	"github.com/Seasonsling/clarion/internal/plantree"
	"github.com/Seasonsling/clarion/internal/store"
)

// State of the review workflow.
type State string

const (
	// StateIdle: no pending proposal; the live tree is authoritative.
	StateIdle State = "idle"
	// StateReviewing: a pending change exists; the proposed tree is
	// rendered read-only with diff annotations until accepted or rejected.
	StateReviewing State = "reviewing"
)

// PendingChange wraps a proposed replacement tree and its diff against the
// live plan while the user reviews it.
type PendingChange struct {
	Proposed *models.Project
	Diff     diff.Diff
}

// Session owns the live plan for one project and drives the
// propose/accept/reject/undo cycle. Mutations are synchronous; the store is
// the only suspension point.
type Session struct {
	store    store.Store
	live     *models.Project
	pending  *PendingChange
	snapshot *models.Project // one slot, non-stacking
}

// NewSession creates a review session around the live plan.
func NewSession(s store.Store, live *models.Project) *Session {
	return &Session{store: s, live: live}
}

// Live returns the authoritative plan. While reviewing, callers should
// render Pending().Proposed instead and disable edit affordances.
func (s *Session) Live() *models.Project { return s.live }

// Pending returns the in-review change, or nil when idle.
func (s *Session) Pending() *PendingChange { return s.pending }

// State returns the current workflow state.
func (s *Session) State() State {
	if s.pending != nil {
		return StateReviewing
	}
	return StateIdle
}

// CanUndo reports whether a previous-state snapshot is available.
func (s *Session) CanUndo() bool { return s.snapshot != nil }

// Propose normalizes an AI-proposed replacement tree, diffs it against the
// live plan, and enters the reviewing state. An empty diff is a no-op
// answer: no transition happens and false is returned.
func (s *Session) Propose(proposed *models.Project) (diff.Diff, bool) {
	if proposed == nil {
		return nil, false
	}
	if s.pending != nil {
		// A newer proposal replaces the one under review.
		s.pending = nil
	}
	plantree.Normalize(proposed)
	d := diff.Compute(s.live, proposed)
	if d.Empty() {
		return d, false
	}
	s.pending = &PendingChange{Proposed: proposed, Diff: d}
	return d, true
}

// Accept promotes the proposed tree to the live plan, persists it, and
// retains a one-slot snapshot for Undo. The in-memory promotion is not
// rolled back on a persistence failure; the error surfaces so the caller
// can flag the save state.
func (s *Session) Accept(ctx context.Context) error {
	if s.pending == nil {
		return fmt.Errorf("no pending change to accept")
	}
	s.snapshot = s.live
	s.pending.Proposed.ID = s.live.ID
	s.pending.Proposed.OwnerID = s.live.OwnerID
	s.live = s.pending.Proposed
	s.pending = nil
	return s.persist(ctx)
}

// Reject discards the pending change; the live plan and persisted state are
// untouched.
func (s *Session) Reject() {
	s.pending = nil
}

// Undo restores the live plan to the retained snapshot and persists it. The
// slot is cleared: undo is single-level and does not stack.
func (s *Session) Undo(ctx context.Context) error {
	if s.snapshot == nil {
		return fmt.Errorf("nothing to undo")
	}
	s.live = s.snapshot
	s.snapshot = nil
	return s.persist(ctx)
}

// ApplyOperations runs an explicit operation batch against the live plan,
// snapshotting first so the outcome can be undone. Partial application is
// accepted; the result reports skipped operations.
func (s *Session) ApplyOperations(ctx context.Context, ops []change.Operation) (change.Result, error) {
	snap := s.live.Clone()
	res := change.Apply(s.live, ops, nil)
	if res.Applied == 0 {
		return res, nil
	}
	// Added tasks may carry model-chosen ids that collide with existing
	// ones; re-key duplicates so id-keyed diffs stay sound.
	plantree.Normalize(s.live)
	s.snapshot = snap
	return res, s.persist(ctx)
}

func (s *Session) persist(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.UpdateProject(ctx, s.live); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}
