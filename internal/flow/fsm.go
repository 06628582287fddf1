package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shrutib31/soul-buddy/internal/models"
	"github.com/shrutib31/soul-buddy/internal/store"
)

// DefaultReadinessThreshold is the readiness score at or above which the FSM
// advances to the next step of the active flow.
const DefaultReadinessThreshold = 7

// StepFSM tracks a session's position within its active flow across turns.
// The position is persisted through the store; the FSM itself holds no
// per-session state.
type StepFSM struct {
	store     store.Store
	threshold int
}

// NewStepFSM creates a step FSM over the given store.
func NewStepFSM(st store.Store, threshold int) *StepFSM {
	if threshold <= 0 {
		threshold = DefaultReadinessThreshold
	}
	return &StepFSM{store: st, threshold: threshold}
}

// Advance computes and persists the session's position for this turn.
//
// Rules: a session with no state, a completed flow, a differently resolved
// flow, or a stored index that no longer fits the flow starts at step 0 of
// the resolved flow (a flow switch discards the old progress and is not
// reversible). Otherwise the index advances by exactly 1
// when the stored readiness meets the threshold, and never decreases or
// exceeds the last step; satisfying the condition on the last step marks the
// flow complete.
func (m *StepFSM) Advance(ctx context.Context, conversationID string, resolved models.Flow) (models.FlowState, error) {
	prev, err := m.store.GetFlowState(conversationID)
	if err != nil {
		return models.FlowState{}, fmt.Errorf("failed to load flow state: %w", err)
	}

	now := time.Now().UTC()
	var st models.FlowState
	switch {
	case prev == nil:
		st = models.FlowState{ConversationID: conversationID, FlowID: resolved.ID, CreatedAt: now}
		slog.Debug("StepFSM.Advance: starting new flow", "conversationID", conversationID, "flowID", resolved.ID)
	case prev.Completed:
		st = models.FlowState{ConversationID: conversationID, FlowID: resolved.ID, CreatedAt: now}
		slog.Debug("StepFSM.Advance: previous flow complete, re-resolving fresh", "conversationID", conversationID, "flowID", resolved.ID)
	case prev.FlowID != resolved.ID:
		st = models.FlowState{ConversationID: conversationID, FlowID: resolved.ID, CreatedAt: prev.CreatedAt}
		slog.Info("StepFSM.Advance: flow switched, resetting progress",
			"conversationID", conversationID, "from", prev.FlowID, "to", resolved.ID)
	case prev.StepIndex < 0 || prev.StepIndex >= len(resolved.Steps):
		// Stored position no longer fits the flow definition, e.g. after a
		// catalog change shortened the script. Restart rather than panic.
		st = models.FlowState{ConversationID: conversationID, FlowID: resolved.ID, CreatedAt: now}
		slog.Warn("StepFSM.Advance: stored step index out of range, restarting flow",
			"conversationID", conversationID, "flowID", resolved.ID, "stepIndex", prev.StepIndex, "steps", len(resolved.Steps))
	default:
		st = *prev
		if prev.Readiness >= m.threshold {
			if st.StepIndex < len(resolved.Steps)-1 {
				st.StepIndex++
			} else {
				st.Completed = true
			}
		}
	}

	st.CurrentStep = resolved.Steps[st.StepIndex]
	st.UpdatedAt = now

	if err := m.store.SaveFlowState(st); err != nil {
		return st, fmt.Errorf("failed to save flow state: %w", err)
	}
	slog.Debug("StepFSM.Advance: position persisted",
		"conversationID", conversationID, "flowID", st.FlowID, "stepIndex", st.StepIndex, "step", st.CurrentStep, "completed", st.Completed)
	return st, nil
}
