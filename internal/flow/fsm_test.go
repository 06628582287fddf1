package flow

import (
	"context"
	"testing"

	"github.com/shrutib31/soul-buddy/internal/models"
	"github.com/shrutib31/soul-buddy/internal/store"
)

func testFlow() models.Flow {
	return models.Flow{
		ID:    models.FlowEmotionalOffload,
		Steps: []models.StepID{models.StepExploration, models.StepEmotions, models.StepGentleSummary},
	}
}

func TestAdvanceStartsAtStepZero(t *testing.T) {
	st := store.NewInMemoryStore()
	fsm := NewStepFSM(st, 0)

	got, err := fsm.Advance(context.Background(), "c1", testFlow())
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if got.StepIndex != 0 || got.CurrentStep != models.StepExploration {
		t.Errorf("new session should start at step 0, got %+v", got)
	}

	saved, err := st.GetFlowState("c1")
	if err != nil || saved == nil {
		t.Fatalf("flow state not persisted: %v", err)
	}
	if saved.StepIndex != 0 {
		t.Errorf("persisted index should be 0, got %d", saved.StepIndex)
	}
}

func TestAdvanceRequiresReadinessThreshold(t *testing.T) {
	st := store.NewInMemoryStore()
	fsm := NewStepFSM(st, 0)
	ctx := context.Background()

	if _, err := fsm.Advance(ctx, "c1", testFlow()); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	// Below threshold: position holds.
	if err := st.SetFlowReadiness("c1", DefaultReadinessThreshold-1); err != nil {
		t.Fatalf("SetFlowReadiness failed: %v", err)
	}
	got, err := fsm.Advance(ctx, "c1", testFlow())
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if got.StepIndex != 0 {
		t.Errorf("below-threshold readiness should hold position, got index %d", got.StepIndex)
	}

	// At threshold: advance by exactly one.
	if err := st.SetFlowReadiness("c1", DefaultReadinessThreshold); err != nil {
		t.Fatalf("SetFlowReadiness failed: %v", err)
	}
	got, err = fsm.Advance(ctx, "c1", testFlow())
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if got.StepIndex != 1 || got.CurrentStep != models.StepEmotions {
		t.Errorf("at-threshold readiness should advance one step, got %+v", got)
	}
}

func TestAdvanceCompletesAtLastStep(t *testing.T) {
	st := store.NewInMemoryStore()
	fsm := NewStepFSM(st, 0)
	ctx := context.Background()
	flow := testFlow()

	if _, err := fsm.Advance(ctx, "c1", flow); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	for i := 0; i < len(flow.Steps); i++ {
		if err := st.SetFlowReadiness("c1", 10); err != nil {
			t.Fatalf("SetFlowReadiness failed: %v", err)
		}
		got, err := fsm.Advance(ctx, "c1", flow)
		if err != nil {
			t.Fatalf("Advance failed: %v", err)
		}
		if got.StepIndex > len(flow.Steps)-1 {
			t.Fatalf("index must never pass the last step, got %d", got.StepIndex)
		}
	}

	saved, err := st.GetFlowState("c1")
	if err != nil {
		t.Fatalf("GetFlowState failed: %v", err)
	}
	if !saved.Completed {
		t.Error("satisfying the condition on the last step should mark the flow complete")
	}
	if saved.StepIndex != len(flow.Steps)-1 {
		t.Errorf("completed flow should hold the last index, got %d", saved.StepIndex)
	}
}

func TestAdvanceCompletedFlowStartsFresh(t *testing.T) {
	st := store.NewInMemoryStore()
	fsm := NewStepFSM(st, 0)
	ctx := context.Background()

	if err := st.SaveFlowState(models.FlowState{
		ConversationID: "c1", FlowID: models.FlowEmotionalOffload, StepIndex: 2, Completed: true,
	}); err != nil {
		t.Fatalf("SaveFlowState failed: %v", err)
	}

	got, err := fsm.Advance(ctx, "c1", testFlow())
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if got.StepIndex != 0 || got.Completed {
		t.Errorf("completed flow should re-resolve from scratch, got %+v", got)
	}
}

func TestAdvanceFlowSwitchResetsProgress(t *testing.T) {
	st := store.NewInMemoryStore()
	fsm := NewStepFSM(st, 0)
	ctx := context.Background()

	if err := st.SaveFlowState(models.FlowState{
		ConversationID: "c1", FlowID: models.FlowGeneralOverwhelm, StepIndex: 3, Readiness: 10,
	}); err != nil {
		t.Fatalf("SaveFlowState failed: %v", err)
	}

	got, err := fsm.Advance(ctx, "c1", testFlow())
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if got.FlowID != models.FlowEmotionalOffload || got.StepIndex != 0 {
		t.Errorf("flow switch should reset to step 0 of the new flow, got %+v", got)
	}
}

func TestAdvanceOutOfRangeStoredIndexRestarts(t *testing.T) {
	st := store.NewInMemoryStore()
	fsm := NewStepFSM(st, 0)
	ctx := context.Background()

	// A row persisted against a longer flow definition, or plain corruption.
	for _, index := range []int{9, -1} {
		if err := st.SaveFlowState(models.FlowState{
			ConversationID: "c1", FlowID: models.FlowEmotionalOffload, StepIndex: index,
		}); err != nil {
			t.Fatalf("SaveFlowState failed: %v", err)
		}

		got, err := fsm.Advance(ctx, "c1", testFlow())
		if err != nil {
			t.Fatalf("Advance with stored index %d failed: %v", index, err)
		}
		if got.StepIndex != 0 || got.CurrentStep != models.StepExploration || got.Completed {
			t.Errorf("stored index %d should restart the flow, got %+v", index, got)
		}
	}
}
