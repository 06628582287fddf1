package stream

import (
	"testing"

	"github.com/shrutib31/soul-buddy/internal/engine"
	"github.com/shrutib31/soul-buddy/internal/flow"
	"github.com/shrutib31/soul-buddy/internal/models"
)

func collector() (Sink, *[]models.StreamEvent) {
	events := &[]models.StreamEvent{}
	return func(ev models.StreamEvent) { *events = append(*events, ev) }, events
}

func strPtr(s string) *string { return &s }

func dataMap(t *testing.T, ev models.StreamEvent) map[string]any {
	t.Helper()
	m, ok := ev.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map payload, got %T", ev.Data)
	}
	return m
}

func TestStepCompletedMapsAnalysisSteps(t *testing.T) {
	sink, events := collector()
	r := NewRenderer(sink)

	intent := models.IntentVenting
	r.StepCompleted(flow.NodeIntentDetection, engine.Updates{Intent: &intent}, nil)
	r.StepCompleted(flow.NodeSituationSeverity, engine.Updates{}, nil)

	if len(*events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(*events))
	}
	for _, ev := range *events {
		if ev.Type != models.StreamEventAnalysisUpdate {
			t.Errorf("node %s: expected analysis_update, got %s", ev.Node, ev.Type)
		}
	}
	if dataMap(t, (*events)[0])["intent"] != models.IntentVenting {
		t.Errorf("intent missing from event data: %v", (*events)[0].Data)
	}
}

func TestStepCompletedMapsResponseChunk(t *testing.T) {
	sink, events := collector()
	r := NewRenderer(sink)

	r.StepCompleted(flow.NodeResponseGeneration, engine.Updates{ResponseDraft: strPtr("hello there")}, nil)

	if len(*events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(*events))
	}
	ev := (*events)[0]
	if ev.Type != models.StreamEventResponseChunk {
		t.Fatalf("expected response_chunk, got %s", ev.Type)
	}
	if ev.Data != "hello there" {
		t.Errorf("chunk payload must be the bare draft text, got %v", ev.Data)
	}
}

func TestStepCompletedSkipsChunkWithoutDraft(t *testing.T) {
	sink, events := collector()
	r := NewRenderer(sink)

	r.StepCompleted(flow.NodeResponseGeneration, engine.Updates{}, nil)

	if len(*events) != 0 {
		t.Fatalf("generation with no draft should stay silent, got %d events", len(*events))
	}
}

func TestStepCompletedSilencesPersistenceSteps(t *testing.T) {
	sink, events := collector()
	r := NewRenderer(sink)

	r.StepCompleted(flow.NodeStoreMessage, engine.Updates{}, nil)
	r.StepCompleted(flow.NodeStoreBotResponse, engine.Updates{}, nil)

	if len(*events) != 0 {
		t.Fatalf("persistence steps should not emit events, got %d", len(*events))
	}
}

func TestStepCompletedDefaultsToNodeEnd(t *testing.T) {
	sink, events := collector()
	r := NewRenderer(sink)

	r.StepCompleted(flow.NodeRiskAssessment, engine.Updates{}, nil)
	r.StepCompleted(flow.NodeGuardrail, engine.Updates{}, nil)

	for _, ev := range *events {
		if ev.Type != models.StreamEventNodeEnd {
			t.Errorf("node %s: expected node_end, got %s", ev.Node, ev.Type)
		}
	}
}

func TestStepCompletedReportsStepErrors(t *testing.T) {
	sink, events := collector()
	r := NewRenderer(sink)

	r.StepCompleted(flow.NodeIntentDetection, engine.Updates{}, &engine.StepError{
		Step: flow.NodeIntentDetection, Reason: "deadline exceeded", Timeout: true,
	})

	if len(*events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(*events))
	}
	ev := (*events)[0]
	if ev.Type != models.StreamEventNodeEnd {
		t.Fatalf("step errors map to node_end, got %s", ev.Type)
	}
	data := dataMap(t, ev)
	if data["error"] != "deadline exceeded" || data["timeout"] != true {
		t.Errorf("error details missing: %v", ev.Data)
	}
}

func TestRenderEmitsFinalResponseExactlyOnce(t *testing.T) {
	sink, events := collector()
	r := NewRenderer(sink)

	final := &models.FinalResponse{Success: true, ConversationID: "c1", Response: "done"}
	r.StepCompleted(flow.NodeRender, engine.Updates{Final: final}, nil)
	r.StepCompleted(flow.NodeSafeFallback, engine.Updates{Final: final}, nil)

	count := 0
	for _, ev := range *events {
		if ev.Type == models.StreamEventFinalResponse {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one final_response, got %d", count)
	}
	data := dataMap(t, (*events)[0])
	if data["response"] != "done" || data["success"] != true {
		t.Errorf("final payload not forwarded: %v", (*events)[0].Data)
	}
}

func TestEmitFailureProducesFailureFinal(t *testing.T) {
	sink, events := collector()
	r := NewRenderer(sink)

	r.EmitFailure(models.ConversationState{ConversationID: "c2", Mode: models.ModeCognito}, "service unavailable")

	if len(*events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(*events))
	}
	ev := (*events)[0]
	if ev.Type != models.StreamEventFinalResponse {
		t.Fatalf("expected final_response, got %s", ev.Type)
	}
	data := dataMap(t, ev)
	if data["success"] != false || data["error"] != "service unavailable" {
		t.Errorf("failure details missing: %v", ev.Data)
	}
	if data["conversation_id"] != "c2" {
		t.Errorf("conversation id not carried: %v", ev.Data)
	}
}
