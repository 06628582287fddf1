package engine

import (
	"testing"

	"github.com/shrutib31/soul-buddy/internal/models"
)

func TestSnapshotExposesOnlyDeclaredReads(t *testing.T) {
	store := NewStateStore(models.ConversationState{
		ConversationID: "conv-9",
		UserMessage:    "hello",
		Intent:         models.IntentVenting,
	})

	snap := store.Snapshot([]Field{FieldUserMessage})
	if snap.UserMessage != "hello" {
		t.Errorf("declared read missing: %+v", snap)
	}
	if snap.ConversationID != "" || snap.Intent != "" {
		t.Errorf("undeclared fields should be zero: %+v", snap)
	}
}

func TestNewStateStoreDefaultsRiskLow(t *testing.T) {
	store := NewStateStore(models.ConversationState{})
	if store.State().RiskLevel != models.RiskLow {
		t.Errorf("risk level should default to low, got %q", store.State().RiskLevel)
	}
}

func TestMergeAppliesOnlySetFields(t *testing.T) {
	store := NewStateStore(models.ConversationState{ConversationID: "keep", Intent: models.IntentGreeting})

	draft := "a reply"
	store.Merge(Updates{ResponseDraft: &draft})

	state := store.State()
	if state.ResponseDraft != "a reply" {
		t.Error("set field should merge")
	}
	if state.ConversationID != "keep" || state.Intent != models.IntentGreeting {
		t.Errorf("unset fields must be untouched: %+v", state)
	}
}

func TestRecordErrorFirstWins(t *testing.T) {
	store := NewStateStore(models.ConversationState{})
	store.RecordError(&StepError{Step: "first", Reason: "one"})
	store.RecordError(&StepError{Step: "second", Reason: "two"})

	if got := store.State().Error; got == nil || got.Step != "first" {
		t.Errorf("first recorded error should win, got %+v", got)
	}
}

func TestUpdatesFieldsAndData(t *testing.T) {
	intent := models.IntentTryTool
	conf := 0.82
	u := Updates{Intent: &intent, Confidence: &conf}

	fields := u.Fields()
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %v", fields)
	}

	data := u.Data()
	if data["intent"] != models.IntentTryTool {
		t.Errorf("data should carry the intent, got %v", data)
	}
	if _, ok := data["situation"]; ok {
		t.Error("unset fields must not appear in data")
	}
}
