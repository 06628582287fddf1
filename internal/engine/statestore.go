// Package engine provides the per-turn state store. The store is exclusively
// owned by the scheduler for the duration of one turn; steps only ever see
// read-only snapshots and communicate through tier-boundary merges.
package engine

import (
	"log/slog"

	"github.com/shrutib31/soul-buddy/internal/models"
)

// StateStore owns one turn's mutable conversation state and applies partial
// updates at tier boundaries.
type StateStore struct {
	state models.ConversationState
}

// NewStateStore creates a store seeded from the prior session state.
func NewStateStore(init models.ConversationState) *StateStore {
	if init.RiskLevel == "" {
		init.RiskLevel = models.RiskLow
	}
	return &StateStore{state: init}
}

// State returns a copy of the current state.
func (s *StateStore) State() models.ConversationState {
	return s.state
}

// Snapshot builds a read-only view containing only the declared read fields.
// A step that did not declare a field sees its zero value.
func (s *StateStore) Snapshot(reads []Field) models.ConversationState {
	var snap models.ConversationState
	for _, f := range reads {
		copyField(&snap, &s.state, f)
	}
	return snap
}

// Merge applies one step's partial updates. Callers (the scheduler) invoke it
// once per step after the whole tier has joined, so no step observes another
// step's update before the next tier boundary.
func (s *StateStore) Merge(u Updates) {
	if u.ConversationID != nil {
		s.state.ConversationID = *u.ConversationID
	}
	if u.Intent != nil {
		s.state.Intent = *u.Intent
	}
	if u.RiskLevel != nil {
		s.state.RiskLevel = *u.RiskLevel
	}
	if u.Situation != nil {
		s.state.Situation = *u.Situation
	}
	if u.Severity != nil {
		s.state.Severity = *u.Severity
	}
	if u.Confidence != nil {
		s.state.Confidence = *u.Confidence
	}
	if u.FlowID != nil {
		s.state.FlowID = *u.FlowID
	}
	if u.StepIndex != nil {
		s.state.StepIndex = *u.StepIndex
	}
	if u.ResponseDraft != nil {
		s.state.ResponseDraft = *u.ResponseDraft
	}
	if u.ReadinessScore != nil {
		s.state.ReadinessScore = *u.ReadinessScore
	}
	if u.Candidates != nil {
		s.state.Candidates = u.Candidates
	}
	if u.GuardrailStatus != nil {
		s.state.GuardrailStatus = *u.GuardrailStatus
	}
	if u.Tool != nil {
		s.state.Tool = u.Tool
	}
	if u.Final != nil {
		s.state.Final = u.Final
	}
}

// RecordError stores a step failure in the state's error field. The first
// recorded failure wins; later ones are logged and dropped.
func (s *StateStore) RecordError(err *StepError) {
	if s.state.Error != nil {
		slog.Debug("StateStore.RecordError: error already recorded, keeping first",
			"kept", s.state.Error.Step, "dropped", err.Step)
		return
	}
	s.state.Error = err.Descriptor()
}

func copyField(dst *models.ConversationState, src *models.ConversationState, f Field) {
	switch f {
	case FieldConversationID:
		dst.ConversationID = src.ConversationID
	case FieldMode:
		dst.Mode = src.Mode
	case FieldDomain:
		dst.Domain = src.Domain
	case FieldUserMessage:
		dst.UserMessage = src.UserMessage
	case FieldIntent:
		dst.Intent = src.Intent
	case FieldRiskLevel:
		dst.RiskLevel = src.RiskLevel
	case FieldSituation:
		dst.Situation = src.Situation
	case FieldSeverity:
		dst.Severity = src.Severity
	case FieldConfidence:
		dst.Confidence = src.Confidence
	case FieldFlowID:
		dst.FlowID = src.FlowID
	case FieldStepIndex:
		dst.StepIndex = src.StepIndex
	case FieldResponseDraft:
		dst.ResponseDraft = src.ResponseDraft
	case FieldReadinessScore:
		dst.ReadinessScore = src.ReadinessScore
	case FieldCandidates:
		dst.Candidates = src.Candidates
	case FieldGuardrailStatus:
		dst.GuardrailStatus = src.GuardrailStatus
	case FieldTool:
		dst.Tool = src.Tool
	case FieldPageContext:
		dst.PageContext = src.PageContext
	case FieldError:
		dst.Error = src.Error
	case FieldFinal:
		dst.Final = src.Final
	default:
		slog.Warn("StateStore.Snapshot: unknown read field", "field", f)
	}
}
