// Package engine implements the dependency-aware turn scheduler: a static
// step registry validated at construction, tiered concurrent execution over a
// shared state store, and partial-failure handling.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shrutib31/soul-buddy/internal/models"
)

// Field names one mutable slot of the shared conversation state. Steps declare
// the fields they read and write; the registry rejects overlapping write-sets
// between steps that may run concurrently.
type Field string

// Field constants.
const (
	FieldConversationID  Field = "conversation_id"
	FieldMode            Field = "mode"
	FieldDomain          Field = "domain"
	FieldUserMessage     Field = "user_message"
	FieldIntent          Field = "intent"
	FieldRiskLevel       Field = "risk_level"
	FieldSituation       Field = "situation"
	FieldSeverity        Field = "severity"
	FieldConfidence      Field = "confidence"
	FieldFlowID          Field = "flow_id"
	FieldStepIndex       Field = "step_index"
	FieldResponseDraft   Field = "response_draft"
	FieldReadinessScore  Field = "readiness_score"
	FieldCandidates      Field = "candidates"
	FieldGuardrailStatus Field = "guardrail_status"
	FieldTool            Field = "tool"
	FieldPageContext     Field = "page_context"
	FieldError           Field = "error"
	FieldFinal           Field = "final"
)

// StepName identifies one unit of work in the turn DAG.
type StepName string

// StepKind distinguishes pure computation from steps that call collaborators.
type StepKind string

// Step kind constants.
const (
	KindPure StepKind = "pure"
	KindIO   StepKind = "io"
)

// Updates is the typed partial-update record a step returns. Nil pointers mean
// "not written". The scheduler rejects any set field outside the step's
// declared write-set before merging.
type Updates struct {
	ConversationID  *string
	Intent          *models.Intent
	RiskLevel       *models.RiskLevel
	Situation       *models.SituationID
	Severity        *models.Severity
	Confidence      *float64
	FlowID          *models.FlowID
	StepIndex       *int
	ResponseDraft   *string
	ReadinessScore  *int
	Candidates      map[string]string
	GuardrailStatus *string
	Tool            map[string]any
	Final           *models.FinalResponse
}

// Fields returns the set of fields this record actually carries.
func (u Updates) Fields() []Field {
	var fs []Field
	if u.ConversationID != nil {
		fs = append(fs, FieldConversationID)
	}
	if u.Intent != nil {
		fs = append(fs, FieldIntent)
	}
	if u.RiskLevel != nil {
		fs = append(fs, FieldRiskLevel)
	}
	if u.Situation != nil {
		fs = append(fs, FieldSituation)
	}
	if u.Severity != nil {
		fs = append(fs, FieldSeverity)
	}
	if u.Confidence != nil {
		fs = append(fs, FieldConfidence)
	}
	if u.FlowID != nil {
		fs = append(fs, FieldFlowID)
	}
	if u.StepIndex != nil {
		fs = append(fs, FieldStepIndex)
	}
	if u.ResponseDraft != nil {
		fs = append(fs, FieldResponseDraft)
	}
	if u.ReadinessScore != nil {
		fs = append(fs, FieldReadinessScore)
	}
	if u.Candidates != nil {
		fs = append(fs, FieldCandidates)
	}
	if u.GuardrailStatus != nil {
		fs = append(fs, FieldGuardrailStatus)
	}
	if u.Tool != nil {
		fs = append(fs, FieldTool)
	}
	if u.Final != nil {
		fs = append(fs, FieldFinal)
	}
	return fs
}

// Data renders the set fields as a JSON-friendly map, used by the event stream
// to expose a step's declared outputs.
func (u Updates) Data() map[string]any {
	data := make(map[string]any)
	if u.ConversationID != nil {
		data["conversation_id"] = *u.ConversationID
	}
	if u.Intent != nil {
		data["intent"] = *u.Intent
	}
	if u.RiskLevel != nil {
		data["risk_level"] = *u.RiskLevel
	}
	if u.Situation != nil {
		data["situation"] = *u.Situation
	}
	if u.Severity != nil {
		data["severity"] = *u.Severity
	}
	if u.Confidence != nil {
		data["confidence"] = *u.Confidence
	}
	if u.FlowID != nil {
		data["flow_id"] = *u.FlowID
	}
	if u.StepIndex != nil {
		data["step_index"] = *u.StepIndex
	}
	if u.ResponseDraft != nil {
		data["response_draft"] = *u.ResponseDraft
	}
	if u.ReadinessScore != nil {
		data["readiness_score"] = *u.ReadinessScore
	}
	if u.GuardrailStatus != nil {
		data["guardrail_status"] = *u.GuardrailStatus
	}
	if u.Tool != nil {
		data["tool"] = u.Tool
	}
	return data
}

// StepError is a single step's recoverable failure. It is recorded in the
// state's error field and routes subsequent tiers to the safe-fallback step;
// sibling steps in the same tier are unaffected.
type StepError struct {
	Step    StepName
	Reason  string
	Timeout bool
}

func (e *StepError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("step %s timed out: %s", e.Step, e.Reason)
	}
	return fmt.Sprintf("step %s failed: %s", e.Step, e.Reason)
}

// Descriptor converts the error into its state representation.
func (e *StepError) Descriptor() *models.ErrorDescriptor {
	return &models.ErrorDescriptor{Step: string(e.Step), Reason: e.Reason, Timeout: e.Timeout}
}

// StepResult is the tagged outcome of one step invocation. Exactly one of the
// three shapes is meaningful: plain updates (success), Err (recoverable step
// failure), or Fatal (collaborator unreachable; the whole turn is abandoned).
type StepResult struct {
	Updates Updates
	Err     *StepError
	Fatal   error
}

// OK wraps a partial-update record in a successful result.
func OK(u Updates) StepResult {
	return StepResult{Updates: u}
}

// Fail wraps a recoverable step failure.
func Fail(step StepName, reason string) StepResult {
	return StepResult{Err: &StepError{Step: step, Reason: reason}}
}

// FailTimeout wraps a step failure caused by an expired call budget.
func FailTimeout(step StepName, reason string) StepResult {
	return StepResult{Err: &StepError{Step: step, Reason: reason, Timeout: true}}
}

// Abort wraps a fatal collaborator failure.
func Abort(err error) StepResult {
	return StepResult{Fatal: err}
}

// StepFunc executes one step against a read-only snapshot of its declared
// reads. Implementations must not raise past their boundary: every failure is
// represented in the returned StepResult.
type StepFunc func(ctx context.Context, snap models.ConversationState) StepResult

// DefaultStepTimeout bounds each I/O step call unless overridden per step.
const DefaultStepTimeout = 30 * time.Second
