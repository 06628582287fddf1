// Package models defines state structures shared across the orchestration engine.
package models

import "time"

// ConversationState is the shared state object for one turn. It is derived
// from the prior session state, mutated only through scheduler merges at tier
// boundaries, and rendered into the final client response at the end.
//
// ConversationID, Mode, Domain and UserMessage are immutable once assigned
// within a turn (ConversationID may be assigned once by the identity step).
type ConversationState struct {
	ConversationID string `json:"conversation_id"`
	Mode           Mode   `json:"mode"`
	Domain         Domain `json:"domain"`
	UserMessage    string `json:"user_message"`

	// Analysis results.
	Intent     Intent      `json:"intent,omitempty"`
	RiskLevel  RiskLevel   `json:"risk_level"`
	Situation  SituationID `json:"situation,omitempty"`
	Severity   Severity    `json:"severity,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`

	// Flow execution.
	FlowID    FlowID `json:"flow_id,omitempty"`
	StepIndex int    `json:"step_index"`

	// Generation.
	ResponseDraft   string            `json:"response_draft,omitempty"`
	ReadinessScore  int               `json:"readiness_score"`
	Candidates      map[string]string `json:"candidates,omitempty"`
	GuardrailStatus string            `json:"guardrail_status,omitempty"`
	Tool            map[string]any    `json:"tool,omitempty"`

	// Opaque context bags, passed through unmodified by the engine.
	PageContext            map[string]any `json:"page_context,omitempty"`
	DomainConfig           map[string]any `json:"domain_config,omitempty"`
	UserPersonalityProfile map[string]any `json:"user_personality_profile,omitempty"`
	UserPreferences        map[string]any `json:"user_preferences,omitempty"`

	// Failure marker. Once set, later tiers are skipped and only the
	// safe-fallback step runs.
	Error *ErrorDescriptor `json:"error,omitempty"`

	// Final rendered payload, written by the render (or safe-fallback) step.
	Final *FinalResponse `json:"final,omitempty"`
}

// ErrorDescriptor records a step failure as data rather than a raised error.
type ErrorDescriptor struct {
	Step    string `json:"step"`
	Reason  string `json:"reason"`
	Timeout bool   `json:"timeout,omitempty"`
}

// FinalResponse is the terminal payload rendered for the client.
type FinalResponse struct {
	Success        bool           `json:"success"`
	ConversationID string         `json:"conversation_id"`
	Mode           Mode           `json:"mode"`
	Domain         Domain         `json:"domain"`
	Response       string         `json:"response"`
	Error          string         `json:"error,omitempty"`
	Metadata       map[string]any `json:"metadata"`
}

// FlowState is the persisted per-session flow position, updated once per turn.
// Completed is modeled explicitly so "flow finished" is distinguishable from
// "mid-flow"; a completed flow makes the next turn re-resolve from scratch.
type FlowState struct {
	ConversationID string    `json:"conversation_id"`
	FlowID         FlowID    `json:"flow_id"`
	CurrentStep    StepID    `json:"current_step"`
	StepIndex      int       `json:"step_index"`
	Readiness      int       `json:"readiness"`
	Completed      bool      `json:"completed"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Conversation is one persisted conversation record.
type Conversation struct {
	ID        string    `json:"id"`
	Mode      Mode      `json:"mode"`
	Domain    Domain    `json:"domain"`
	StartedAt time.Time `json:"started_at"`
}

// Turn is one persisted message within a conversation.
type Turn struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Speaker        Speaker   `json:"speaker"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}
