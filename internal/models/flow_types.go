// Package models defines flow type definitions to avoid circular imports.
package models

// FlowID identifies a multi-step conversation flow.
type FlowID string

// StepID identifies one step within a flow's ordered script.
type StepID string

// SituationID identifies a detected user situation.
type SituationID string

// Mode controls conversation identity handling.
type Mode string

// Domain scopes the conversation to a user population.
type Domain string

// RiskLevel is the safety classification of a turn.
type RiskLevel string

// Severity grades how strongly a situation presents.
type Severity string

// Intent is the classified purpose of a user message.
type Intent string

// Speaker identifies who produced a stored turn.
type Speaker string

// Mode constants.
const (
	ModeCognito   Mode = "cognito"
	ModeIncognito Mode = "incognito"
)

// Domain constants.
const (
	DomainStudent  Domain = "student"
	DomainEmployee Domain = "employee"
	DomainGeneral  Domain = "general"
)

// Risk level constants.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Severity constants.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Intent constants.
const (
	IntentGreeting          Intent = "GREETING"
	IntentVenting           Intent = "VENTING"
	IntentSeekInformation   Intent = "SEEK_INFORMATION"
	IntentSeekUnderstanding Intent = "SEEK_UNDERSTANDING"
	IntentOpenToSolution    Intent = "OPEN_TO_SOLUTION"
	IntentTryTool           Intent = "TRY_TOOL"
	IntentSeekSupport       Intent = "SEEK_SUPPORT"
	IntentUnclear           Intent = "UNCLEAR"
)

// Speaker constants.
const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Situation constants. UNLABELED_DISTRESS is the configured fallback when
// detection produces nothing usable.
const (
	SituationFirstYearOverwhelm SituationID = "FIRST_YEAR_OVERWHELM"
	SituationAcademicComparison SituationID = "ACADEMIC_COMPARISON"
	SituationExamAnxiety        SituationID = "EXAM_ANXIETY"
	SituationGeneralOverwhelm   SituationID = "GENERAL_OVERWHELM"
	SituationLowMotivation      SituationID = "LOW_MOTIVATION"
	SituationBelongingDoubt     SituationID = "BELONGING_DOUBT"
	SituationUnlabeledDistress  SituationID = "UNLABELED_DISTRESS"
	SituationPassiveDeathWish   SituationID = "PASSIVE_DEATH_WISH"
)

// Flow constants.
const (
	FlowFirstYearOverwhelm FlowID = "FLOW_FIRST_YEAR_OVERWHELM"
	FlowGeneralOverwhelm   FlowID = "FLOW_GENERAL_OVERWHELM"
	FlowEmotionalOffload   FlowID = "FLOW_EMOTIONAL_OFFLOAD"
	FlowUnlabeledOverwhelm FlowID = "FLOW_UNLABELED_OVERWHELM"
	FlowCrisisHigh         FlowID = "FLOW_CRISIS_HIGH"
)

// Flow step constants, grouped by conversation phase.
const (
	StepExploration      StepID = "EXPLORATION"
	StepEmotions         StepID = "EMOTIONS"
	StepBody             StepID = "BODY"
	StepThoughts         StepID = "THOUGHTS"
	StepBehaviors        StepID = "BEHAVIORS"
	StepGentleSummary    StepID = "GENTLE_SUMMARY"
	StepPerspectiveShift StepID = "PERSPECTIVE_SHIFT"
	StepPsychoeducation  StepID = "PSYCHOEDUCATION"
	StepRedirectToTool   StepID = "REDIRECT_TO_TOOL"
	StepAcknowledgeRisk  StepID = "ACKNOWLEDGE_RISK"
	StepEncourageSupport StepID = "ENCOURAGE_SUPPORT"
)

// Flow describes one named script of steps a conversation can follow.
type Flow struct {
	ID                   FlowID   `json:"flow_id"`
	Steps                []StepID `json:"steps"`
	IsCrisis             bool     `json:"is_crisis"`
	AllowTools           bool     `json:"allow_tools"`
	AllowPsychoeducation bool     `json:"allow_psychoeducation"`
	Description          string   `json:"description,omitempty"`
}

// Situation describes one recognizable user situation.
type Situation struct {
	ID          SituationID `json:"situation_id"`
	Category    string      `json:"category"`
	IsCrisis    bool        `json:"is_crisis"`
	Description string      `json:"description,omitempty"`
}

// ValidSeverity reports whether s is one of the known severity grades.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// ValidIntent reports whether i is one of the known intent categories.
func ValidIntent(i Intent) bool {
	switch i {
	case IntentGreeting, IntentVenting, IntentSeekInformation, IntentSeekUnderstanding,
		IntentOpenToSolution, IntentTryTool, IntentSeekSupport, IntentUnclear:
		return true
	}
	return false
}
