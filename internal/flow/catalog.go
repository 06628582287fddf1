// Package flow implements the conversational policy layer: the static catalog
// of situations and flows, the situation-to-flow resolver, the per-session
// step state machine, and the turn nodes wired into the engine registry.
package flow

import "github.com/shrutib31/soul-buddy/internal/models"

// PolicyEntry maps one (situation, severity) pair to a flow, gated by a
// minimum confidence. Entries are unique per (situation, severity, flow) and
// table order is significant: ties on confidence break toward the earlier
// entry.
type PolicyEntry struct {
	Situation     models.SituationID
	Severity      models.Severity
	Flow          models.FlowID
	ConfidenceMin float64
}

// Catalog bundles the full policy configuration handed to NewResolver.
type Catalog struct {
	Situations   []models.Situation
	Flows        []models.Flow
	Policies     []PolicyEntry
	FallbackFlow models.FlowID
	CrisisFlow   models.FlowID
}

// DefaultCatalog returns the built-in configuration.
func DefaultCatalog() Catalog {
	return Catalog{
		Situations: []models.Situation{
			{ID: models.SituationFirstYearOverwhelm, Category: "academic", Description: "Transition stress in first year"},
			{ID: models.SituationAcademicComparison, Category: "academic", Description: "Feeling behind peers academically"},
			{ID: models.SituationExamAnxiety, Category: "academic", Description: "Exam-related anxiety"},
			{ID: models.SituationGeneralOverwhelm, Category: "emotional", Description: "Diffuse overwhelm across domains"},
			{ID: models.SituationLowMotivation, Category: "emotional", Description: "Exhaustion and reduced drive"},
			{ID: models.SituationBelongingDoubt, Category: "social", Description: "Feeling out of place or not fitting in"},
			{ID: models.SituationUnlabeledDistress, Category: "fallback", Description: "Vague or unclear distress"},
			{ID: models.SituationPassiveDeathWish, Category: "crisis", IsCrisis: true, Description: "Passive death-related thoughts"},
		},
		Flows: []models.Flow{
			{
				ID: models.FlowFirstYearOverwhelm,
				Steps: []models.StepID{
					models.StepExploration, models.StepEmotions, models.StepBody,
					models.StepThoughts, models.StepBehaviors, models.StepGentleSummary,
					models.StepPerspectiveShift, models.StepPsychoeducation, models.StepRedirectToTool,
				},
				AllowTools:           true,
				AllowPsychoeducation: true,
				Description:          "Guided first-year adjustment",
			},
			{
				ID: models.FlowGeneralOverwhelm,
				Steps: []models.StepID{
					models.StepExploration, models.StepEmotions, models.StepBody,
					models.StepThoughts, models.StepGentleSummary, models.StepPerspectiveShift,
					models.StepRedirectToTool,
				},
				AllowTools:           true,
				AllowPsychoeducation: true,
				Description:          "General overwhelm support",
			},
			{
				ID:          models.FlowEmotionalOffload,
				Steps:       []models.StepID{models.StepExploration, models.StepEmotions, models.StepGentleSummary},
				Description: "Pure emotional offload flow",
			},
			{
				ID: models.FlowUnlabeledOverwhelm,
				Steps: []models.StepID{
					models.StepExploration, models.StepEmotions, models.StepBody, models.StepGentleSummary,
				},
				Description: "Fallback safe containment flow",
			},
			{
				ID:          models.FlowCrisisHigh,
				Steps:       []models.StepID{models.StepAcknowledgeRisk, models.StepEncourageSupport},
				IsCrisis:    true,
				Description: "High-risk crisis response",
			},
		},
		Policies: []PolicyEntry{
			{models.SituationFirstYearOverwhelm, models.SeverityLow, models.FlowEmotionalOffload, 0.60},
			{models.SituationFirstYearOverwhelm, models.SeverityMedium, models.FlowFirstYearOverwhelm, 0.65},
			{models.SituationFirstYearOverwhelm, models.SeverityHigh, models.FlowGeneralOverwhelm, 0.65},
			{models.SituationGeneralOverwhelm, models.SeverityLow, models.FlowEmotionalOffload, 0.60},
			{models.SituationGeneralOverwhelm, models.SeverityMedium, models.FlowGeneralOverwhelm, 0.65},
			{models.SituationGeneralOverwhelm, models.SeverityHigh, models.FlowCrisisHigh, 0.70},
			{models.SituationUnlabeledDistress, models.SeverityLow, models.FlowUnlabeledOverwhelm, 0.0},
			{models.SituationUnlabeledDistress, models.SeverityMedium, models.FlowUnlabeledOverwhelm, 0.0},
			{models.SituationUnlabeledDistress, models.SeverityHigh, models.FlowUnlabeledOverwhelm, 0.0},
			{models.SituationPassiveDeathWish, models.SeverityHigh, models.FlowCrisisHigh, 0.0},
		},
		FallbackFlow: models.FlowUnlabeledOverwhelm,
		CrisisFlow:   models.FlowCrisisHigh,
	}
}
