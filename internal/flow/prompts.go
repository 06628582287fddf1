package flow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shrutib31/soul-buddy/internal/models"
)

const intentSystemPrompt = `You classify the intent of a single user message in a supportive wellbeing conversation.
Reply with exactly one label and nothing else:
GREETING, VENTING, SEEK_INFORMATION, SEEK_UNDERSTANDING, OPEN_TO_SOLUTION, TRY_TOOL, SEEK_SUPPORT, UNCLEAR.`

const situationSystemPrompt = `You detect the situation a user is describing in a supportive wellbeing conversation.
Known situations: FIRST_YEAR_OVERWHELM, ACADEMIC_COMPARISON, EXAM_ANXIETY, GENERAL_OVERWHELM, LOW_MOTIVATION, BELONGING_DOUBT, UNLABELED_DISTRESS, PASSIVE_DEATH_WISH.
Reply with JSON only, no prose:
{"situation": "<one of the known situations>", "severity": "low|medium|high", "confidence": <0.0-1.0>}`

const responderPersona = `You are Soul Buddy, a warm, non-clinical companion for people under stress.
Speak in short, plain sentences. Never diagnose, never moralize, never rush to fix.
Stay with what the user actually said.`

// stepGuidance maps each flow step to the responder instruction for that step.
var stepGuidance = map[models.StepID]string{
	models.StepExploration:      "Invite the user to say more about what is going on. One open question at most.",
	models.StepEmotions:         "Reflect the feelings you hear and ask gently what emotions are present.",
	models.StepBody:             "Ask how this shows up in their body, such as sleep, appetite or tension.",
	models.StepThoughts:         "Ask what thoughts keep coming back when this happens.",
	models.StepBehaviors:        "Ask what they find themselves doing, or avoiding, when this hits.",
	models.StepGentleSummary:    "Summarize what they have shared so far in their own words, tentatively.",
	models.StepPerspectiveShift: "Offer one gentle reframe, clearly marked as optional.",
	models.StepPsychoeducation:  "Share one small, concrete piece of context about how stress works. No jargon.",
	models.StepRedirectToTool:   "Suggest one simple exercise they could try right now, and ask if they want it.",
	models.StepAcknowledgeRisk:  "Acknowledge the pain directly and seriously. Do not minimize and do not panic.",
	models.StepEncourageSupport: "Encourage reaching out to a trusted person or the 988 lifeline, without pressure.",
}

// responderPrompt assembles the system prompt for the generation step from the
// active flow position and the analysis results.
func responderPrompt(snap models.ConversationState, step models.StepID) string {
	var b strings.Builder
	b.WriteString(responderPersona)
	if g, ok := stepGuidance[step]; ok {
		b.WriteString("\n\nFor this reply: ")
		b.WriteString(g)
	}
	if snap.Situation != "" {
		fmt.Fprintf(&b, "\n\nDetected situation: %s (severity %s).", snap.Situation, snap.Severity)
	}
	if snap.RiskLevel == models.RiskHigh {
		b.WriteString("\nThe user may be at risk. Be direct, caring, and keep them company. Do not give instructions beyond seeking help.")
	}
	return b.String()
}

// parseIntent extracts a known intent label from classifier output, defaulting
// to UNCLEAR when the output is not a recognizable label.
func parseIntent(raw string) models.Intent {
	token := models.Intent(strings.ToUpper(strings.TrimSpace(raw)))
	if models.ValidIntent(token) {
		return token
	}
	// Some backends wrap the label in prose; accept the first known label found.
	upper := strings.ToUpper(raw)
	for _, i := range []models.Intent{
		models.IntentGreeting, models.IntentVenting, models.IntentSeekInformation,
		models.IntentSeekUnderstanding, models.IntentOpenToSolution, models.IntentTryTool,
		models.IntentSeekSupport, models.IntentUnclear,
	} {
		if strings.Contains(upper, string(i)) {
			return i
		}
	}
	return models.IntentUnclear
}

type situationVerdict struct {
	Situation  models.SituationID `json:"situation"`
	Severity   models.Severity    `json:"severity"`
	Confidence float64            `json:"confidence"`
}

// parseSituation extracts the detection verdict from classifier output. Output
// that is not valid JSON, names an unknown situation, or carries an unknown
// severity yields the unlabeled fallback verdict.
func parseSituation(raw string, known map[models.SituationID]models.Situation) situationVerdict {
	fallback := situationVerdict{
		Situation:  models.SituationUnlabeledDistress,
		Severity:   models.SeverityLow,
		Confidence: 0.0,
	}

	var v situationVerdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		// Tolerate prose around the JSON object.
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start < 0 || end <= start {
			return fallback
		}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
			return fallback
		}
	}
	if _, ok := known[v.Situation]; !ok {
		return fallback
	}
	if !models.ValidSeverity(v.Severity) {
		return fallback
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return fallback
	}
	return v
}

// readinessForIntent maps the classified intent to the readiness score that
// gates flow advancement on the next turn. Action-oriented intents score high,
// expressive intents low.
func readinessForIntent(i models.Intent) int {
	switch i {
	case models.IntentTryTool:
		return 9
	case models.IntentOpenToSolution:
		return 8
	case models.IntentSeekInformation, models.IntentSeekUnderstanding:
		return 6
	case models.IntentSeekSupport:
		return 5
	case models.IntentVenting:
		return 3
	case models.IntentGreeting:
		return 2
	default:
		return 0
	}
}
