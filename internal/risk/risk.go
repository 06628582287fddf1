// Package risk provides a fixed lexicon of risk phrases, message screening,
// and crisis resource text for the safety step of the turn pipeline.
//
// The screener is deliberately conservative and purely lexical: it runs on
// every turn before any flow is resolved, so a high signal can force the
// crisis flow regardless of what the inference backends report.
package risk

import "strings"

// highRiskPhrases signal possible self-harm or passive death wish.
var highRiskPhrases = []string{
	"kill myself",
	"end my life",
	"end it all",
	"want to die",
	"wish i was dead",
	"wish i were dead",
	"don't want to be here anymore",
	"dont want to be here anymore",
	"no point in living",
	"better off without me",
	"hurt myself",
	"harm myself",
}

// mediumRiskPhrases signal sustained distress without an acute marker.
var mediumRiskPhrases = []string{
	"can't take it anymore",
	"cant take it anymore",
	"completely hopeless",
	"given up",
	"falling apart",
	"can't cope",
	"cant cope",
	"breaking down",
}

// Match is one screening hit.
type Match struct {
	Phrase string
	Level  string
}

// Screener scans user messages against the risk lexicon.
type Screener struct {
	high   []string
	medium []string
}

// NewScreener creates a screener over the built-in lexicon.
func NewScreener() *Screener {
	return &Screener{high: highRiskPhrases, medium: mediumRiskPhrases}
}

// Screen classifies a message as "high", "medium" or "low" and returns the
// matched phrases. Matching is case-insensitive substring search.
func (s *Screener) Screen(message string) (string, []Match) {
	lower := strings.ToLower(message)
	var matches []Match
	for _, p := range s.high {
		if strings.Contains(lower, p) {
			matches = append(matches, Match{Phrase: p, Level: "high"})
		}
	}
	if len(matches) > 0 {
		return "high", matches
	}
	for _, p := range s.medium {
		if strings.Contains(lower, p) {
			matches = append(matches, Match{Phrase: p, Level: "medium"})
		}
	}
	if len(matches) > 0 {
		return "medium", matches
	}
	return "low", nil
}

// CrisisFooter is appended to responses when the risk level is high and the
// draft does not already point at external support.
const CrisisFooter = "\n\nIf you are thinking about harming yourself, please reach out right now: call or text 988 (Suicide & Crisis Lifeline), or talk to someone you trust. You don't have to carry this alone."

// MentionsSupport reports whether a draft already references crisis support,
// so the footer is not appended twice.
func MentionsSupport(draft string) bool {
	lower := strings.ToLower(draft)
	return strings.Contains(lower, "988") || strings.Contains(lower, "crisis line") || strings.Contains(lower, "lifeline")
}
