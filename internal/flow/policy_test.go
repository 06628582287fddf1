package flow

import (
	"testing"

	"github.com/shrutib31/soul-buddy/internal/models"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(DefaultCatalog())
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return r
}

func TestResolveMapsQualifyingEntry(t *testing.T) {
	r := newTestResolver(t)

	cases := []struct {
		name       string
		situation  models.SituationID
		severity   models.Severity
		confidence float64
		want       models.FlowID
	}{
		{"first year medium", models.SituationFirstYearOverwhelm, models.SeverityMedium, 0.8, models.FlowFirstYearOverwhelm},
		{"first year low", models.SituationFirstYearOverwhelm, models.SeverityLow, 0.7, models.FlowEmotionalOffload},
		{"general high", models.SituationGeneralOverwhelm, models.SeverityHigh, 0.75, models.FlowCrisisHigh},
		{"unlabeled any confidence", models.SituationUnlabeledDistress, models.SeverityLow, 0.0, models.FlowUnlabeledOverwhelm},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := r.Resolve(tc.situation, tc.severity, tc.confidence, models.RiskLow)
			if got != tc.want {
				t.Errorf("Resolve(%s, %s, %.2f) = %s, want %s", tc.situation, tc.severity, tc.confidence, got, tc.want)
			}
		})
	}
}

func TestResolveBelowConfidenceFallsBack(t *testing.T) {
	r := newTestResolver(t)
	got := r.Resolve(models.SituationFirstYearOverwhelm, models.SeverityMedium, 0.5, models.RiskLow)
	if got != models.FlowUnlabeledOverwhelm {
		t.Errorf("below-threshold confidence should use fallback flow, got %s", got)
	}
}

func TestResolveUnknownPairFallsBack(t *testing.T) {
	r := newTestResolver(t)
	// Exam anxiety has no policy entry; the fallback flow covers it.
	got := r.Resolve(models.SituationExamAnxiety, models.SeverityMedium, 0.9, models.RiskLow)
	if got != models.FlowUnlabeledOverwhelm {
		t.Errorf("unmapped situation should use fallback flow, got %s", got)
	}
}

func TestResolveHighRiskOverridesEverything(t *testing.T) {
	r := newTestResolver(t)
	got := r.Resolve(models.SituationFirstYearOverwhelm, models.SeverityLow, 0.9, models.RiskHigh)
	if got != models.FlowCrisisHigh {
		t.Errorf("high risk should force the crisis flow, got %s", got)
	}
}

func TestResolveCrisisSituationOverrides(t *testing.T) {
	r := newTestResolver(t)
	got := r.Resolve(models.SituationPassiveDeathWish, models.SeverityLow, 0.0, models.RiskLow)
	if got != models.FlowCrisisHigh {
		t.Errorf("crisis-flagged situation should force the crisis flow, got %s", got)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	r := newTestResolver(t)
	first := r.Resolve(models.SituationGeneralOverwhelm, models.SeverityMedium, 0.7, models.RiskLow)
	for i := 0; i < 50; i++ {
		if got := r.Resolve(models.SituationGeneralOverwhelm, models.SeverityMedium, 0.7, models.RiskLow); got != first {
			t.Fatalf("resolution changed between identical calls: %s vs %s", first, got)
		}
	}
}

func TestResolveTieBreaksTowardEarlierEntry(t *testing.T) {
	cat := DefaultCatalog()
	cat.Policies = []PolicyEntry{
		{models.SituationGeneralOverwhelm, models.SeverityLow, models.FlowEmotionalOffload, 0.5},
		{models.SituationGeneralOverwhelm, models.SeverityLow, models.FlowGeneralOverwhelm, 0.5},
	}
	r, err := NewResolver(cat)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	got := r.Resolve(models.SituationGeneralOverwhelm, models.SeverityLow, 0.9, models.RiskLow)
	if got != models.FlowEmotionalOffload {
		t.Errorf("equal thresholds should keep the earlier entry, got %s", got)
	}
}

func TestNewResolverRejectsEmptyFlow(t *testing.T) {
	cat := DefaultCatalog()
	cat.Flows = append(cat.Flows, models.Flow{ID: "FLOW_EMPTY"})
	if _, err := NewResolver(cat); err == nil {
		t.Fatal("expected flow with no steps to be rejected")
	}
}

func TestNewResolverRejectsUnknownFlowReference(t *testing.T) {
	cat := DefaultCatalog()
	cat.Policies = append(cat.Policies, PolicyEntry{
		Situation: models.SituationExamAnxiety, Severity: models.SeverityLow, Flow: "FLOW_NOWHERE",
	})
	if _, err := NewResolver(cat); err == nil {
		t.Fatal("expected unknown flow reference to be rejected")
	}
}

func TestNewResolverRejectsDuplicatePolicyEntry(t *testing.T) {
	cat := DefaultCatalog()
	cat.Policies = append(cat.Policies, cat.Policies[0])
	if _, err := NewResolver(cat); err == nil {
		t.Fatal("expected duplicate policy entry to be rejected")
	}
}

func TestNewResolverRequiresFallbackAndCrisisFlows(t *testing.T) {
	cat := DefaultCatalog()
	cat.FallbackFlow = "FLOW_NOWHERE"
	if _, err := NewResolver(cat); err == nil {
		t.Fatal("expected missing fallback flow to be rejected")
	}

	cat = DefaultCatalog()
	cat.CrisisFlow = "FLOW_NOWHERE"
	if _, err := NewResolver(cat); err == nil {
		t.Fatal("expected missing crisis flow to be rejected")
	}
}
