package flow

import (
	"fmt"
	"log/slog"

	"github.com/shrutib31/soul-buddy/internal/models"
)

// Resolver selects a flow from the policy table. Resolution is deterministic:
// identical inputs against an unchanged table always yield the same flow.
type Resolver struct {
	entries    []PolicyEntry
	flows      map[models.FlowID]models.Flow
	situations map[models.SituationID]models.Situation
	fallback   models.FlowID
	crisis     models.FlowID
}

// NewResolver validates the catalog and builds a resolver. Misconfiguration
// (unknown flows, empty scripts, missing fallback or crisis flow, duplicate
// policy keys) fails here so it can never surface mid-turn.
func NewResolver(cat Catalog) (*Resolver, error) {
	flows := make(map[models.FlowID]models.Flow, len(cat.Flows))
	for _, f := range cat.Flows {
		if len(f.Steps) == 0 {
			return nil, fmt.Errorf("flow %s has no steps", f.ID)
		}
		if _, dup := flows[f.ID]; dup {
			return nil, fmt.Errorf("duplicate flow %s", f.ID)
		}
		flows[f.ID] = f
	}

	situations := make(map[models.SituationID]models.Situation, len(cat.Situations))
	for _, s := range cat.Situations {
		situations[s.ID] = s
	}

	seen := make(map[PolicyEntry]bool, len(cat.Policies))
	for _, e := range cat.Policies {
		key := PolicyEntry{Situation: e.Situation, Severity: e.Severity, Flow: e.Flow}
		if seen[key] {
			return nil, fmt.Errorf("duplicate policy entry (%s, %s, %s)", e.Situation, e.Severity, e.Flow)
		}
		seen[key] = true
		if _, ok := flows[e.Flow]; !ok {
			return nil, fmt.Errorf("policy entry references unknown flow %s", e.Flow)
		}
		if _, ok := situations[e.Situation]; !ok {
			return nil, fmt.Errorf("policy entry references unknown situation %s", e.Situation)
		}
	}

	if _, ok := flows[cat.FallbackFlow]; !ok {
		return nil, fmt.Errorf("fallback flow %s not in catalog", cat.FallbackFlow)
	}
	if _, ok := flows[cat.CrisisFlow]; !ok {
		return nil, fmt.Errorf("crisis flow %s not in catalog", cat.CrisisFlow)
	}

	slog.Debug("flow.NewResolver: catalog validated", "flows", len(flows), "situations", len(situations), "policies", len(cat.Policies))
	return &Resolver{
		entries:    cat.Policies,
		flows:      flows,
		situations: situations,
		fallback:   cat.FallbackFlow,
		crisis:     cat.CrisisFlow,
	}, nil
}

// Resolve maps (situation, severity, confidence) to a flow. High risk or a
// crisis-flagged situation overrides any computed flow with the crisis flow;
// no qualifying entry yields the configured fallback flow. Among qualifying
// entries the highest ConfidenceMin wins, ties breaking toward the earlier
// table entry.
func (r *Resolver) Resolve(situation models.SituationID, severity models.Severity, confidence float64, riskLevel models.RiskLevel) models.FlowID {
	if riskLevel == models.RiskHigh {
		slog.Info("Resolver.Resolve: high risk override", "situation", situation, "severity", severity)
		return r.crisis
	}
	if s, ok := r.situations[situation]; ok && s.IsCrisis {
		slog.Info("Resolver.Resolve: crisis situation override", "situation", situation)
		return r.crisis
	}

	best := -1
	for i, e := range r.entries {
		if e.Situation != situation || e.Severity != severity {
			continue
		}
		if e.ConfidenceMin > confidence {
			continue
		}
		// Strict > keeps the earlier entry on equal thresholds.
		if best == -1 || e.ConfidenceMin > r.entries[best].ConfidenceMin {
			best = i
		}
	}
	if best == -1 {
		slog.Debug("Resolver.Resolve: no policy match, using fallback", "situation", situation, "severity", severity, "confidence", confidence)
		return r.fallback
	}
	return r.entries[best].Flow
}

// Flow looks up a flow definition by id.
func (r *Resolver) Flow(id models.FlowID) (models.Flow, bool) {
	f, ok := r.flows[id]
	return f, ok
}

// Situations returns the known situation table keyed by id.
func (r *Resolver) Situations() map[models.SituationID]models.Situation {
	return r.situations
}

// FallbackFlow returns the configured fallback flow id.
func (r *Resolver) FallbackFlow() models.FlowID {
	return r.fallback
}

// CrisisFlow returns the configured crisis flow id.
func (r *Resolver) CrisisFlow() models.FlowID {
	return r.crisis
}
