package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Step is one declared unit of work in the turn DAG.
type Step struct {
	Name      StepName
	Reads     []Field
	Writes    []Field
	DependsOn []StepName
	Kind      StepKind
	Timeout   time.Duration // I/O call budget; zero means DefaultStepTimeout
	Run       StepFunc
}

// Registry is the static, validated description of the turn DAG. It is built
// once at process start and never mutated.
type Registry struct {
	steps    map[StepName]*Step
	tiers    [][]StepName
	terminal Step
}

// NewRegistry validates the step table and computes dependency tiers. The
// terminal step runs instead of remaining tiers once a step has recorded an
// error; it is not part of the DAG itself.
func NewRegistry(steps []Step, terminal Step) (*Registry, error) {
	slog.Debug("engine.NewRegistry: building step registry", "steps", len(steps), "terminal", terminal.Name)

	if terminal.Name == "" || terminal.Run == nil {
		return nil, fmt.Errorf("terminal step must have a name and a run function")
	}

	byName := make(map[StepName]*Step, len(steps))
	for i := range steps {
		s := &steps[i]
		if s.Name == "" {
			return nil, fmt.Errorf("step %d has no name", i)
		}
		if s.Run == nil {
			return nil, fmt.Errorf("step %s has no run function", s.Name)
		}
		if s.Kind != KindPure && s.Kind != KindIO {
			return nil, fmt.Errorf("step %s has invalid kind %q", s.Name, s.Kind)
		}
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate step name %s", s.Name)
		}
		byName[s.Name] = s
	}
	if _, clash := byName[terminal.Name]; clash {
		return nil, fmt.Errorf("terminal step %s clashes with a registered step", terminal.Name)
	}

	for _, s := range byName {
		for _, dep := range s.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("step %s depends on unknown step %s", s.Name, dep)
			}
		}
	}

	tiers, err := computeTiers(byName)
	if err != nil {
		return nil, err
	}

	if err := checkWriteOverlaps(byName); err != nil {
		return nil, err
	}

	slog.Debug("engine.NewRegistry: registry validated", "tiers", len(tiers))
	return &Registry{steps: byName, tiers: tiers, terminal: terminal}, nil
}

// Tiers returns the dependency tiers in execution order. Tier 0 holds steps
// with no dependencies; tier k holds steps whose dependencies all sit in
// tiers below k.
func (r *Registry) Tiers() [][]StepName {
	return r.tiers
}

// Step looks up a registered step by name.
func (r *Registry) Step(name StepName) (*Step, bool) {
	s, ok := r.steps[name]
	return s, ok
}

// Terminal returns the designated error-terminal step.
func (r *Registry) Terminal() Step {
	return r.terminal
}

// computeTiers performs a Kahn-style topological sort grouped into tiers and
// reports a cycle if any step can never be scheduled.
func computeTiers(steps map[StepName]*Step) ([][]StepName, error) {
	placed := make(map[StepName]int, len(steps))
	var tiers [][]StepName

	for len(placed) < len(steps) {
		var tier []StepName
		for name, s := range steps {
			if _, done := placed[name]; done {
				continue
			}
			ready := true
			for _, dep := range s.DependsOn {
				if _, done := placed[dep]; !done {
					ready = false
					break
				}
			}
			if ready {
				tier = append(tier, name)
			}
		}
		if len(tier) == 0 {
			var stuck []StepName
			for name := range steps {
				if _, done := placed[name]; !done {
					stuck = append(stuck, name)
				}
			}
			return nil, fmt.Errorf("dependency cycle among steps %v", stuck)
		}
		sortSteps(tier)
		for _, name := range tier {
			placed[name] = len(tiers)
		}
		tiers = append(tiers, tier)
	}
	return tiers, nil
}

// checkWriteOverlaps rejects any two steps with no transitive ordering
// relation whose declared write-sets intersect.
func checkWriteOverlaps(steps map[StepName]*Step) error {
	ancestors := make(map[StepName]map[StepName]bool, len(steps))
	var collect func(name StepName) map[StepName]bool
	collect = func(name StepName) map[StepName]bool {
		if anc, ok := ancestors[name]; ok {
			return anc
		}
		anc := make(map[StepName]bool)
		ancestors[name] = anc // placed before recursion; cycles are caught by computeTiers
		for _, dep := range steps[name].DependsOn {
			anc[dep] = true
			for a := range collect(dep) {
				anc[a] = true
			}
		}
		return anc
	}

	names := make([]StepName, 0, len(steps))
	for name := range steps {
		names = append(names, name)
	}
	sortSteps(names)

	for i, a := range names {
		for _, b := range names[i+1:] {
			if collect(a)[b] || collect(b)[a] {
				continue
			}
			for _, wa := range steps[a].Writes {
				for _, wb := range steps[b].Writes {
					if wa == wb {
						return fmt.Errorf("steps %s and %s may run concurrently but both write %s", a, b, wa)
					}
				}
			}
		}
	}
	return nil
}

func sortSteps(names []StepName) {
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
}
