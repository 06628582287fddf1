package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shrutib31/soul-buddy/internal/models"
)

// ErrCollaborator marks a turn abandoned because persistence or transport was
// unreachable. The caller surfaces a generic failure with no partial state.
var ErrCollaborator = errors.New("collaborator failure")

// ErrPolicy marks a turn that could not resolve a flow even after fallback.
// This must not occur by construction; it is surfaced distinctly so
// misconfiguration is visible in diagnostics.
var ErrPolicy = errors.New("policy resolution failure")

// DefaultTurnTimeout is the whole-turn circuit breaker, a superset of all
// per-step budgets.
const DefaultTurnTimeout = 120 * time.Second

// Listener receives step completions after each tier's merge, in tier
// completion order. Within a tier the relative order is unspecified.
type Listener interface {
	StepCompleted(step StepName, updates Updates, stepErr *StepError)
}

// Opts holds configuration options for the scheduler.
type Opts struct {
	TurnTimeout time.Duration
	StepTimeout time.Duration
}

// Option defines a configuration option for the scheduler.
type Option func(*Opts)

// WithTurnTimeout overrides the whole-turn circuit breaker budget.
func WithTurnTimeout(d time.Duration) Option {
	return func(o *Opts) { o.TurnTimeout = d }
}

// WithStepTimeout overrides the default per-step I/O budget.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Opts) { o.StepTimeout = d }
}

// Scheduler executes turns against a validated registry. Turns for the same
// conversation are serialized; turns for different conversations share no
// mutable state.
type Scheduler struct {
	registry    *Registry
	turnTimeout time.Duration
	stepTimeout time.Duration
	sessions    sessionLocks
}

// NewScheduler creates a scheduler over a validated registry.
func NewScheduler(reg *Registry, opts ...Option) *Scheduler {
	cfg := Opts{TurnTimeout: DefaultTurnTimeout, StepTimeout: DefaultStepTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("engine.NewScheduler: created", "turnTimeout", cfg.TurnTimeout, "stepTimeout", cfg.StepTimeout)
	return &Scheduler{
		registry:    reg,
		turnTimeout: cfg.TurnTimeout,
		stepTimeout: cfg.StepTimeout,
		sessions:    sessionLocks{locks: make(map[string]*sessionLock)},
	}
}

// RunTurn executes one full turn and returns the final state. A nil error
// means the turn produced a rendered response, possibly via the safe-fallback
// path. A returned error wrapping ErrCollaborator means the turn was abandoned
// with no partial persistence.
func (s *Scheduler) RunTurn(ctx context.Context, init models.ConversationState, listener Listener) (models.ConversationState, error) {
	if init.ConversationID != "" {
		release := s.sessions.acquire(init.ConversationID)
		defer release()
	}

	ctx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()

	store := NewStateStore(init)
	slog.Debug("Scheduler.RunTurn: starting", "conversationID", init.ConversationID, "tiers", len(s.registry.Tiers()))

	for tierIdx, tier := range s.registry.Tiers() {
		if state := store.State(); state.Error != nil {
			slog.Info("Scheduler.RunTurn: error recorded, short-circuiting to terminal step",
				"conversationID", state.ConversationID, "failedStep", state.Error.Step, "skippedFromTier", tierIdx)
			s.runTerminal(ctx, store, listener)
			return store.State(), nil
		}
		if ctx.Err() != nil {
			slog.Warn("Scheduler.RunTurn: turn budget exhausted, forcing terminal step",
				"conversationID", store.State().ConversationID, "tier", tierIdx)
			store.RecordError(&StepError{Step: "turn", Reason: "turn budget exceeded", Timeout: true})
			s.runTerminal(ctx, store, listener)
			return store.State(), nil
		}

		results, fatal := s.runTier(ctx, tier, store)
		if fatal != nil {
			slog.Error("Scheduler.RunTurn: collaborator failure, abandoning turn",
				"conversationID", store.State().ConversationID, "tier", tierIdx, "error", fatal)
			return store.State(), fmt.Errorf("%w: %v", ErrCollaborator, fatal)
		}

		// The whole tier has joined; merge updates atomically, then notify.
		for i, name := range tier {
			res := results[i]
			if res.Err != nil {
				store.RecordError(res.Err)
				slog.Warn("Scheduler.RunTurn: step failed", "step", name, "reason", res.Err.Reason, "timeout", res.Err.Timeout)
			} else {
				store.Merge(res.Updates)
			}
		}
		for i, name := range tier {
			if listener != nil {
				listener.StepCompleted(name, results[i].Updates, results[i].Err)
			}
		}
	}

	if state := store.State(); state.Error != nil {
		s.runTerminal(ctx, store, listener)
	}
	slog.Debug("Scheduler.RunTurn: completed", "conversationID", store.State().ConversationID)
	return store.State(), nil
}

// runTier launches every step of a tier concurrently and joins on all of them.
// Timeout of one step never cancels its siblings: each I/O step gets its own
// deadline context.
func (s *Scheduler) runTier(ctx context.Context, tier []StepName, store *StateStore) ([]StepResult, error) {
	results := make([]StepResult, len(tier))
	var wg sync.WaitGroup

	for i, name := range tier {
		step, _ := s.registry.Step(name)
		snap := store.Snapshot(step.Reads)

		wg.Add(1)
		go func(i int, step *Step, snap models.ConversationState) {
			defer wg.Done()
			results[i] = s.runStep(ctx, step, snap)
		}(i, step, snap)
	}
	wg.Wait()

	for _, res := range results {
		if res.Fatal != nil {
			return results, res.Fatal
		}
	}
	return results, nil
}

// runStep invokes one step with its own budget and checks the returned
// updates against the step's declared write-set.
func (s *Scheduler) runStep(ctx context.Context, step *Step, snap models.ConversationState) StepResult {
	if step.Kind == KindIO {
		budget := step.Timeout
		if budget <= 0 {
			budget = s.stepTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	started := time.Now()
	res := invokeStep(ctx, step, snap)
	slog.Debug("Scheduler.runStep: step returned", "step", step.Name, "durationMs", time.Since(started).Milliseconds(),
		"failed", res.Err != nil, "fatal", res.Fatal != nil)

	if res.Err != nil || res.Fatal != nil {
		return res
	}
	if undeclared := undeclaredWrites(step, res.Updates); len(undeclared) > 0 {
		return Fail(step.Name, fmt.Sprintf("undeclared writes %v", undeclared))
	}
	return res
}

// invokeStep runs a step body behind a recover so a panicking step surfaces
// as a step failure instead of killing the process.
func invokeStep(ctx context.Context, step *Step, snap models.ConversationState) (res StepResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Scheduler.runStep: step panicked", "step", step.Name, "panic", r)
			res = Fail(step.Name, fmt.Sprintf("panic: %v", r))
		}
	}()
	return step.Run(ctx, snap)
}

// runTerminal executes the designated error-terminal step. Its updates merge
// unconditionally: the error path is the only one allowed to act once the
// error field is set.
func (s *Scheduler) runTerminal(ctx context.Context, store *StateStore, listener Listener) {
	terminal := s.registry.Terminal()
	snap := store.Snapshot(terminal.Reads)
	res := terminal.Run(ctx, snap)
	if res.Err != nil || res.Fatal != nil {
		// The terminal step is pure and must not fail; leave the state as-is.
		slog.Error("Scheduler.runTerminal: terminal step failed", "step", terminal.Name)
		return
	}
	store.Merge(res.Updates)
	if listener != nil {
		listener.StepCompleted(terminal.Name, res.Updates, nil)
	}
}

func undeclaredWrites(step *Step, u Updates) []Field {
	declared := make(map[Field]bool, len(step.Writes))
	for _, w := range step.Writes {
		declared[w] = true
	}
	var bad []Field
	for _, f := range u.Fields() {
		if !declared[f] {
			bad = append(bad, f)
		}
	}
	return bad
}

// sessionLocks serializes turns per conversation. Entries are refcounted and
// removed once the last holder releases, so idle conversations cost nothing.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (s *sessionLocks) acquire(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
