package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shrutib31/soul-buddy/internal/engine"
	"github.com/shrutib31/soul-buddy/internal/genai"
	"github.com/shrutib31/soul-buddy/internal/models"
	"github.com/shrutib31/soul-buddy/internal/risk"
	"github.com/shrutib31/soul-buddy/internal/store"
)

// Turn node names. These are the step identities in the engine registry and
// the node labels carried on stream events.
const (
	NodeConversationID     engine.StepName = "conv_id_handler"
	NodeStoreMessage       engine.StepName = "store_message"
	NodeIntentDetection    engine.StepName = "intent_detection"
	NodeSituationSeverity  engine.StepName = "situation_severity"
	NodeRiskAssessment     engine.StepName = "risk_assessment"
	NodeFlowResolution     engine.StepName = "flow_resolution"
	NodeResponseGeneration engine.StepName = "response_generation"
	NodeGuardrail          engine.StepName = "guardrail"
	NodeStoreBotResponse   engine.StepName = "store_bot_response"
	NodeRender             engine.StepName = "render"
	NodeSafeFallback       engine.StepName = "safe_fallback"
)

// Per-node call budgets. The classifiers are cheap and degrade gracefully, so
// they get a short leash; generation fans out to every backend and waits.
const (
	classifierTimeout = 15 * time.Second
	generationTimeout = 60 * time.Second
)

// safeFallbackText is shown when a turn cannot complete normally.
const safeFallbackText = "I'm having trouble responding right now, but I'm still here. " +
	"Whatever you shared matters. Could you try sending that again in a moment?"

// Deps carries the collaborators the turn nodes close over.
type Deps struct {
	Store      store.Store
	Classifier genai.Generator
	Responder  *genai.MultiGenerator
	Resolver   *Resolver
	FSM        *StepFSM
	Screener   *risk.Screener
}

// BuildRegistry assembles the full turn DAG over the given collaborators. The
// returned registry is validated: construction fails on cycles, unknown
// dependencies, or write-set overlaps between concurrent nodes.
func BuildRegistry(deps Deps) (*engine.Registry, error) {
	if deps.Store == nil || deps.Classifier == nil || deps.Responder == nil ||
		deps.Resolver == nil || deps.FSM == nil || deps.Screener == nil {
		return nil, fmt.Errorf("flow.BuildRegistry: all dependencies must be set")
	}

	steps := []engine.Step{
		{
			Name:   NodeConversationID,
			Reads:  []engine.Field{engine.FieldConversationID, engine.FieldMode, engine.FieldDomain},
			Writes: []engine.Field{engine.FieldConversationID},
			Kind:   engine.KindIO,
			Run:    deps.conversationIDHandler,
		},
		{
			Name:      NodeStoreMessage,
			Reads:     []engine.Field{engine.FieldConversationID, engine.FieldUserMessage},
			DependsOn: []engine.StepName{NodeConversationID},
			Kind:      engine.KindIO,
			Run:       deps.storeMessage,
		},
		{
			Name:      NodeIntentDetection,
			Reads:     []engine.Field{engine.FieldUserMessage},
			Writes:    []engine.Field{engine.FieldIntent},
			DependsOn: []engine.StepName{NodeConversationID},
			Kind:      engine.KindIO,
			Timeout:   classifierTimeout,
			Run:       deps.intentDetection,
		},
		{
			Name:      NodeSituationSeverity,
			Reads:     []engine.Field{engine.FieldUserMessage, engine.FieldDomain},
			Writes:    []engine.Field{engine.FieldSituation, engine.FieldSeverity, engine.FieldConfidence},
			DependsOn: []engine.StepName{NodeConversationID},
			Kind:      engine.KindIO,
			Timeout:   classifierTimeout,
			Run:       deps.situationSeverity,
		},
		{
			Name:      NodeRiskAssessment,
			Reads:     []engine.Field{engine.FieldUserMessage},
			Writes:    []engine.Field{engine.FieldRiskLevel},
			DependsOn: []engine.StepName{NodeConversationID},
			Kind:      engine.KindPure,
			Run:       deps.riskAssessment,
		},
		{
			Name: NodeFlowResolution,
			Reads: []engine.Field{
				engine.FieldConversationID, engine.FieldSituation, engine.FieldSeverity,
				engine.FieldConfidence, engine.FieldRiskLevel,
			},
			Writes:    []engine.Field{engine.FieldFlowID, engine.FieldStepIndex},
			DependsOn: []engine.StepName{NodeStoreMessage, NodeIntentDetection, NodeSituationSeverity, NodeRiskAssessment},
			Kind:      engine.KindIO,
			Run:       deps.flowResolution,
		},
		{
			Name: NodeResponseGeneration,
			Reads: []engine.Field{
				engine.FieldUserMessage, engine.FieldIntent, engine.FieldSituation,
				engine.FieldSeverity, engine.FieldRiskLevel, engine.FieldFlowID,
				engine.FieldStepIndex, engine.FieldPageContext, engine.FieldDomain,
			},
			Writes:    []engine.Field{engine.FieldResponseDraft, engine.FieldReadinessScore, engine.FieldCandidates},
			DependsOn: []engine.StepName{NodeFlowResolution},
			Kind:      engine.KindIO,
			Timeout:   generationTimeout,
			Run:       deps.responseGeneration,
		},
		{
			Name:      NodeGuardrail,
			Reads:     []engine.Field{engine.FieldResponseDraft, engine.FieldRiskLevel},
			Writes:    []engine.Field{engine.FieldResponseDraft, engine.FieldGuardrailStatus},
			DependsOn: []engine.StepName{NodeResponseGeneration},
			Kind:      engine.KindPure,
			Run:       deps.guardrail,
		},
		{
			Name: NodeStoreBotResponse,
			Reads: []engine.Field{
				engine.FieldConversationID, engine.FieldResponseDraft, engine.FieldReadinessScore,
			},
			DependsOn: []engine.StepName{NodeGuardrail},
			Kind:      engine.KindIO,
			Run:       deps.storeBotResponse,
		},
		{
			Name: NodeRender,
			Reads: []engine.Field{
				engine.FieldConversationID, engine.FieldMode, engine.FieldDomain,
				engine.FieldResponseDraft, engine.FieldIntent, engine.FieldSituation,
				engine.FieldSeverity, engine.FieldConfidence, engine.FieldRiskLevel,
				engine.FieldFlowID, engine.FieldStepIndex, engine.FieldGuardrailStatus,
			},
			Writes:    []engine.Field{engine.FieldFinal},
			DependsOn: []engine.StepName{NodeStoreBotResponse},
			Kind:      engine.KindPure,
			Run:       deps.render,
		},
	}

	terminal := engine.Step{
		Name: NodeSafeFallback,
		Reads: []engine.Field{
			engine.FieldConversationID, engine.FieldMode, engine.FieldDomain,
			engine.FieldRiskLevel, engine.FieldError,
		},
		Writes: []engine.Field{engine.FieldFinal},
		Kind:   engine.KindPure,
		Run:    deps.safeFallback,
	}

	return engine.NewRegistry(steps, terminal)
}

// conversationIDHandler mints an id for a fresh session and ensures the
// conversation row exists. An id supplied by the client is trusted as-is once
// it resolves to a stored conversation.
func (d Deps) conversationIDHandler(ctx context.Context, snap models.ConversationState) engine.StepResult {
	id := snap.ConversationID
	if id == "" {
		id = uuid.NewString()
		slog.Debug("conversationIDHandler: minted conversation id", "conversationID", id, "mode", snap.Mode)
	} else if existing, err := d.Store.GetConversation(id); err != nil {
		return engine.Abort(fmt.Errorf("%w: load conversation: %v", engine.ErrCollaborator, err))
	} else if existing != nil {
		return engine.OK(engine.Updates{ConversationID: &id})
	}

	conv := models.Conversation{ID: id, Mode: snap.Mode, Domain: snap.Domain, StartedAt: time.Now().UTC()}
	if err := d.Store.CreateConversation(conv); err != nil {
		return engine.Abort(fmt.Errorf("%w: create conversation: %v", engine.ErrCollaborator, err))
	}
	return engine.OK(engine.Updates{ConversationID: &id})
}

func (d Deps) storeMessage(ctx context.Context, snap models.ConversationState) engine.StepResult {
	turn := models.Turn{
		ConversationID: snap.ConversationID,
		Speaker:        models.SpeakerUser,
		Body:           snap.UserMessage,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := d.Store.AddTurn(turn); err != nil {
		return engine.Abort(fmt.Errorf("%w: store user message: %v", engine.ErrCollaborator, err))
	}
	return engine.OK(engine.Updates{})
}

// intentDetection classifies the message intent. Classification is
// best-effort: any backend failure, timeout, or unparseable output degrades to
// UNCLEAR without failing the turn.
func (d Deps) intentDetection(ctx context.Context, snap models.ConversationState) engine.StepResult {
	intent := models.IntentUnclear
	raw, err := d.Classifier.Generate(ctx, genai.Request{System: intentSystemPrompt, User: snap.UserMessage})
	if err != nil {
		slog.Warn("intentDetection: classifier failed, defaulting to UNCLEAR", "error", err)
	} else {
		intent = parseIntent(raw)
	}
	return engine.OK(engine.Updates{Intent: &intent})
}

// situationSeverity detects the user's situation. Like intent detection it
// degrades to the unlabeled fallback verdict rather than failing the turn.
func (d Deps) situationSeverity(ctx context.Context, snap models.ConversationState) engine.StepResult {
	verdict := situationVerdict{
		Situation:  models.SituationUnlabeledDistress,
		Severity:   models.SeverityLow,
		Confidence: 0.0,
	}
	raw, err := d.Classifier.Generate(ctx, genai.Request{System: situationSystemPrompt, User: snap.UserMessage})
	if err != nil {
		slog.Warn("situationSeverity: classifier failed, using unlabeled fallback", "error", err)
	} else {
		verdict = parseSituation(raw, d.Resolver.Situations())
	}
	return engine.OK(engine.Updates{
		Situation:  &verdict.Situation,
		Severity:   &verdict.Severity,
		Confidence: &verdict.Confidence,
	})
}

func (d Deps) riskAssessment(ctx context.Context, snap models.ConversationState) engine.StepResult {
	level, matches := d.Screener.Screen(snap.UserMessage)
	riskLevel := models.RiskLevel(level)
	if riskLevel != models.RiskLow {
		slog.Info("riskAssessment: elevated risk detected", "level", riskLevel, "matches", len(matches))
	}
	return engine.OK(engine.Updates{RiskLevel: &riskLevel})
}

// flowResolution applies the policy table and advances the per-session step
// machine, persisting the new position.
func (d Deps) flowResolution(ctx context.Context, snap models.ConversationState) engine.StepResult {
	flowID := d.Resolver.Resolve(snap.Situation, snap.Severity, snap.Confidence, snap.RiskLevel)
	flow, ok := d.Resolver.Flow(flowID)
	if !ok {
		return engine.Abort(fmt.Errorf("%w: resolved flow %s not in catalog", engine.ErrPolicy, flowID))
	}

	st, err := d.FSM.Advance(ctx, snap.ConversationID, flow)
	if err != nil {
		return engine.Abort(fmt.Errorf("%w: advance flow state: %v", engine.ErrCollaborator, err))
	}
	return engine.OK(engine.Updates{FlowID: &flowID, StepIndex: &st.StepIndex})
}

// responseGeneration fans the request out to every configured backend and
// keeps all successful candidates alongside the selected draft. Total backend
// failure is a step failure and routes the turn to the safe fallback.
func (d Deps) responseGeneration(ctx context.Context, snap models.ConversationState) engine.StepResult {
	flow, ok := d.Resolver.Flow(snap.FlowID)
	if !ok {
		return engine.Fail(NodeResponseGeneration, fmt.Sprintf("unknown flow %s", snap.FlowID))
	}
	stepID := flow.Steps[0]
	if snap.StepIndex >= 0 && snap.StepIndex < len(flow.Steps) {
		stepID = flow.Steps[snap.StepIndex]
	}

	req := genai.Request{System: responderPrompt(snap, stepID), User: snap.UserMessage}
	selected, candidates, ok := d.Responder.GenerateAll(ctx, req)
	if !ok {
		if ctx.Err() != nil {
			return engine.FailTimeout(NodeResponseGeneration, "generation budget expired")
		}
		return engine.Fail(NodeResponseGeneration, "all generation backends failed")
	}

	readiness := readinessForIntent(snap.Intent)
	return engine.OK(engine.Updates{
		ResponseDraft:  &selected,
		ReadinessScore: &readiness,
		Candidates:     candidates,
	})
}

// guardrail inspects the draft before it is shown. High-risk turns whose draft
// does not already point at support get the crisis footer appended.
func (d Deps) guardrail(ctx context.Context, snap models.ConversationState) engine.StepResult {
	draft := snap.ResponseDraft
	status := "passed"
	if snap.RiskLevel == models.RiskHigh && !risk.MentionsSupport(draft) {
		draft += risk.CrisisFooter
		status = "amended"
		slog.Info("guardrail: appended crisis resources to draft")
	}
	return engine.OK(engine.Updates{ResponseDraft: &draft, GuardrailStatus: &status})
}

// storeBotResponse persists the assistant turn and the readiness score that
// gates the next turn's flow advancement.
func (d Deps) storeBotResponse(ctx context.Context, snap models.ConversationState) engine.StepResult {
	turn := models.Turn{
		ConversationID: snap.ConversationID,
		Speaker:        models.SpeakerAssistant,
		Body:           snap.ResponseDraft,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := d.Store.AddTurn(turn); err != nil {
		return engine.Abort(fmt.Errorf("%w: store bot response: %v", engine.ErrCollaborator, err))
	}
	if err := d.Store.SetFlowReadiness(snap.ConversationID, snap.ReadinessScore); err != nil {
		return engine.Abort(fmt.Errorf("%w: persist readiness: %v", engine.ErrCollaborator, err))
	}
	return engine.OK(engine.Updates{})
}

func (d Deps) render(ctx context.Context, snap models.ConversationState) engine.StepResult {
	final := &models.FinalResponse{
		Success:        true,
		ConversationID: snap.ConversationID,
		Mode:           snap.Mode,
		Domain:         snap.Domain,
		Response:       snap.ResponseDraft,
		Metadata: map[string]any{
			"intent":           snap.Intent,
			"situation":        snap.Situation,
			"severity":         snap.Severity,
			"confidence":       snap.Confidence,
			"risk_level":       snap.RiskLevel,
			"flow_id":          snap.FlowID,
			"step_index":       snap.StepIndex,
			"guardrail_status": snap.GuardrailStatus,
		},
	}
	return engine.OK(engine.Updates{Final: final})
}

// safeFallback runs instead of the remaining tiers once a step has recorded an
// error. It never touches collaborators.
func (d Deps) safeFallback(ctx context.Context, snap models.ConversationState) engine.StepResult {
	text := safeFallbackText
	if snap.RiskLevel == models.RiskHigh {
		text += risk.CrisisFooter
	}
	reason := "turn aborted"
	if snap.Error != nil {
		reason = fmt.Sprintf("step %s: %s", snap.Error.Step, snap.Error.Reason)
	}
	final := &models.FinalResponse{
		Success:        false,
		ConversationID: snap.ConversationID,
		Mode:           snap.Mode,
		Domain:         snap.Domain,
		Response:       text,
		Error:          reason,
		Metadata:       map[string]any{"fallback": true},
	}
	return engine.OK(engine.Updates{Final: final})
}
