// Package stream adapts step completions into the client-visible event
// stream. Each turn produces zero or more progress events and exactly one
// final_response event, in completion order.
package stream

import (
	"log/slog"

	"github.com/shrutib31/soul-buddy/internal/engine"
	"github.com/shrutib31/soul-buddy/internal/flow"
	"github.com/shrutib31/soul-buddy/internal/models"
)

// Sink consumes one stream event. The renderer calls it from the turn's
// goroutine, never concurrently.
type Sink func(models.StreamEvent)

// Renderer implements engine.Listener and translates step completions into
// typed stream events. Persistence steps are deliberately silent: the client
// has no use for storage acknowledgements.
type Renderer struct {
	sink         Sink
	emittedFinal bool
}

// NewRenderer creates a renderer over the given sink.
func NewRenderer(sink Sink) *Renderer {
	return &Renderer{sink: sink}
}

// StepCompleted maps one step completion to its stream event, if any.
func (r *Renderer) StepCompleted(step engine.StepName, updates engine.Updates, stepErr *engine.StepError) {
	if stepErr != nil {
		r.sink(models.StreamEvent{
			Type: models.StreamEventNodeEnd,
			Node: string(step),
			Data: map[string]any{"error": stepErr.Reason, "timeout": stepErr.Timeout},
		})
		return
	}

	switch step {
	case flow.NodeStoreMessage, flow.NodeStoreBotResponse:
		// Silent.
	case flow.NodeIntentDetection, flow.NodeSituationSeverity:
		r.sink(models.StreamEvent{Type: models.StreamEventAnalysisUpdate, Node: string(step), Data: updates.Data()})
	case flow.NodeResponseGeneration:
		if updates.ResponseDraft != nil {
			r.sink(models.StreamEvent{Type: models.StreamEventResponseChunk, Node: string(step), Data: *updates.ResponseDraft})
		}
	case flow.NodeRender, flow.NodeSafeFallback:
		if updates.Final != nil {
			r.emitFinal(string(step), updates.Final)
		}
	default:
		r.sink(models.StreamEvent{Type: models.StreamEventNodeEnd, Node: string(step), Data: updates.Data()})
	}
}

// EmitFailure closes the stream after an abandoned turn. It is the caller's
// path to the guaranteed final_response when the scheduler returned an error
// and no render step ran.
func (r *Renderer) EmitFailure(state models.ConversationState, reason string) {
	r.emitFinal(string(flow.NodeSafeFallback), &models.FinalResponse{
		Success:        false,
		ConversationID: state.ConversationID,
		Mode:           state.Mode,
		Domain:         state.Domain,
		Response:       "",
		Error:          reason,
		Metadata:       map[string]any{"fallback": true},
	})
}

func (r *Renderer) emitFinal(node string, final *models.FinalResponse) {
	if r.emittedFinal {
		slog.Warn("Renderer.emitFinal: duplicate final response suppressed", "node", node)
		return
	}
	r.emittedFinal = true
	r.sink(models.StreamEvent{
		Type: models.StreamEventFinalResponse,
		Node: node,
		Data: map[string]any{
			"success":         final.Success,
			"conversation_id": final.ConversationID,
			"mode":            final.Mode,
			"domain":          final.Domain,
			"response":        final.Response,
			"error":           final.Error,
			"metadata":        final.Metadata,
		},
	})
}
