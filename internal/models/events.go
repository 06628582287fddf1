// Package models defines the client-visible event stream records.
package models

// StreamEventType tags one record in the turn event stream.
type StreamEventType string

// Stream event type constants.
const (
	StreamEventNodeEnd        StreamEventType = "node_end"
	StreamEventAnalysisUpdate StreamEventType = "analysis_update"
	StreamEventResponseChunk  StreamEventType = "response_chunk"
	StreamEventFinalResponse  StreamEventType = "final_response"
)

// StreamEvent is one typed record emitted to the client as steps complete.
// The terminal event is always final_response, emitted exactly once per turn.
// Data is a map for analysis and terminal events and a bare string for
// response_chunk events.
type StreamEvent struct {
	Type StreamEventType `json:"type"`
	Node string          `json:"node,omitempty"`
	Data any             `json:"data,omitempty"`
}
