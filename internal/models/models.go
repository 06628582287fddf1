// Package models defines shared data structures for Soul Buddy.
//
// It contains the conversation state object, flow catalog types, persisted
// records, stream events, and the HTTP request/response envelopes.
package models

import (
	"fmt"
	"strings"
)

// ChatRequest is the body of POST /chat and POST /chat/sync.
type ChatRequest struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	Mode           Mode           `json:"mode"`
	Domain         Domain         `json:"domain"`
	Message        string         `json:"message"`
	PageContext    map[string]any `json:"page_context,omitempty"`
}

// Validate checks required fields and enum values.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message is required")
	}
	switch r.Mode {
	case ModeCognito, ModeIncognito:
	case "":
		return fmt.Errorf("mode is required")
	default:
		return fmt.Errorf("invalid mode: %s", r.Mode)
	}
	switch r.Domain {
	case DomainStudent, DomainEmployee, DomainGeneral:
	case "":
		return fmt.Errorf("domain is required")
	default:
		return fmt.Errorf("invalid domain: %s", r.Domain)
	}
	return nil
}

// APIResponse is the standard JSON envelope for non-streaming endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Status constants for API responses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Success creates a successful API response with a result payload.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: StatusOK, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: StatusError, Message: message}
}
