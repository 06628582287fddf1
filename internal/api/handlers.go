// Package api provides HTTP handlers for Soul Buddy endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shrutib31/soul-buddy/internal/models"
	"github.com/shrutib31/soul-buddy/internal/stream"
)

// chatHandler handles POST /chat: one turn streamed as server-sent events.
// Progress events are flushed as steps complete; the stream always ends with
// exactly one final_response event.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.chatHandler: processing chat request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.chatHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.chatHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("Server.chatHandler: response writer does not support streaming")
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	renderer := stream.NewRenderer(func(ev models.StreamEvent) {
		payload, err := json.Marshal(ev)
		if err != nil {
			slog.Error("Server.chatHandler: failed to marshal stream event", "error", err, "type", ev.Type)
			return
		}
		if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			slog.Warn("Server.chatHandler: client write failed", "error", err)
			return
		}
		flusher.Flush()
	})

	init := initialState(req)
	final, err := s.sched.RunTurn(r.Context(), init, renderer)
	if err != nil {
		slog.Error("Server.chatHandler: turn abandoned", "conversationID", init.ConversationID, "error", err)
		renderer.EmitFailure(final, "The service is temporarily unavailable. Please try again.")
		return
	}
	slog.Info("Server.chatHandler: turn completed", "conversationID", final.ConversationID)
}

// chatSyncHandler handles POST /chat/sync: one turn, single JSON response.
func (s *Server) chatSyncHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.chatSyncHandler: processing chat request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.chatSyncHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatSyncHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.chatSyncHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	final, err := s.sched.RunTurn(r.Context(), initialState(req), nil)
	if err != nil {
		slog.Error("Server.chatSyncHandler: turn abandoned", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("The service is temporarily unavailable. Please try again."))
		return
	}
	if final.Final == nil {
		slog.Error("Server.chatSyncHandler: turn produced no final response", "conversationID", final.ConversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("No response produced"))
		return
	}
	slog.Info("Server.chatSyncHandler: turn completed", "conversationID", final.ConversationID, "success", final.Final.Success)
	writeJSONResponse(w, http.StatusOK, models.Success(final.Final))
}

// historyHandler handles GET /conversations/{id}: the stored turn history.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.historyHandler: processing history request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/conversations/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown conversation endpoint"))
		return
	}

	conv, err := s.st.GetConversation(id)
	if err != nil {
		slog.Error("Server.historyHandler: failed to fetch conversation", "error", err, "conversationID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch conversation"))
		return
	}
	if conv == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return
	}

	turns, err := s.st.GetTurns(id)
	if err != nil {
		slog.Error("Server.historyHandler: failed to fetch turns", "error", err, "conversationID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch turns"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"conversation": conv,
		"turns":        turns,
	}))
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// initialState seeds the turn state from a validated request.
func initialState(req models.ChatRequest) models.ConversationState {
	return models.ConversationState{
		ConversationID: req.ConversationID,
		Mode:           req.Mode,
		Domain:         req.Domain,
		UserMessage:    req.Message,
		RiskLevel:      models.RiskLow,
		PageContext:    req.PageContext,
	}
}
