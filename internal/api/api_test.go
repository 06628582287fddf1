package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shrutib31/soul-buddy/internal/engine"
	"github.com/shrutib31/soul-buddy/internal/flow"
	"github.com/shrutib31/soul-buddy/internal/genai"
	"github.com/shrutib31/soul-buddy/internal/models"
	"github.com/shrutib31/soul-buddy/internal/risk"
	"github.com/shrutib31/soul-buddy/internal/store"
	"github.com/shrutib31/soul-buddy/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	classifier := &testutil.ScriptedGenerator{
		Rules: []testutil.ScriptRule{
			{SystemContains: "classify the intent", Reply: "VENTING"},
			{SystemContains: "detect the situation", Reply: `{"situation":"GENERAL_OVERWHELM","severity":"medium","confidence":0.8}`},
		},
	}
	responder := genai.NewMultiGenerator(
		[]genai.Backend{{Name: "openai", Generator: &testutil.ScriptedGenerator{Default: "That sounds heavy."}}},
		genai.FirstPreferring("openai"),
		"fallback",
	)
	resolver, err := flow.NewResolver(flow.DefaultCatalog())
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	reg, err := flow.BuildRegistry(flow.Deps{
		Store:      st,
		Classifier: classifier,
		Responder:  responder,
		Resolver:   resolver,
		FSM:        flow.NewStepFSM(st, 0),
		Screener:   risk.NewScreener(),
	})
	if err != nil {
		t.Fatalf("BuildRegistry failed: %v", err)
	}
	return NewServer(engine.NewScheduler(reg), st, nil, ""), st
}

func TestChatSyncHappyPath(t *testing.T) {
	srv, st := newTestServer(t)
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/chat/sync", models.ChatRequest{
		Mode:    models.ModeCognito,
		Domain:  models.DomainStudent,
		Message: "I'm completely swamped this week",
	})
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "chat sync")
	resp := testutil.AssertJSONResponse(t, rr, models.StatusOK)

	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing result payload: %v", resp)
	}
	if result["success"] != true {
		t.Errorf("expected successful turn, got %v", result)
	}
	convID, _ := result["conversation_id"].(string)
	if convID == "" {
		t.Fatal("conversation id missing from response")
	}
	testutil.AssertTurnCount(t, st, convID, 2, "turns persisted through the API")
}

func TestChatSyncValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/chat/sync", models.ChatRequest{
		Mode: models.ModeCognito, Domain: models.DomainStudent,
	})
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing message")
	testutil.AssertJSONResponse(t, rr, models.StatusError)

	badJSON := httptest.NewRequest(http.MethodPost, "/chat/sync", strings.NewReader("{not json"))
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, badJSON)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "malformed JSON")
}

func TestChatSyncMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/chat/sync", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "GET on chat sync")
}

func TestChatStreamEmitsEvents(t *testing.T) {
	srv, _ := newTestServer(t)
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/chat", models.ChatRequest{
		Mode:    models.ModeIncognito,
		Domain:  models.DomainGeneral,
		Message: "long day",
	})
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "chat stream")
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected SSE content type, got %q", ct)
	}

	var events []models.StreamEvent
	for _, line := range strings.Split(rr.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev models.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("failed to decode stream event: %v", err)
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		t.Fatal("expected stream events")
	}

	finals := 0
	for _, ev := range events {
		if ev.Type == models.StreamEventFinalResponse {
			finals++
		}
	}
	if finals != 1 {
		t.Fatalf("expected exactly one final_response, got %d", finals)
	}
	last := events[len(events)-1]
	if last.Type != models.StreamEventFinalResponse {
		t.Errorf("stream must end with final_response, got %s", last.Type)
	}
	data, ok := last.Data.(map[string]any)
	if !ok || data["success"] != true {
		t.Errorf("expected successful final event, got %v", last.Data)
	}
}

func TestChatStreamFailureStillEmitsFinal(t *testing.T) {
	srv, _ := newTestServer(t)
	failing := &testutil.FailingStore{Store: store.NewInMemoryStore(), FailAddTurn: true}
	srv.st = failing

	resolver, err := flow.NewResolver(flow.DefaultCatalog())
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	reg, err := flow.BuildRegistry(flow.Deps{
		Store:      failing,
		Classifier: &testutil.ScriptedGenerator{Default: "VENTING"},
		Responder:  genai.NewMultiGenerator([]genai.Backend{{Name: "openai", Generator: &testutil.ScriptedGenerator{Default: "hi"}}}, nil, "fallback"),
		Resolver:   resolver,
		FSM:        flow.NewStepFSM(failing, 0),
		Screener:   risk.NewScreener(),
	})
	if err != nil {
		t.Fatalf("BuildRegistry failed: %v", err)
	}
	srv.sched = engine.NewScheduler(reg)

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/chat", models.ChatRequest{
		Mode: models.ModeCognito, Domain: models.DomainStudent, Message: "hello",
	})
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	body := rr.Body.String()
	if !strings.Contains(body, `"type":"final_response"`) {
		t.Error("abandoned turn must still close the stream with a final_response")
	}
	if !strings.Contains(body, `"success":false`) {
		t.Error("abandoned turn final event must report failure")
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	if err := st.CreateConversation(models.Conversation{
		ID: "c1", Mode: models.ModeCognito, Domain: models.DomainStudent, StartedAt: time.Now(),
	}); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if _, err := st.AddTurn(models.Turn{ConversationID: "c1", Speaker: models.SpeakerUser, Body: "hi"}); err != nil {
		t.Fatalf("AddTurn failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/conversations/c1", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "history fetch")
	resp := testutil.AssertJSONResponse(t, rr, models.StatusOK)
	result, _ := resp["result"].(map[string]interface{})
	if result == nil || result["conversation"] == nil {
		t.Errorf("expected conversation in result: %v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/conversations/missing", nil)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown conversation")
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health check")
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("unexpected health status: %v", body)
	}
}

func TestInitialStateSeedsRequestFields(t *testing.T) {
	st := initialState(models.ChatRequest{
		ConversationID: "c9",
		Mode:           models.ModeIncognito,
		Domain:         models.DomainEmployee,
		Message:        "hi",
		PageContext:    map[string]any{"page": "dashboard"},
	})
	if st.ConversationID != "c9" || st.Mode != models.ModeIncognito || st.UserMessage != "hi" {
		t.Errorf("request fields not carried: %+v", st)
	}
	if st.RiskLevel != models.RiskLow {
		t.Errorf("risk level must default to low, got %s", st.RiskLevel)
	}
	if st.PageContext["page"] != "dashboard" {
		t.Errorf("page context not carried: %v", st.PageContext)
	}
}
