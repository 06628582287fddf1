// Package testutil provides common test utilities and helpers for Soul Buddy tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shrutib31/soul-buddy/internal/genai"
	"github.com/shrutib31/soul-buddy/internal/models"
	"github.com/shrutib31/soul-buddy/internal/store"
)

// ScriptedGenerator returns canned replies keyed by system prompt substring,
// in registration order of the rules. An unreached rule set falls through to
// the Default reply; a configured Err fails every call.
type ScriptedGenerator struct {
	mu      sync.Mutex
	Rules   []ScriptRule
	Default string
	Err     error
	Calls   []genai.Request
}

// ScriptRule matches a request by a substring of its system prompt.
type ScriptRule struct {
	SystemContains string
	Reply          string
}

// Generate implements genai.Generator.
func (g *ScriptedGenerator) Generate(ctx context.Context, req genai.Request) (string, error) {
	g.mu.Lock()
	g.Calls = append(g.Calls, req)
	g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if g.Err != nil {
		return "", g.Err
	}
	for _, rule := range g.Rules {
		if rule.SystemContains != "" && bytes.Contains([]byte(req.System), []byte(rule.SystemContains)) {
			return rule.Reply, nil
		}
	}
	return g.Default, nil
}

// BlockingGenerator blocks until its context is done, simulating a backend
// that never answers within budget.
type BlockingGenerator struct{}

// Generate implements genai.Generator.
func (BlockingGenerator) Generate(ctx context.Context, req genai.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// FailingStore wraps a real store and fails the named operations. Zero value
// methods delegate untouched.
type FailingStore struct {
	store.Store
	FailAddTurn            bool
	FailCreateConversation bool
	FailSaveFlowState      bool
	FailSetReadiness       bool
}

func (s *FailingStore) AddTurn(t models.Turn) (int64, error) {
	if s.FailAddTurn {
		return 0, fmt.Errorf("injected store failure: add turn")
	}
	return s.Store.AddTurn(t)
}

func (s *FailingStore) CreateConversation(c models.Conversation) error {
	if s.FailCreateConversation {
		return fmt.Errorf("injected store failure: create conversation")
	}
	return s.Store.CreateConversation(c)
}

func (s *FailingStore) SaveFlowState(st models.FlowState) error {
	if s.FailSaveFlowState {
		return fmt.Errorf("injected store failure: save flow state")
	}
	return s.Store.SaveFlowState(st)
}

func (s *FailingStore) SetFlowReadiness(conversationID string, readiness int) error {
	if s.FailSetReadiness {
		return fmt.Errorf("injected store failure: set readiness")
	}
	return s.Store.SetFlowReadiness(conversationID, readiness)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// AssertTurnCount validates the number of stored turns for a conversation.
func AssertTurnCount(t *testing.T, st store.Store, conversationID string, expected int, context string) {
	t.Helper()
	turns, err := st.GetTurns(conversationID)
	if err != nil {
		t.Fatalf("%s: failed to get turns: %v", context, err)
	}
	if len(turns) != expected {
		t.Errorf("%s: expected %d turns, got %d", context, expected, len(turns))
	}
}
