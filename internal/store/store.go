// Package store provides storage backends for Soul Buddy.
//
// It includes an in-memory store for tests, an SQLite-backed store for single
// node deployments, and a PostgreSQL store. The engine treats every failure
// from this package as fatal for the turn in progress.
package store

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shrutib31/soul-buddy/internal/models"
)

// Store is the persistence collaborator consumed by the orchestration engine.
type Store interface {
	CreateConversation(c models.Conversation) error
	GetConversation(id string) (*models.Conversation, error)
	AddTurn(t models.Turn) (int64, error)
	GetTurns(conversationID string) ([]models.Turn, error)
	SaveFlowState(st models.FlowState) error
	GetFlowState(conversationID string) (*models.FlowState, error)
	SetFlowReadiness(conversationID string, readiness int) error
	DeleteExpiredIncognito(before time.Time) (int64, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN configures an SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN configures a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-looking DSNs and "sqlite"
// otherwise (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a map-backed store used by tests and zero-config runs.
type InMemoryStore struct {
	mu            sync.Mutex
	conversations map[string]models.Conversation
	turns         map[string][]models.Turn
	flowStates    map[string]models.FlowState
	nextTurnID    int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]models.Conversation),
		turns:         make(map[string][]models.Turn),
		flowStates:    make(map[string]models.FlowState),
	}
}

// CreateConversation stores a new conversation record.
func (s *InMemoryStore) CreateConversation(c models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = c
	return nil
}

// GetConversation retrieves a conversation, nil when absent.
func (s *InMemoryStore) GetConversation(id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// AddTurn appends a turn and returns its assigned id.
func (s *InMemoryStore) AddTurn(t models.Turn) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTurnID++
	t.ID = s.nextTurnID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.turns[t.ConversationID] = append(s.turns[t.ConversationID], t)
	return t.ID, nil
}

// GetTurns returns all turns of a conversation in insertion order.
func (s *InMemoryStore) GetTurns(conversationID string) ([]models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := make([]models.Turn, len(s.turns[conversationID]))
	copy(turns, s.turns[conversationID])
	return turns, nil
}

// SaveFlowState stores or replaces the per-conversation flow position.
func (s *InMemoryStore) SaveFlowState(st models.FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flowStates[st.ConversationID] = st
	return nil
}

// GetFlowState retrieves the flow position, nil when absent.
func (s *InMemoryStore) GetFlowState(conversationID string) (*models.FlowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.flowStates[conversationID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// SetFlowReadiness updates only the stored readiness score.
func (s *InMemoryStore) SetFlowReadiness(conversationID string, readiness int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.flowStates[conversationID]
	if !ok {
		return fmt.Errorf("no flow state for conversation %s", conversationID)
	}
	st.Readiness = readiness
	st.UpdatedAt = time.Now().UTC()
	s.flowStates[conversationID] = st
	return nil
}

// DeleteExpiredIncognito removes incognito conversations started before the
// cutoff, along with their turns and flow state.
func (s *InMemoryStore) DeleteExpiredIncognito(before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, c := range s.conversations {
		if c.Mode == models.ModeIncognito && c.StartedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		delete(s.conversations, id)
		delete(s.turns, id)
		delete(s.flowStates, id)
	}
	slog.Debug("InMemoryStore.DeleteExpiredIncognito: removed conversations", "count", len(ids))
	return int64(len(ids)), nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
