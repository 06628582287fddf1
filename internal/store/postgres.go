// Package store provides storage backends for Soul Buddy.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/shrutib31/soul-buddy/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists conversations, turns and flow state in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// CreateConversation stores a new conversation record.
func (s *PostgresStore) CreateConversation(c models.Conversation) error {
	_, err := s.db.Exec(`INSERT INTO conversations (id, mode, domain, started_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Mode, c.Domain, c.StartedAt)
	if err != nil {
		slog.Error("PostgresStore CreateConversation failed", "error", err, "id", c.ID)
		return fmt.Errorf("failed to insert conversation %s: %w", c.ID, err)
	}
	return nil
}

// GetConversation retrieves a conversation, nil when absent.
func (s *PostgresStore) GetConversation(id string) (*models.Conversation, error) {
	var c models.Conversation
	err := s.db.QueryRow(`SELECT id, mode, domain, started_at FROM conversations WHERE id = $1`, id).
		Scan(&c.ID, &c.Mode, &c.Domain, &c.StartedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversation failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query conversation %s: %w", id, err)
	}
	return &c, nil
}

// AddTurn appends a turn and returns the assigned row id.
func (s *PostgresStore) AddTurn(t models.Turn) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRow(`INSERT INTO turns (conversation_id, speaker, body, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		t.ConversationID, t.Speaker, t.Body, t.CreatedAt).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore AddTurn failed", "error", err, "conversationID", t.ConversationID)
		return 0, fmt.Errorf("failed to insert turn for %s: %w", t.ConversationID, err)
	}
	return id, nil
}

// GetTurns returns all turns of a conversation in insertion order.
func (s *PostgresStore) GetTurns(conversationID string) ([]models.Turn, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, speaker, body, created_at FROM turns WHERE conversation_id = $1 ORDER BY id`, conversationID)
	if err != nil {
		slog.Error("PostgresStore GetTurns query failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Speaker, &t.Body, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turn rows: %w", err)
	}
	return turns, nil
}

// SaveFlowState stores or replaces the per-conversation flow position.
func (s *PostgresStore) SaveFlowState(st models.FlowState) error {
	_, err := s.db.Exec(`INSERT INTO flow_states (conversation_id, flow_id, current_step, step_index, readiness, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (conversation_id) DO UPDATE SET
			flow_id = EXCLUDED.flow_id,
			current_step = EXCLUDED.current_step,
			step_index = EXCLUDED.step_index,
			readiness = EXCLUDED.readiness,
			completed = EXCLUDED.completed,
			updated_at = EXCLUDED.updated_at`,
		st.ConversationID, st.FlowID, st.CurrentStep, st.StepIndex, st.Readiness, st.Completed, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveFlowState failed", "error", err, "conversationID", st.ConversationID)
		return fmt.Errorf("failed to save flow state for %s: %w", st.ConversationID, err)
	}
	slog.Debug("PostgresStore SaveFlowState succeeded", "conversationID", st.ConversationID, "flowID", st.FlowID, "stepIndex", st.StepIndex)
	return nil
}

// GetFlowState retrieves the flow position, nil when absent.
func (s *PostgresStore) GetFlowState(conversationID string) (*models.FlowState, error) {
	var st models.FlowState
	err := s.db.QueryRow(`SELECT conversation_id, flow_id, current_step, step_index, readiness, completed, created_at, updated_at
		FROM flow_states WHERE conversation_id = $1`, conversationID).
		Scan(&st.ConversationID, &st.FlowID, &st.CurrentStep, &st.StepIndex, &st.Readiness, &st.Completed, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetFlowState failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query flow state for %s: %w", conversationID, err)
	}
	return &st, nil
}

// SetFlowReadiness updates only the stored readiness score.
func (s *PostgresStore) SetFlowReadiness(conversationID string, readiness int) error {
	res, err := s.db.Exec(`UPDATE flow_states SET readiness = $1, updated_at = $2 WHERE conversation_id = $3`,
		readiness, time.Now().UTC(), conversationID)
	if err != nil {
		slog.Error("PostgresStore SetFlowReadiness failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to update readiness for %s: %w", conversationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no flow state for conversation %s", conversationID)
	}
	return nil
}

// DeleteExpiredIncognito removes incognito conversations started before the
// cutoff, along with their turns and flow state.
func (s *PostgresStore) DeleteExpiredIncognito(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE mode = $1 AND started_at < $2`, models.ModeIncognito, before)
	if err != nil {
		slog.Error("PostgresStore DeleteExpiredIncognito failed", "error", err)
		return 0, fmt.Errorf("failed to delete expired conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	if _, err := s.db.Exec(`DELETE FROM turns WHERE conversation_id NOT IN (SELECT id FROM conversations)`); err != nil {
		return n, fmt.Errorf("failed to delete orphaned turns: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM flow_states WHERE conversation_id NOT IN (SELECT id FROM conversations)`); err != nil {
		return n, fmt.Errorf("failed to delete orphaned flow states: %w", err)
	}
	slog.Debug("PostgresStore DeleteExpiredIncognito succeeded", "count", n)
	return n, nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
