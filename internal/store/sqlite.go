// Package store provides storage backends for Soul Buddy.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/shrutib31/soul-buddy/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists conversations, turns and flow state in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN (a file path).
// The containing directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// CreateConversation stores a new conversation record.
func (s *SQLiteStore) CreateConversation(c models.Conversation) error {
	_, err := s.db.Exec(`INSERT INTO conversations (id, mode, domain, started_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Mode, c.Domain, c.StartedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateConversation failed", "error", err, "id", c.ID)
		return fmt.Errorf("failed to insert conversation %s: %w", c.ID, err)
	}
	slog.Debug("SQLiteStore CreateConversation succeeded", "id", c.ID, "mode", c.Mode)
	return nil
}

// GetConversation retrieves a conversation, nil when absent.
func (s *SQLiteStore) GetConversation(id string) (*models.Conversation, error) {
	var c models.Conversation
	err := s.db.QueryRow(`SELECT id, mode, domain, started_at FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Mode, &c.Domain, &c.StartedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversation failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query conversation %s: %w", id, err)
	}
	return &c, nil
}

// AddTurn appends a turn and returns the assigned row id.
func (s *SQLiteStore) AddTurn(t models.Turn) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`INSERT INTO turns (conversation_id, speaker, body, created_at) VALUES (?, ?, ?, ?)`,
		t.ConversationID, t.Speaker, t.Body, t.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddTurn failed", "error", err, "conversationID", t.ConversationID)
		return 0, fmt.Errorf("failed to insert turn for %s: %w", t.ConversationID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read turn id: %w", err)
	}
	slog.Debug("SQLiteStore AddTurn succeeded", "conversationID", t.ConversationID, "turnID", id)
	return id, nil
}

// GetTurns returns all turns of a conversation in insertion order.
func (s *SQLiteStore) GetTurns(conversationID string) ([]models.Turn, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, speaker, body, created_at FROM turns WHERE conversation_id = ? ORDER BY id`, conversationID)
	if err != nil {
		slog.Error("SQLiteStore GetTurns query failed", "error", err, "conversationID", conversationID)
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
func (s *SQLiteStore) SaveFlowState(st models.FlowState) error {
	_, err := s.db.Exec(`INSERT INTO flow_states (conversation_id, flow_id, current_step, step_index, readiness, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			flow_id = excluded.flow_id,
			current_step = excluded.current_step,
			step_index = excluded.step_index,
			readiness = excluded.readiness,
			completed = excluded.completed,
			updated_at = excluded.updated_at`,
		st.ConversationID, st.FlowID, st.CurrentStep, st.StepIndex, st.Readiness, st.Completed, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveFlowState failed", "error", err, "conversationID", st.ConversationID)
		return fmt.Errorf("failed to save flow state for %s: %w", st.ConversationID, err)
	}
	slog.Debug("SQLiteStore SaveFlowState succeeded", "conversationID", st.ConversationID, "flowID", st.FlowID, "stepIndex", st.StepIndex)
	return nil
}

// GetFlowState retrieves the flow position, nil when absent.
func (s *SQLiteStore) GetFlowState(conversationID string) (*models.FlowState, error) {
	var st models.FlowState
	err := s.db.QueryRow(`SELECT conversation_id, flow_id, current_step, step_index, readiness, completed, created_at, updated_at
		FROM flow_states WHERE conversation_id = ?`, conversationID).
		Scan(&st.ConversationID, &st.FlowID, &st.CurrentStep, &st.StepIndex, &st.Readiness, &st.Completed, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetFlowState failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query flow state for %s: %w", conversationID, err)
	}
	return &st, nil
}

// SetFlowReadiness updates only the stored readiness score.
func (s *SQLiteStore) SetFlowReadiness(conversationID string, readiness int) error {
	res, err := s.db.Exec(`UPDATE flow_states SET readiness = ?, updated_at = ? WHERE conversation_id = ?`,
		readiness, time.Now().UTC(), conversationID)
	if err != nil {
		slog.Error("SQLiteStore SetFlowReadiness failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to update readiness for %s: %w", conversationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no flow state for conversation %s", conversationID)
	}
	return nil
}

// DeleteExpiredIncognito removes incognito conversations started before the
// cutoff, along with their turns and flow state.
func (s *SQLiteStore) DeleteExpiredIncognito(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE mode = ? AND started_at < ?`, models.ModeIncognito, before)
	if err != nil {
		slog.Error("SQLiteStore DeleteExpiredIncognito failed", "error", err)
		return 0, fmt.Errorf("failed to delete expired conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	if _, err := s.db.Exec(`DELETE FROM turns WHERE conversation_id NOT IN (SELECT id FROM conversations)`); err != nil {
		return n, fmt.Errorf("failed to delete orphaned turns: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM flow_states WHERE conversation_id NOT IN (SELECT id FROM conversations)`); err != nil {
		return n, fmt.Errorf("failed to delete orphaned flow states: %w", err)
	}
	slog.Debug("SQLiteStore DeleteExpiredIncognito succeeded", "count", n)
	return n, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
