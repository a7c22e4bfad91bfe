package store

import (
	"context"
	"fmt"
	"time"

	"github.com/voxcoach/voxcoach/internal/domain"
)

// SQLiteTurnStore persists conversation turns and rolling summaries.
type SQLiteTurnStore struct {
	db *DB
}

// NewSQLiteTurnStore creates a turn store using the given database.
func NewSQLiteTurnStore(db *DB) *SQLiteTurnStore {
	return &SQLiteTurnStore{db: db}
}

// SaveTurn records one user utterance and its assistant reply as two rows
// in a single transaction.
func (s *SQLiteTurnStore) SaveTurn(ctx context.Context, conversationID, userText, assistantText string) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin turn insert: %w", err)
	}

	now := time.Now().UTC().Format(time.DateTime)
	insert := `INSERT INTO turns (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, conversationID, domain.RoleUser, userText, now); err != nil {
		tx.Rollback()
		return fmt.Errorf("inserting user turn: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert, conversationID, domain.RoleAssistant, assistantText, now); err != nil {
		tx.Rollback()
		return fmt.Errorf("inserting assistant turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}
	return nil
}

// History returns the most recent turn halves in ascending chronological
// order, as the prompt builder requires.
func (s *SQLiteTurnStore) History(ctx context.Context, conversationID string, limit int) ([]domain.HistoryMessage, error) {
	if limit <= 0 {
		limit = 20
	}

	// Newest N by id, then reversed so the caller sees ascending order.
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT role, content, created_at FROM (
			SELECT id, role, content, created_at FROM turns
			WHERE conversation_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var history []domain.HistoryMessage
	for rows.Next() {
		var msg domain.HistoryMessage
		var createdAt string
		if err := rows.Scan(&msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		msg.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		history = append(history, msg)
	}
	return history, rows.Err()
}

// Summary returns the rolling conversation summary, or "" if none exists.
func (s *SQLiteTurnStore) Summary(ctx context.Context, conversationID string) (string, error) {
	var content string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT content FROM summaries WHERE conversation_id = ?`, conversationID).Scan(&content)
	if err != nil {
		return "", nil // missing summary is not an error
	}
	return content, nil
}

// SetSummary upserts the rolling conversation summary.
func (s *SQLiteTurnStore) SetSummary(ctx context.Context, conversationID, content string) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO summaries (conversation_id, content, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(conversation_id) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at`, conversationID, content)
	if err != nil {
		return fmt.Errorf("upserting summary: %w", err)
	}
	return nil
}
