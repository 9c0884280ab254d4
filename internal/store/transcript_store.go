package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/huddle/internal/domain"
)

// TranscriptStore persists conversations and their ordered entries. Reads
// are scoped to the owner: another user's conversation reads as empty.
type TranscriptStore struct {
	db *DB
}

// NewTranscriptStore creates a transcript store using the given database.
func NewTranscriptStore(db *DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

// GetExisting returns the persisted entries of a conversation in insertion
// order, or nil when it does not exist for userID.
func (s *TranscriptStore) GetExisting(ctx context.Context, conversationID, userID string) ([]domain.Message, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT m.role, m.speaker, m.agent_id, m.content, m.language, m.timestamp
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE m.conversation_id = ? AND c.owner_id = ?
		 ORDER BY m.id`,
		conversationID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading transcript %s: %w", conversationID, err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var ts string
		if err := rows.Scan(&m.Role, &m.Speaker, &m.AgentID, &m.Content, &m.Language, &ts); err != nil {
			return nil, fmt.Errorf("scanning transcript %s: %w", conversationID, err)
		}
		m.Timestamp = parseTime(ts)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CreateIfAbsent creates the conversation header for ownerID. It is a no-op
// when the owner already has it and fails with domain.ErrConversationOwned
// when another user does.
func (s *TranscriptStore) CreateIfAbsent(ctx context.Context, conversationID, ownerID string) error {
	now := formatTime(time.Now())
	if _, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO conversations (id, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		conversationID, ownerID, now, now,
	); err != nil {
		return fmt.Errorf("creating conversation %s: %w", conversationID, err)
	}

	var owner string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT owner_id FROM conversations WHERE id = ?`, conversationID,
	).Scan(&owner)
	if err != nil {
		return fmt.Errorf("reading conversation %s: %w", conversationID, err)
	}
	if owner != ownerID {
		return domain.ErrConversationOwned
	}
	return nil
}

// Append stores one entry at the end of the conversation.
func (s *TranscriptStore) Append(ctx context.Context, conversationID string, msg domain.Message, language string) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, speaker, agent_id, content, language, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conversationID, string(msg.Role), msg.Speaker, msg.AgentID, msg.Content, language, formatTime(msg.Timestamp),
	); err != nil {
		return fmt.Errorf("appending to %s: %w", conversationID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), conversationID,
	); err != nil {
		return fmt.Errorf("touching %s: %w", conversationID, err)
	}

	return tx.Commit()
}

// ConversationSummary describes one stored conversation.
type ConversationSummary struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// List returns the user's conversations, most recently updated first.
// limit <= 0 defaults to 50.
func (s *TranscriptStore) List(ctx context.Context, userID string, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT c.id, c.owner_id, c.created_at, c.updated_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		 FROM conversations c
		 WHERE c.owner_id = ?
		 ORDER BY c.updated_at DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var cs ConversationSummary
		var createdAt, updatedAt string
		if err := rows.Scan(&cs.ID, &cs.OwnerID, &createdAt, &updatedAt, &cs.Messages); err != nil {
			return nil, err
		}
		cs.CreatedAt = parseTime(createdAt)
		cs.UpdatedAt = parseTime(updatedAt)
		out = append(out, cs)
	}
	return out, rows.Err()
}

// Delete removes a conversation owned by userID together with its entries.
func (s *TranscriptStore) Delete(ctx context.Context, conversationID, userID string) error {
	res, err := s.db.sql.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ? AND owner_id = ?`, conversationID, userID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SearchHit is a transcript entry matching a search.
type SearchHit struct {
	ConversationID string         `json:"conversationId"`
	Message        domain.Message `json:"message"`
	Rank           float64        `json:"rank"`
}

// Search finds the user's transcript entries matching query using FTS5.
// Results are ranked by relevance. Limit of 0 defaults to 20.
func (s *TranscriptStore) Search(ctx context.Context, userID, query string, limit int) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("empty search query")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT m.conversation_id, m.role, m.speaker, m.agent_id, m.content, m.language, m.timestamp, rank
		 FROM messages_fts
		 JOIN messages m ON m.id = messages_fts.rowid
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE messages_fts MATCH ?
		   AND c.owner_id = ?
		 ORDER BY rank
		 LIMIT ?`,
		query, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var ts string
		if err := rows.Scan(&h.ConversationID, &h.Message.Role, &h.Message.Speaker, &h.Message.AgentID,
			&h.Message.Content, &h.Message.Language, &ts, &h.Rank); err != nil {
			return nil, err
		}
		h.Message.Timestamp = parseTime(ts)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
