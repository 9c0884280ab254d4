package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/huddle/internal/domain"
)

// AgentStore keeps user-defined agents. An agent is visible to its owner;
// agents stored without an owner are shared by everyone.
type AgentStore struct {
	db *DB
}

// NewAgentStore creates an agent store using the given database.
func NewAgentStore(db *DB) *AgentStore {
	return &AgentStore{db: db}
}

// Get resolves agentID for userID or returns domain.ErrAgentNotFound.
func (s *AgentStore) Get(ctx context.Context, agentID, userID string) (domain.AgentDescriptor, error) {
	var raw string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT descriptor FROM agents WHERE id = ? AND (owner_id = '' OR owner_id = ?)`,
		agentID, userID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AgentDescriptor{}, domain.ErrAgentNotFound
	}
	if err != nil {
		return domain.AgentDescriptor{}, fmt.Errorf("loading agent %s: %w", agentID, err)
	}
	return decodeAgent(raw)
}

// Save inserts or replaces an agent.
func (s *AgentStore) Save(ctx context.Context, a domain.AgentDescriptor) error {
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		return errors.New("agent id is required")
	}
	data, err := json.Marshal(storedAgent{a, a.Model.APIKey})
	if err != nil {
		return fmt.Errorf("encoding agent %s: %w", a.ID, err)
	}

	now := formatTime(time.Now())
	_, err = s.db.sql.ExecContext(ctx,
		`INSERT INTO agents (id, owner_id, name, descriptor, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   owner_id = excluded.owner_id,
		   name = excluded.name,
		   descriptor = excluded.descriptor,
		   updated_at = excluded.updated_at`,
		a.ID, a.OwnerID, a.DisplayName(), string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("saving agent %s: %w", a.ID, err)
	}
	return nil
}

// List returns the agents visible to userID ordered by name. An empty
// userID lists every stored agent.
func (s *AgentStore) List(ctx context.Context, userID string) ([]domain.AgentDescriptor, error) {
	var rows *sql.Rows
	var err error
	if userID == "" {
		rows, err = s.db.sql.QueryContext(ctx, `SELECT descriptor FROM agents ORDER BY name, id`)
	} else {
		rows, err = s.db.sql.QueryContext(ctx,
			`SELECT descriptor FROM agents WHERE owner_id = '' OR owner_id = ? ORDER BY name, id`, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AgentDescriptor
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		a, err := decodeAgent(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes an agent owned by userID.
func (s *AgentStore) Delete(ctx context.Context, agentID, userID string) error {
	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM agents WHERE id = ? AND owner_id = ?`, agentID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}

// storedAgent keeps the model key, which is hidden from the JSON API form.
type storedAgent struct {
	domain.AgentDescriptor
	APIKey string `json:"apiKey,omitempty"`
}

func decodeAgent(raw string) (domain.AgentDescriptor, error) {
	var sa storedAgent
	if err := json.Unmarshal([]byte(raw), &sa); err != nil {
		return domain.AgentDescriptor{}, fmt.Errorf("decoding agent: %w", err)
	}
	a := sa.AgentDescriptor
	a.Model.APIKey = sa.APIKey
	return a, nil
}
