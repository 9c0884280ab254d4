package store

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/huddle/internal/llm"
)

// UsageStore records model usage and enforces a per-user token budget. It
// implements llm.Ledger. Coordinator calls are recorded but never counted
// against the budget.
type UsageStore struct {
	db     *DB
	budget int64
}

// NewUsageStore creates a usage ledger. A budget <= 0 means unlimited.
func NewUsageStore(db *DB, budget int64) *UsageStore {
	return &UsageStore{db: db, budget: budget}
}

// Check returns llm.ErrCreditExhausted once the user has spent the budget.
func (s *UsageStore) Check(ctx context.Context, userID string) error {
	if s.budget <= 0 {
		return nil
	}
	used, err := s.Used(ctx, userID)
	if err != nil {
		return err
	}
	if used >= s.budget {
		return fmt.Errorf("user %q used %d of %d tokens: %w", userID, used, s.budget, llm.ErrCreditExhausted)
	}
	return nil
}

// Record stores one completed call.
func (s *UsageStore) Record(ctx context.Context, rec llm.UsageRecord) error {
	coordinator := 0
	if rec.Coordinator {
		coordinator = 1
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO usage (user_id, provider, model, input_tokens, output_tokens, coordinator, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.Provider, rec.Model, rec.InputTokens, rec.OutputTokens, coordinator, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}
	return nil
}

// Used returns the billable tokens the user has spent.
func (s *UsageStore) Used(ctx context.Context, userID string) (int64, error) {
	var used int64
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(input_tokens + output_tokens), 0)
		 FROM usage WHERE user_id = ? AND coordinator = 0`, userID,
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("summing usage: %w", err)
	}
	return used, nil
}

// Remaining returns the tokens left in the user's budget, or -1 when unlimited.
func (s *UsageStore) Remaining(ctx context.Context, userID string) (int64, error) {
	if s.budget <= 0 {
		return -1, nil
	}
	used, err := s.Used(ctx, userID)
	if err != nil {
		return 0, err
	}
	return max(s.budget-used, 0), nil
}

// UsageTotal aggregates usage for one user.
type UsageTotal struct {
	UserID      string `json:"userId"`
	Calls       int    `json:"calls"`
	Billable    int64  `json:"billable"`
	Coordinator int64  `json:"coordinator"`
}

// Totals aggregates usage per user, ordered by user id.
func (s *UsageStore) Totals(ctx context.Context) ([]UsageTotal, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT user_id, COUNT(*),
		        COALESCE(SUM(CASE WHEN coordinator = 0 THEN input_tokens + output_tokens END), 0),
		        COALESCE(SUM(CASE WHEN coordinator = 1 THEN input_tokens + output_tokens END), 0)
		 FROM usage GROUP BY user_id ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UsageTotal
	for rows.Next() {
		var t UsageTotal
		if err := rows.Scan(&t.UserID, &t.Calls, &t.Billable, &t.Coordinator); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
