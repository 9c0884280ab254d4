// Package conversation runs group conversations between several agents.
// A hidden Supervisor picks who speaks next and decides when to stop,
// Responders generate each agent's reply, and the Orchestrator owns the
// resumable turn loop in batch and streaming modes.
package conversation

import (
	"context"

	"github.com/soyeahso/huddle/internal/domain"
	"github.com/soyeahso/huddle/internal/llm"
)

// AgentRepository resolves agent ids for a user.
type AgentRepository interface {
	// Get returns domain.ErrAgentNotFound when the id does not resolve
	// or the agent is not visible to the user.
	Get(ctx context.Context, agentID, userID string) (domain.AgentDescriptor, error)
}

// TranscriptStore persists conversation transcripts.
type TranscriptStore interface {
	// GetExisting returns the persisted entries in insertion order. A
	// missing conversation, or one owned by another user, yields no entries.
	GetExisting(ctx context.Context, conversationID, userID string) ([]domain.Message, error)

	// CreateIfAbsent creates the conversation header. It returns
	// domain.ErrConversationOwned if the id belongs to another user.
	CreateIfAbsent(ctx context.Context, conversationID, ownerID string) error

	// Append durably adds one entry with its detected language, which may be empty.
	Append(ctx context.Context, conversationID string, msg domain.Message, language string) error
}

// ModelProvider completes prompts. *llm.Provider implements it.
type ModelProvider interface {
	Complete(ctx context.Context, messages []llm.Message, system string, model domain.ModelConfig, opts llm.CallOptions) (string, error)
}
