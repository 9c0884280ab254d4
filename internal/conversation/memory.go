package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/huddle/internal/domain"
)

// MemoryTranscriptStore is an in-memory TranscriptStore.
type MemoryTranscriptStore struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
}

// NewMemoryTranscriptStore creates an empty in-memory transcript store.
func NewMemoryTranscriptStore() *MemoryTranscriptStore {
	return &MemoryTranscriptStore{conversations: make(map[string]*domain.Conversation)}
}

func (s *MemoryTranscriptStore) GetExisting(_ context.Context, conversationID, userID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok || c.OwnerID != userID {
		return nil, nil
	}
	out := make([]domain.Message, len(c.Messages))
	copy(out, c.Messages)
	return out, nil
}

func (s *MemoryTranscriptStore) CreateIfAbsent(_ context.Context, conversationID, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[conversationID]; ok {
		if c.OwnerID != ownerID {
			return domain.ErrConversationOwned
		}
		return nil
	}
	now := time.Now()
	s.conversations[conversationID] = &domain.Conversation{
		ID:        conversationID,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s *MemoryTranscriptStore) Append(_ context.Context, conversationID string, msg domain.Message, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		c = &domain.Conversation{ID: conversationID, CreatedAt: time.Now()}
		s.conversations[conversationID] = c
	}
	msg.Language = language
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	return nil
}

// Seed stores a conversation with the given entries, replacing any existing one.
func (s *MemoryTranscriptStore) Seed(conversationID, ownerID string, msgs ...domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.conversations[conversationID] = &domain.Conversation{
		ID:        conversationID,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  append([]domain.Message(nil), msgs...),
	}
}

// Conversation returns a copy of the stored conversation, or nil.
func (s *MemoryTranscriptStore) Conversation(conversationID string) *domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil
	}
	cp := *c
	cp.Messages = append([]domain.Message(nil), c.Messages...)
	return &cp
}

// StaticAgents is a fixed AgentRepository keyed by agent id.
type StaticAgents map[string]domain.AgentDescriptor

// NewStaticAgents builds a StaticAgents from descriptors.
func NewStaticAgents(agents ...domain.AgentDescriptor) StaticAgents {
	m := make(StaticAgents, len(agents))
	for _, a := range agents {
		m[a.ID] = a
	}
	return m
}

func (s StaticAgents) Get(_ context.Context, agentID, userID string) (domain.AgentDescriptor, error) {
	a, ok := s[agentID]
	if !ok || !a.VisibleTo(userID) {
		return domain.AgentDescriptor{}, domain.ErrAgentNotFound
	}
	return a, nil
}
