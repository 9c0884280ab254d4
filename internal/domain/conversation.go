package domain

import (
	"errors"
	"time"
)

// ErrConversationOwned is returned when a conversation id is already taken
// by a different user.
var ErrConversationOwned = errors.New("conversation belongs to another user")

// Conversation is the persisted header of a transcript.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages,omitempty"`
}
