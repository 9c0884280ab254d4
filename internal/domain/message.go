package domain

import "time"

// Role identifies who authored a persisted transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageType discriminates display entries from transient indicators.
type MessageType string

const (
	MessageTypeMessage MessageType = "message"
	MessageTypeTyping  MessageType = "typing"
)

// Speaker names used for entries that are not authored by an agent.
const (
	SpeakerUser   = "User"
	SpeakerSystem = "System"
)

// Message is a persisted transcript entry. Entries are ordered by insertion.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Speaker   string    `json:"speaker"`
	AgentID   string    `json:"agentId,omitempty"`
	Language  string    `json:"language,omitempty"`
}

// ConversationMessage is the display and stream facing projection of a Message.
type ConversationMessage struct {
	Speaker     string      `json:"speaker"`
	Message     string      `json:"message"`
	Timestamp   time.Time   `json:"timestamp"`
	AgentID     string      `json:"agentId,omitempty"`
	MessageType MessageType `json:"messageType"`
}

// SystemMessage builds a system authored display entry.
func SystemMessage(text string) ConversationMessage {
	return ConversationMessage{
		Speaker:     SpeakerSystem,
		Message:     text,
		Timestamp:   time.Now(),
		MessageType: MessageTypeMessage,
	}
}

// Attachment is a text file supplied alongside the opening message.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType,omitempty"`
	Content  string `json:"content"`
}
