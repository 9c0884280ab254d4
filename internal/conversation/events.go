package conversation

import (
	"time"

	"github.com/soyeahso/huddle/internal/domain"
)

// EventType discriminates stream events.
type EventType string

const (
	EventTyping  EventType = "typing"
	EventMessage EventType = "message"
	EventError   EventType = "error"
	EventDone    EventType = "done"
)

// EndReason says why a conversation loop stopped.
type EndReason string

const (
	EndMaxTurns        EndReason = "max_turns"
	EndSupervisor      EndReason = "supervisor"
	EndStopSignal      EndReason = "stop_signal"
	EndCreditExhausted EndReason = "credit_exhausted"
	EndCancelled       EndReason = "cancelled"
	EndInvalid         EndReason = "invalid"
	EndBusy            EndReason = "busy"
	EndFailed          EndReason = "failed"
)

// Done is the payload of the final event.
type Done struct {
	ConversationID string    `json:"conversationId"`
	Reason         EndReason `json:"reason"`
	Turns          int       `json:"turns"`
}

// Event is one item of a conversation stream. Message is set for typing,
// message and error events; Error for error events; Done for the final event.
type Event struct {
	Type    EventType                   `json:"type"`
	Message *domain.ConversationMessage `json:"message,omitempty"`
	Error   string                      `json:"error,omitempty"`
	Done    *Done                       `json:"done,omitempty"`
}

func typingEvent(a domain.AgentDescriptor) Event {
	return Event{Type: EventTyping, Message: &domain.ConversationMessage{
		Speaker:     a.DisplayName(),
		Timestamp:   time.Now(),
		AgentID:     a.ID,
		MessageType: domain.MessageTypeTyping,
	}}
}

func messageEvent(m domain.ConversationMessage) Event {
	return Event{Type: EventMessage, Message: &m}
}

func errorEvent(m domain.ConversationMessage) Event {
	return Event{Type: EventError, Message: &m, Error: m.Message}
}

func doneEvent(conversationID string, reason EndReason, turns int) Event {
	return Event{Type: EventDone, Done: &Done{ConversationID: conversationID, Reason: reason, Turns: turns}}
}
