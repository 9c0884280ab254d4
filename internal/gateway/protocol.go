package gateway

import (
	"encoding/json"

	"github.com/soyeahso/huddle/internal/domain"
)

// Frame types for the WebSocket stream protocol.
const (
	// client → server
	FrameTypeStart = "start"
	FrameTypeStop  = "stop"

	// server → client
	FrameTypeEvent = "event"
	FrameTypeError = "error"
)

// Frame is the envelope for all WebSocket messages. Type discriminates
// client control frames from server event and error frames.
type Frame struct {
	Type string `json:"type"`

	// Start fields
	Params json.RawMessage `json:"params,omitempty"`

	// Event fields
	Event   string          `json:"event,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Error fields
	Error *ErrorShape `json:"error,omitempty"`
}

// ErrorShape is the standard error format for HTTP bodies and error frames.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// StartParams open a conversation. They are the body of a run request and
// the params of a stream start frame.
type StartParams struct {
	AgentIDs    []string            `json:"agentIds"`
	Message     string              `json:"message"`
	MaxTurns    int                 `json:"maxTurns,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

// NewStartFrame creates a start frame.
func NewStartFrame(p StartParams) (Frame, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeStart, Params: raw}, nil
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		Payload: raw,
		Seq:     seq,
	}, nil
}

// NewErrorFrame creates an error frame.
func NewErrorFrame(code, message string) Frame {
	return Frame{Type: FrameTypeError, Error: &ErrorShape{Code: code, Message: message}}
}

// Protocol version supported by this server.
const ProtocolVersion = 1
