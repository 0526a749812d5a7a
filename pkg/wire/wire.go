// Package wire implements the JSON wire protocol between the console and
// the session event stream backend.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role identifies the author of an inbound session message.
type Role string

const (
	RoleUser         Role = "user"
	RoleAssistant    Role = "assistant"
	RoleSystem       Role = "system"
	RoleNotification Role = "notification"
)

// CommandType identifies the kind of outbound command.
type CommandType string

const (
	CommandUserMessage CommandType = "user_message"
	CommandInterrupt   CommandType = "interrupt"
)

var (
	// ErrMalformedFrame is returned when an inbound frame is not valid JSON
	// or matches neither the message nor the error shape.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrSessionRequired is returned when an outbound command has no session ID.
	ErrSessionRequired = errors.New("session id is required")

	// ErrMessageRequired is returned when a user_message command has no text.
	ErrMessageRequired = errors.New("message text is required")
)

// Frame is an inbound frame decoded from the wire. It is a closed union:
// the only implementations are Message and Error.
type Frame interface {
	// Session returns the session ID the frame belongs to, or "" if the
	// frame is not scoped to a session.
	Session() string

	isFrame()
}

// Message is a session event produced by the backend.
type Message struct {
	SessionID   string          `json:"session_id"`
	Role        Role            `json:"role"`
	MessageType string          `json:"message_type"`
	MessageID   string          `json:"message_id,omitempty"`
	Sequence    int64           `json:"sequence"`
	Timestamp   string          `json:"timestamp"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func (m *Message) Session() string { return m.SessionID }
func (m *Message) isFrame()        {}

// Error is an error report produced by the backend. It carries no sequence
// number and may lack a session ID.
type Error struct {
	SessionID string `json:"session_id,omitempty"`
	Type      string `json:"type"` // always "error"
	Message   string `json:"message"`
}

func (e *Error) Session() string { return e.SessionID }
func (e *Error) isFrame()        {}

// Command is an outbound command sent by the console.
type Command struct {
	SessionID string      `json:"session_id"`
	Type      CommandType `json:"type"`
	// Message is the user text for user_message commands. It is omitted
	// from the encoding entirely when empty, so interrupt frames never
	// carry a message key.
	Message string `json:"message,omitempty"`
}

// Encode serializes an outbound command to wire bytes.
func Encode(cmd Command) ([]byte, error) {
	if cmd.SessionID == "" {
		return nil, ErrSessionRequired
	}
	switch cmd.Type {
	case CommandUserMessage:
		if cmd.Message == "" {
			return nil, ErrMessageRequired
		}
	case CommandInterrupt:
		cmd.Message = ""
	default:
		return nil, fmt.Errorf("unknown command type %q", cmd.Type)
	}
	return json.Marshal(cmd)
}

// frameProbe is the minimal shape needed to discriminate inbound frames.
type frameProbe struct {
	Type     string `json:"type"`
	Sequence *int64 `json:"sequence"`
}

// Decode parses an inbound frame. The discriminant is the "type":"error"
// marker versus the presence of a sequence number. A frame matching
// neither shape fails with ErrMalformedFrame; callers are expected to log
// and drop it, never to treat it as a connection fault.
func Decode(data []byte) (Frame, error) {
	var probe frameProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if probe.Type == "error" {
		var e Error
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return &e, nil
	}

	if probe.Sequence != nil {
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if m.SessionID == "" {
			return nil, fmt.Errorf("%w: message frame missing session_id", ErrMalformedFrame)
		}
		return &m, nil
	}

	return nil, fmt.Errorf("%w: frame has neither error type nor sequence", ErrMalformedFrame)
}
