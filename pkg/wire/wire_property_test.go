package wire

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCommandRoundTripProperty checks that any encoded command decodes back
// on a loopback to the same session, type, and message text.
func TestCommandRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("user_message commands round-trip", prop.ForAll(
		func(sessionID, text string) bool {
			if sessionID == "" || text == "" {
				return true
			}

			data, err := Encode(Command{
				SessionID: sessionID,
				Type:      CommandUserMessage,
				Message:   text,
			})
			if err != nil {
				return false
			}

			var parsed Command
			if err := json.Unmarshal(data, &parsed); err != nil {
				return false
			}

			return parsed.SessionID == sessionID &&
				parsed.Type == CommandUserMessage &&
				parsed.Message == text
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("interrupt commands never encode a message key", prop.ForAll(
		func(sessionID, stray string) bool {
			if sessionID == "" {
				return true
			}

			data, err := Encode(Command{
				SessionID: sessionID,
				Type:      CommandInterrupt,
				Message:   stray,
			})
			if err != nil {
				return false
			}

			var decoded map[string]json.RawMessage
			if err := json.Unmarshal(data, &decoded); err != nil {
				return false
			}

			_, present := decoded["message"]
			return !present
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestMessageFrameRoundTripProperty checks that message frames survive a
// marshal/decode cycle with payload bytes preserved exactly.
func TestMessageFrameRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	roleGen := gen.OneConstOf(RoleUser, RoleAssistant, RoleSystem, RoleNotification)

	properties.Property("message frames round-trip through Decode", prop.ForAll(
		func(sessionID string, role Role, seq int64, text string) bool {
			if sessionID == "" {
				return true
			}

			payload, err := json.Marshal(map[string]string{"text": text})
			if err != nil {
				return false
			}

			original := &Message{
				SessionID:   sessionID,
				Role:        role,
				MessageType: "text",
				Sequence:    seq,
				Timestamp:   "2024-01-01T00:00:00Z",
				Payload:     payload,
			}

			data, err := json.Marshal(original)
			if err != nil {
				return false
			}

			frame, err := Decode(data)
			if err != nil {
				return false
			}

			msg, ok := frame.(*Message)
			if !ok {
				return false
			}

			return msg.SessionID == sessionID &&
				msg.Role == role &&
				msg.Sequence == seq &&
				string(msg.Payload) == string(payload)
		},
		gen.AlphaString(),
		roleGen,
		gen.Int64(),
		gen.AnyString(),
	))

	properties.Property("decode never panics on arbitrary bytes", prop.ForAll(
		func(data []byte) bool {
			frame, err := Decode(data)
			// Either outcome is fine; the property is that we return
			// a frame or an error, never both nil.
			return (frame == nil) != (err == nil)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
