// Package server implements the backend side of the session event stream.
//
// The package implements:
//   - Client: one connected console over WebSocket
//   - Hub: fan-out of session frames to every connected console
//   - FrameHistory: bounded per-session ring of recent frames for replay
//   - Handler: command handling and the simulated agent loop
//
// Key behaviors:
//   - Every frame carries a session_id; consoles route locally
//   - Recent frames are replayed to a console when it attaches
//   - user_message commands produce assistant replies with a per-session
//     monotonically increasing sequence number
//   - interrupt commands produce a notification frame
package server
