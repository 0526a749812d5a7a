package model

import "errors"

var (
	// ErrAgentRequired is returned when a session creation request is missing the agent.
	ErrAgentRequired = errors.New("agent is required")

	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnauthorized is returned when the stream token is missing or wrong.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSessionEnded is returned when a command targets a session that is no longer active.
	ErrSessionEnded = errors.New("session has ended")
)
