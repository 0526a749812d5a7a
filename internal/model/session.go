package model

import "time"

// SessionStatus represents the status of an agent session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
	SessionStatusFailed SessionStatus = "failed"
)

// Session represents one logical agent session. The server assigns the ID;
// it is the routing key for every frame the session produces.
type Session struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Agent     string        `json:"agent"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Duration returns how long the session has existed.
func (s *Session) Duration() time.Duration {
	return time.Since(s.CreatedAt)
}

// CreateSessionRequest represents a request to create a new session.
type CreateSessionRequest struct {
	Agent string `json:"agent" binding:"required"`
	Name  string `json:"name"`
}

// Validate validates the create session request.
func (r *CreateSessionRequest) Validate() error {
	if r.Agent == "" {
		return ErrAgentRequired
	}
	return nil
}
