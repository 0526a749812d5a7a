// Package session manages the lifecycle of agent sessions in the backend.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agent-console/stream/internal/model"
	"github.com/agent-console/stream/internal/repository"
)

// Manager manages agent sessions backed by the registry.
type Manager struct {
	repo *repository.SessionRepository
}

// NewManager creates a new session manager.
func NewManager(repo *repository.SessionRepository) *Manager {
	return &Manager{repo: repo}
}

// Create creates a new agent session with a server-assigned ID.
func (m *Manager) Create(ctx context.Context, req *model.CreateSessionRequest) (*model.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		Name:      req.Name,
		Agent:     req.Agent,
		Status:    model.SessionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if session.Name == "" {
		session.Name = fmt.Sprintf("Session %s", sessionID[:8])
	}

	if err := m.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	return session, nil
}

// Get retrieves a session by ID.
func (m *Manager) Get(ctx context.Context, id string) (*model.Session, error) {
	return m.repo.GetByID(ctx, id)
}

// List retrieves all sessions.
func (m *Manager) List(ctx context.Context) ([]*model.Session, error) {
	return m.repo.List(ctx)
}

// End marks a session as ended. Commands for an ended session are rejected.
func (m *Manager) End(ctx context.Context, id string) error {
	return m.repo.UpdateStatus(ctx, id, model.SessionStatusEnded)
}

// Delete removes a session from the registry.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.repo.Delete(ctx, id)
}

// IsActive reports whether the session exists and accepts commands.
func (m *Manager) IsActive(ctx context.Context, id string) (bool, error) {
	session, err := m.repo.GetByID(ctx, id)
	if err != nil {
		if err == model.ErrSessionNotFound {
			return false, nil
		}
		return false, err
	}
	return session.Status == model.SessionStatusActive, nil
}
