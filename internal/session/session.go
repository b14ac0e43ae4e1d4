// Package session manages authenticated sessions against the scorer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/fraudshield/internal/domain"
	"github.com/opensource-finance/fraudshield/internal/repository"
)

// Authenticator performs login and registration upstream.
type Authenticator interface {
	Login(ctx context.Context, creds domain.Credentials) (string, error)
	Register(ctx context.Context, creds domain.Credentials) (string, error)
}

// Store persists sessions.
type Store interface {
	SaveSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Manager creates and resolves sessions.
type Manager struct {
	auth  Authenticator
	store Store
	now   func() time.Time
}

// NewManager creates a session manager.
func NewManager(auth Authenticator, store Store) *Manager {
	return &Manager{
		auth:  auth,
		store: store,
		now:   time.Now,
	}
}

// Register creates an upstream account and returns its id.
func (m *Manager) Register(ctx context.Context, creds domain.Credentials) (string, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	id, err := m.auth.Register(ctx, creds)
	if err != nil {
		return "", err
	}
	slog.Info("account registered", "user_id", id)
	return id, nil
}

// Login authenticates upstream and persists a new session for the token.
func (m *Manager) Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	token, err := m.auth.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	s := &domain.Session{
		ID:        uuid.New().String(),
		Email:     creds.Email,
		Token:     token,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Info("session created", "session_id", s.ID)
	return s, nil
}

// Logout deletes the session.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	slog.Info("session deleted", "session_id", sessionID)
	return nil
}

// Get returns the stored session.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

// Provider returns a CredentialProvider that reads the session's token on
// every call. A missing session yields an empty token.
func (m *Manager) Provider(sessionID string) domain.CredentialProvider {
	return &provider{store: m.store, sessionID: sessionID}
}

type provider struct {
	store     Store
	sessionID string
}

func (p *provider) Token(ctx context.Context) (string, error) {
	if p.sessionID == "" {
		return "", nil
	}
	s, err := p.store.GetSession(ctx, p.sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	return s.Token, nil
}
