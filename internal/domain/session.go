package domain

import (
	"context"
	"time"
)

// Session is the persisted authentication state of one user.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}

// Credentials carries a login or registration request.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CredentialProvider supplies the bearer token for outgoing requests.
// An empty token means the request goes out unauthenticated.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a CredentialProvider that always returns the same token.
type StaticToken string

// Token implements CredentialProvider.
func (s StaticToken) Token(ctx context.Context) (string, error) {
	return string(s), nil
}
