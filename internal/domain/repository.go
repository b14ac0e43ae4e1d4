// Package domain defines the core interfaces and types for FraudShield.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Session operations. Sessions are stored as opaque JSON blobs.
	SaveSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Assessment history
	SaveAssessment(ctx context.Context, a *RiskAssessment) error
	GetAssessmentByTransaction(ctx context.Context, txID string) (*RiskAssessment, error)
	ListAssessments(ctx context.Context, limit int) ([]*RiskAssessment, error)

	// Notifications
	SaveNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, limit int) ([]*Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
