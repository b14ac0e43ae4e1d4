// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/opensource-finance/fraudshield/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultListLimit caps list queries when the caller passes no limit.
const DefaultListLimit = 50

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory sqlite database must stay on its single connection.
	if !(cfg.Driver == "sqlite" && isSQLiteMemory(cfg.SQLitePath)) {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveSession stores or replaces a session blob.
func (r *SQLRepository) SaveSession(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	query := `
		INSERT INTO sessions (id, email, data, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			data = excluded.data
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		session.ID, session.Email, string(data), session.CreatedAt,
	)
	return err
}

// GetSession loads a session. A blob that no longer parses is deleted
// and reported as ErrNotFound so the caller starts a fresh login.
func (r *SQLRepository) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}

	var data string
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT data FROM sessions WHERE id = ?`), sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil || session.Token == "" {
		slog.Warn("discarding malformed session",
			"session_id", sessionID,
			"error", err,
		)
		if delErr := r.DeleteSession(ctx, sessionID); delErr != nil && !errors.Is(delErr, ErrNotFound) {
			return nil, delErr
		}
		return nil, ErrNotFound
	}

	return &session, nil
}

// DeleteSession removes a session.
func (r *SQLRepository) DeleteSession(ctx context.Context, sessionID string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM sessions WHERE id = ?`), sessionID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveAssessment stores an assessment. Re-analysing a transaction
// replaces its previous assessment.
func (r *SQLRepository) SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error {
	if a == nil || a.ID == "" || a.TransactionID == "" {
		return fmt.Errorf("%w: assessment id and transaction id are required", ErrInvalidInput)
	}

	factors, err := json.Marshal(a.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal factors: %w", err)
	}

	query := `
		INSERT INTO assessments (id, tx_id, risk_level, risk_score, summary, factors, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			risk_level = excluded.risk_level,
			risk_score = excluded.risk_score,
			summary = excluded.summary,
			factors = excluded.factors,
			timestamp = excluded.timestamp
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.TransactionID, string(a.RiskLevel), a.RiskScore, a.Summary, string(factors), a.Timestamp,
	)
	return err
}

// GetAssessmentByTransaction retrieves the latest assessment of a transaction.
func (r *SQLRepository) GetAssessmentByTransaction(ctx context.Context, txID string) (*domain.RiskAssessment, error) {
	query := `
		SELECT id, tx_id, risk_level, risk_score, summary, factors, timestamp
		FROM assessments
		WHERE tx_id = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	a, err := scanAssessment(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAssessments returns the most recent assessments, newest first.
func (r *SQLRepository) ListAssessments(ctx context.Context, limit int) ([]*domain.RiskAssessment, error) {
	query := `
		SELECT id, tx_id, risk_level, risk_score, summary, factors, timestamp
		FROM assessments
		ORDER BY timestamp DESC
		LIMIT ` + strconv.Itoa(clampLimit(limit))

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assessments := []*domain.RiskAssessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		assessments = append(assessments, a)
	}

	return assessments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (*domain.RiskAssessment, error) {
	var a domain.RiskAssessment
	var level, factors string

	if err := row.Scan(
		&a.ID, &a.TransactionID, &level, &a.RiskScore, &a.Summary, &factors, &a.Timestamp,
	); err != nil {
		return nil, err
	}

	a.RiskLevel = domain.RiskLevel(level)
	if err := json.Unmarshal([]byte(factors), &a.Factors); err != nil {
		return nil, fmt.Errorf("failed to parse factors for %s: %w", a.ID, err)
	}
	if a.Factors == nil {
		a.Factors = []domain.RiskFactor{}
	}
	return &a, nil
}

// SaveNotification stores a notification.
func (r *SQLRepository) SaveNotification(ctx context.Context, n *domain.Notification) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("%w: notification id is required", ErrInvalidInput)
	}

	read := 0
	if n.Read {
		read = 1
	}

	query := `
		INSERT INTO notifications (id, message, severity, is_read, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		n.ID, n.Message, string(n.Severity), read, n.Time,
	)
	return err
}

// ListNotifications returns the most recent notifications, newest first.
func (r *SQLRepository) ListNotifications(ctx context.Context, limit int) ([]*domain.Notification, error) {
	query := `
		SELECT id, message, severity, is_read, created_at
		FROM notifications
		ORDER BY created_at DESC
		LIMIT ` + strconv.Itoa(clampLimit(limit))

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []*domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		var severity string
		var read int

		if err := rows.Scan(&n.ID, &n.Message, &severity, &read, &n.Time); err != nil {
			return nil, err
		}

		n.Severity = domain.RiskLevel(severity)
		n.Read = read == 1
		notifications = append(notifications, &n)
	}

	return notifications, rows.Err()
}

// MarkNotificationRead flags a notification as read.
func (r *SQLRepository) MarkNotificationRead(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`UPDATE notifications SET is_read = 1 WHERE id = ?`), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// DB exposes the underlying pool for stats collection.
func (r *SQLRepository) DB() *sql.DB {
	return r.db
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultListLimit
	}
	return limit
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

var _ domain.Repository = (*SQLRepository)(nil)

