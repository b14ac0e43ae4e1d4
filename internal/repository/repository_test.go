package repository

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/fraudshield/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "fraudshield-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetSession", func(t *testing.T) {
		session := &domain.Session{
			ID:        "sess-001",
			Email:     "analyst@example.com",
			Token:     "token-abc",
			CreatedAt: time.Now().UTC(),
		}

		if err := repo.SaveSession(ctx, session); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}

		got, err := repo.GetSession(ctx, "sess-001")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.Token != "token-abc" {
			t.Errorf("expected token 'token-abc', got '%s'", got.Token)
		}
		if got.Email != session.Email {
			t.Errorf("expected email %s, got %s", session.Email, got.Email)
		}
	})

	t.Run("SaveSessionReplaces", func(t *testing.T) {
		session := &domain.Session{ID: "sess-002", Email: "a@example.com", Token: "first", CreatedAt: time.Now().UTC()}
		_ = repo.SaveSession(ctx, session)

		session.Token = "second"
		if err := repo.SaveSession(ctx, session); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}

		got, _ := repo.GetSession(ctx, "sess-002")
		if got == nil || got.Token != "second" {
			t.Errorf("expected replaced token 'second', got %+v", got)
		}
	})

	t.Run("MalformedSessionIsDiscarded", func(t *testing.T) {
		_, err := repo.db.ExecContext(ctx,
			`INSERT INTO sessions (id, email, data, created_at) VALUES (?, ?, ?, ?)`,
			"sess-bad", "x@example.com", "{not json", time.Now().UTC())
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}

		if _, err := repo.GetSession(ctx, "sess-bad"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for malformed session, got %v", err)
		}

		var count int
		repo.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, "sess-bad").Scan(&count)
		if count != 0 {
			t.Errorf("expected malformed session to be deleted, found %d rows", count)
		}
	})

	t.Run("DeleteSession", func(t *testing.T) {
		_ = repo.SaveSession(ctx, &domain.Session{ID: "sess-003", Email: "b@example.com", Token: "t", CreatedAt: time.Now().UTC()})

		if err := repo.DeleteSession(ctx, "sess-003"); err != nil {
			t.Fatalf("DeleteSession failed: %v", err)
		}
		if _, err := repo.GetSession(ctx, "sess-003"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.DeleteSession(ctx, "sess-003"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound deleting twice, got %v", err)
		}
	})

	t.Run("SessionRequiresID", func(t *testing.T) {
		err := repo.SaveSession(ctx, &domain.Session{Token: "t"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("SaveAndGetAssessment", func(t *testing.T) {
		a := &domain.RiskAssessment{
			ID:            "tx-001-analysis",
			TransactionID: "tx-001",
			RiskLevel:     domain.RiskHigh,
			RiskScore:     92.0,
			Summary:       "Suspicious pattern detected",
			Factors: []domain.RiskFactor{
				{Title: "Factor 1", Description: "Suspicious pattern detected", Impact: domain.ImpactNegative, Weight: 1},
			},
			Timestamp: time.Now().UTC(),
		}

		if err := repo.SaveAssessment(ctx, a); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}

		got, err := repo.GetAssessmentByTransaction(ctx, "tx-001")
		if err != nil {
			t.Fatalf("GetAssessmentByTransaction failed: %v", err)
		}
		if got.RiskLevel != domain.RiskHigh {
			t.Errorf("expected level high, got %s", got.RiskLevel)
		}
		if got.RiskScore != 92.0 {
			t.Errorf("expected score 92.0, got %.1f", got.RiskScore)
		}
		if len(got.Factors) != 1 || got.Factors[0].Impact != domain.ImpactNegative {
			t.Errorf("unexpected factors: %+v", got.Factors)
		}
	})

	t.Run("ReanalysisReplacesAssessment", func(t *testing.T) {
		a := &domain.RiskAssessment{
			ID:            "tx-001-analysis",
			TransactionID: "tx-001",
			RiskLevel:     domain.RiskLow,
			RiskScore:     2.0,
			Factors:       []domain.RiskFactor{},
			Timestamp:     time.Now().UTC(),
		}
		if err := repo.SaveAssessment(ctx, a); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}

		got, _ := repo.GetAssessmentByTransaction(ctx, "tx-001")
		if got.RiskLevel != domain.RiskLow {
			t.Errorf("expected replaced level low, got %s", got.RiskLevel)
		}
	})

	t.Run("AssessmentNotFound", func(t *testing.T) {
		if _, err := repo.GetAssessmentByTransaction(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListAssessments", func(t *testing.T) {
		base := time.Now().UTC()
		for i, id := range []string{"tx-a", "tx-b", "tx-c"} {
			_ = repo.SaveAssessment(ctx, &domain.RiskAssessment{
				ID:            id + "-analysis",
				TransactionID: id,
				RiskLevel:     domain.RiskMedium,
				RiskScore:     40,
				Factors:       []domain.RiskFactor{},
				Timestamp:     base.Add(time.Duration(i+1) * time.Minute),
			})
		}

		list, err := repo.ListAssessments(ctx, 2)
		if err != nil {
			t.Fatalf("ListAssessments failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 assessments, got %d", len(list))
		}
		if list[0].TransactionID != "tx-c" {
			t.Errorf("expected newest first (tx-c), got %s", list[0].TransactionID)
		}
	})

	t.Run("Notifications", func(t *testing.T) {
		base := time.Now().UTC()
		for i, id := range []string{"n-1", "n-2"} {
			err := repo.SaveNotification(ctx, &domain.Notification{
				ID:       id,
				Message:  "High-risk transaction",
				Time:     base.Add(time.Duration(i) * time.Second),
				Severity: domain.RiskHigh,
			})
			if err != nil {
				t.Fatalf("SaveNotification failed: %v", err)
			}
		}

		if err := repo.MarkNotificationRead(ctx, "n-1"); err != nil {
			t.Fatalf("MarkNotificationRead failed: %v", err)
		}

		list, err := repo.ListNotifications(ctx, 10)
		if err != nil {
			t.Fatalf("ListNotifications failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 notifications, got %d", len(list))
		}
		if list[0].ID != "n-2" || list[0].Read {
			t.Errorf("expected unread n-2 first, got %+v", list[0])
		}
		if !list[1].Read {
			t.Error("expected n-1 to be read")
		}
		if list[0].Severity != domain.RiskHigh {
			t.Errorf("expected severity high, got %s", list[0].Severity)
		}
	})

	t.Run("MarkUnknownNotification", func(t *testing.T) {
		if err := repo.MarkNotificationRead(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	if got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("unexpected rebind result: %s", got)
	}

	lite := &SQLRepository{driver: "sqlite"}
	if lite.rebind("a = ?") != "a = ?" {
		t.Error("sqlite queries must not be rebound")
	}
}

func TestSQLitePoolDefaults(t *testing.T) {
	repo := newTestRepo(t)
	if got := repo.DB().Stats().MaxOpenConnections; got != sqliteMaxOpenConns {
		t.Errorf("expected %d max open connections, got %d", sqliteMaxOpenConns, got)
	}
}

func TestSQLitePoolOverride(t *testing.T) {
	path := t.TempDir() + "/override.db"
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: path, MaxOpenConns: 2})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	if got := repo.DB().Stats().MaxOpenConnections; got != 2 {
		t.Errorf("expected configured max of 2, got %d", got)
	}
}

func TestSQLiteInMemory(t *testing.T) {
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:", MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("failed to create in-memory repository: %v", err)
	}
	defer repo.Close()

	if got := repo.DB().Stats().MaxOpenConnections; got != 1 {
		t.Errorf("in-memory database must stay on one connection, got %d", got)
	}

	ctx := context.Background()
	session := &domain.Session{ID: "mem-1", Email: "mem@example.com", Token: "t", CreatedAt: time.Now().UTC()}
	if err := repo.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if _, err := repo.GetSession(ctx, "mem-1"); err != nil {
		t.Errorf("session written to memory should be readable: %v", err)
	}
}

func TestPostgresDSN(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		dsn := postgresDSN(domain.RepositoryConfig{Driver: "postgres"})
		for _, want := range []string{"host=localhost", "port=5432", "dbname=fraudshield", "sslmode=disable", "connect_timeout=5"} {
			if !strings.Contains(dsn, want) {
				t.Errorf("expected %q in %q", want, dsn)
			}
		}
		if strings.Contains(dsn, "password=") {
			t.Errorf("empty password must be omitted: %q", dsn)
		}
	})

	t.Run("QuotesSpecialValues", func(t *testing.T) {
		dsn := postgresDSN(domain.RepositoryConfig{
			PostgresUser:     "analyst",
			PostgresPassword: `it's a s\ecret`,
			PostgresSSLMode:  "require",
		})
		if !strings.Contains(dsn, `password='it\'s a s\\ecret'`) {
			t.Errorf("password not quoted: %q", dsn)
		}
		if !strings.Contains(dsn, "user=analyst") || !strings.Contains(dsn, "sslmode=require") {
			t.Errorf("unexpected dsn: %q", dsn)
		}
	})
}
