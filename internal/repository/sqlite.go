package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opensource-finance/fraudshield/internal/domain"
	_ "modernc.org/sqlite"
)

const (
	defaultSQLitePath = "./fraudshield.db"

	// WAL admits one writer at a time; a small pool keeps readers off
	// the busy_timeout path.
	sqliteMaxOpenConns    = 4
	sqliteConnMaxIdleTime = 5 * time.Minute
)

// isSQLiteMemory reports whether path names a private in-memory database.
func isSQLiteMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// sqliteDSN builds the modernc connection string. In-memory databases
// skip WAL, which SQLite does not support for them.
func sqliteDSN(path string) string {
	if isSQLiteMemory(path) {
		return "file::memory:?_pragma=foreign_keys(ON)"
	}
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
}

// openSQLite opens the session store on modernc.org/sqlite (no CGO).
// An in-memory database lives inside a single connection, so its pool
// is pinned to one.
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = defaultSQLitePath
	}
	memory := isSQLiteMemory(path)

	if !memory {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if memory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(sqliteMaxOpenConns)
		db.SetMaxIdleConns(sqliteMaxOpenConns)
		db.SetConnMaxIdleTime(sqliteConnMaxIdleTime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database %s: %w", path, err)
	}

	return db, nil
}
