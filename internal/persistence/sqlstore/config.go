package sqlstore

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Driver names the database/sql driver backing the store.
type Driver string

const (
	// DriverSQLite selects the pure-Go modernc.org/sqlite driver.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres selects github.com/lib/pq.
	DriverPostgres Driver = "postgres"
)

// Config holds connection settings for the store.
type Config struct {
	Driver Driver
	// DSN is a SQLite file path (or file: URI) or a PostgreSQL connection string.
	DSN string

	// BusyTimeout sets how long SQLite waits for database locks.
	BusyTimeout time.Duration
	// JournalMode sets the SQLite journal mode (WAL, DELETE, MEMORY, ...).
	JournalMode string
	// Synchronous sets the SQLite synchronous mode (FULL, NORMAL, OFF).
	Synchronous string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// RetryAttempts bounds how often a transaction is retried after a busy or locked error.
	RetryAttempts uint64
	// RetryBase is the first backoff delay between transaction retries.
	RetryBase time.Duration
}

// DefaultConfig returns settings suited to a long-running service.
func DefaultConfig(driver Driver, dsn string) Config {
	return Config{
		Driver:          driver,
		DSN:             dsn,
		BusyTimeout:     10 * time.Second,
		JournalMode:     "WAL",
		Synchronous:     "NORMAL",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		RetryAttempts:   3,
		RetryBase:       50 * time.Millisecond,
	}
}

// TempFileTestConfig returns a SQLite configuration for a temporary test database.
func TempFileTestConfig(path string) Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             path,
		BusyTimeout:     5 * time.Second,
		JournalMode:     "WAL",
		Synchronous:     "OFF",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		RetryAttempts:   5,
		RetryBase:       10 * time.Millisecond,
	}
}

// Validate reports configuration problems before a connection is attempted.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("DSN cannot be empty")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("BusyTimeout cannot be negative")
	}
	validJournalModes := map[string]bool{"": true, "DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "WAL": true, "OFF": true}
	if !validJournalModes[strings.ToUpper(c.JournalMode)] {
		return fmt.Errorf("invalid journal mode: %s", c.JournalMode)
	}
	validSyncModes := map[string]bool{"": true, "OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}
	if !validSyncModes[strings.ToUpper(c.Synchronous)] {
		return fmt.Errorf("invalid synchronous mode: %s", c.Synchronous)
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 || c.ConnMaxLifetime < 0 {
		return fmt.Errorf("connection pool settings cannot be negative")
	}
	return nil
}

// dataSourceName returns the driver DSN. For SQLite, pragmas travel in the
// DSN so every pooled connection gets them, and writers take the lock at BEGIN.
func (c Config) dataSourceName() string {
	if c.Driver != DriverSQLite {
		return c.DSN
	}

	dsn := c.DSN
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}

	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	if c.BusyTimeout > 0 {
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	}
	if c.JournalMode != "" {
		params.Add("_pragma", fmt.Sprintf("journal_mode(%s)", strings.ToUpper(c.JournalMode)))
	}
	if c.Synchronous != "" {
		params.Add("_pragma", fmt.Sprintf("synchronous(%s)", strings.ToUpper(c.Synchronous)))
	}
	params.Set("_txlock", "immediate")

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + params.Encode()
}

// ensureDirectory creates the parent directory of a SQLite database file.
func (c Config) ensureDirectory() error {
	if c.Driver != DriverSQLite || c.DSN == ":memory:" {
		return nil
	}
	path := strings.TrimPrefix(c.DSN, "file:")
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}
