package sqlstore

import (
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := DefaultConfig(DriverSQLite, "data/liveclass.db")
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}

	cases := map[string]func(*Config){
		"driver":       func(c *Config) { c.Driver = "mysql" },
		"dsn":          func(c *Config) { c.DSN = "  " },
		"busy timeout": func(c *Config) { c.BusyTimeout = -time.Second },
		"journal mode": func(c *Config) { c.JournalMode = "fast" },
		"synchronous":  func(c *Config) { c.Synchronous = "sometimes" },
		"pool":         func(c *Config) { c.MaxOpenConns = -1 },
	}
	for name, mutate := range cases {
		cfg := valid
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected %s to be rejected", name)
		}
	}
}

func TestConfigDataSourceName(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig(DriverSQLite, "/tmp/liveclass.db")
	dsn := cfg.dataSourceName()
	if !strings.HasPrefix(dsn, "file:/tmp/liveclass.db?") {
		t.Fatalf("expected file URI, got %q", dsn)
	}

	parsed, err := url.ParseQuery(dsn[strings.Index(dsn, "?")+1:])
	if err != nil {
		t.Fatalf("failed to parse DSN params: %v", err)
	}
	pragmas := strings.Join(parsed["_pragma"], ",")
	for _, want := range []string{"foreign_keys(1)", "busy_timeout(10000)", "journal_mode(WAL)", "synchronous(NORMAL)"} {
		if !strings.Contains(pragmas, want) {
			t.Fatalf("expected pragma %s in %q", want, pragmas)
		}
	}
	if parsed.Get("_txlock") != "immediate" {
		t.Fatalf("expected immediate transactions, got %q", parsed.Get("_txlock"))
	}

	withQuery := DefaultConfig(DriverSQLite, "file:test.db?cache=shared").dataSourceName()
	if !strings.Contains(withQuery, "?cache=shared&") {
		t.Fatalf("expected params appended to the existing query, got %q", withQuery)
	}

	postgres := DefaultConfig(DriverPostgres, "postgres://u:p@localhost/liveclass").dataSourceName()
	if postgres != "postgres://u:p@localhost/liveclass" {
		t.Fatalf("expected postgres DSN untouched, got %q", postgres)
	}
}

func TestEnsureDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "dir")
	cfg := DefaultConfig(DriverSQLite, filepath.Join(dir, "liveclass.db"))
	if err := cfg.ensureDirectory(); err != nil {
		t.Fatalf("ensureDirectory returned error: %v", err)
	}
	if err := DefaultConfig(DriverSQLite, ":memory:").ensureDirectory(); err != nil {
		t.Fatalf("expected in-memory database to need no directory, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()

	query := `UPDATE sessions SET status = ? WHERE id = ? AND status = ?`

	sqliteStore := &Store{config: Config{Driver: DriverSQLite}}
	if got := sqliteStore.rebind(query); got != query {
		t.Fatalf("expected sqlite query untouched, got %q", got)
	}

	pgStore := &Store{config: Config{Driver: DriverPostgres}}
	want := `UPDATE sessions SET status = $1 WHERE id = $2 AND status = $3`
	if got := pgStore.rebind(query); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestIsBusy(t *testing.T) {
	t.Parallel()

	if isBusy(nil) {
		t.Fatalf("expected nil error not to be busy")
	}
	if !isBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Fatalf("expected lock message to be busy")
	}
	if !isBusy(&pq.Error{Code: "40001"}) {
		t.Fatalf("expected serialization failure to be retried")
	}
	if isBusy(&pq.Error{Code: "23505"}) {
		t.Fatalf("expected unique violation not to be retried")
	}
}
