package database

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestCountAppliedRange(t *testing.T) {
	files := []string{"000001_ssh_sessions.up.sql", "000002_session_index.up.sql", "000003_saved_at.up.sql"}
	if got := countApplied(files, 1, 3); got != 2 {
		t.Fatalf("countApplied = %d, want 2", got)
	}
	if got := countApplied(files, 3, 3); got != 0 {
		t.Fatalf("countApplied = %d, want 0", got)
	}
	applied := selectApplied(files, 0, 1)
	if len(applied) != 1 || applied[0] != files[0] {
		t.Fatalf("selectApplied = %v", applied)
	}
}

func TestResolveMigrationsDir(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "m")
	got, err := resolveMigrationsDir(abs)
	if err != nil || got != abs {
		t.Fatalf("resolve(%q) = %q, %v", abs, got, err)
	}
	got, err = resolveMigrationsDir("")
	if err != nil || !strings.HasSuffix(got, "migrations") {
		t.Fatalf("resolve default = %q, %v", got, err)
	}
}

func TestConfigURLEscapesPassword(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "bot", Password: "p@ss/word", Name: "sshbot"}
	u := cfg.URL()
	if strings.Contains(u, "p@ss/word") {
		t.Fatalf("password not escaped: %s", u)
	}
	if !strings.HasSuffix(u, "/sshbot?sslmode=disable") {
		t.Fatalf("unexpected url %s", u)
	}
	if !strings.Contains(cfg.DSN(), "sslmode=disable") {
		t.Fatalf("unexpected dsn %s", cfg.DSN())
	}
}
