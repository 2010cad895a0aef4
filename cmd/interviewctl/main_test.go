package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestDatabaseCommands(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "interviewer.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("database_path: "+dbPath+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if out := run(t, cfgPath, "migrate"); !strings.Contains(out, "initialized") {
		t.Fatalf("migrate: unexpected output %q", out)
	}
	if out := run(t, cfgPath, "operator", "add", "--name", "Ops", "--email", "ops@example.com", "--password", "pw"); !strings.Contains(out, "ops@example.com") {
		t.Fatalf("operator add: unexpected output %q", out)
	}

	run(t, cfgPath, "backup")
	if _, err := os.Stat(dbPath + ".bak"); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}
	// a second backup replaces the first
	run(t, cfgPath, "backup")

	if out := run(t, cfgPath, "restore"); !strings.Contains(out, "restore completed") {
		t.Fatalf("restore: unexpected output %q", out)
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Fatalf("parseID(42) = %d, %v", id, err)
	}
	for _, bad := range []string{"", "0", "-1", "abc"} {
		if _, err := parseID(bad); err == nil {
			t.Fatalf("parseID(%q) should fail", bad)
		}
	}
}
