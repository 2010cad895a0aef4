package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garnizeh/interviewer/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return p
}

func TestValidate_InsecureJWT_FailsWhenNotDevelopment(t *testing.T) {
	t.Setenv("INTERVIEWER_ENV", "production")

	cfg := &config.Config{JWTSecret: "supersecretkey", DatabasePath: "x.db"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate to fail for insecure JWT in non-development env")
	}
}

func TestValidate_InsecureJWT_AllowsDevelopment(t *testing.T) {
	t.Setenv("INTERVIEWER_ENV", "development")

	cfg := &config.Config{JWTSecret: "supersecretkey", DatabasePath: "x.db"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected Validate to succeed in development env, got: %v", err)
	}
}

func TestValidate_MissingDatabasePath(t *testing.T) {
	cfg := &config.Config{JWTSecret: "strongsecret"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate to fail when database_path is empty")
	}
}

func TestValidate_DefaultsPopulated(t *testing.T) {
	cfg := &config.Config{JWTSecret: "strongsecret", DatabasePath: "x.db"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed unexpectedly: %v", err)
	}

	if cfg.Provider.BaseURL != "https://api.vapi.ai" {
		t.Fatalf("unexpected Provider.BaseURL: %q", cfg.Provider.BaseURL)
	}
	if cfg.Provider.Timeout != 30*time.Second {
		t.Fatalf("unexpected Provider.Timeout: %v", cfg.Provider.Timeout)
	}
	if cfg.Reconcile.Interval != 20*time.Second {
		t.Fatalf("unexpected Reconcile.Interval: %v", cfg.Reconcile.Interval)
	}
	if cfg.Reconcile.MaxAttempts != 6 {
		t.Fatalf("unexpected Reconcile.MaxAttempts: %d", cfg.Reconcile.MaxAttempts)
	}
	if len(cfg.Evaluation.Names) != 2 || cfg.Evaluation.Names[0] != "Interview_Evaluation" {
		t.Fatalf("unexpected Evaluation.Names: %v", cfg.Evaluation.Names)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("INTERVIEWER_ADDR", "")
	t.Setenv("INTERVIEWER_JWT_SECRET", "")
	t.Setenv("INTERVIEWER_DATABASE_PATH", "")
	t.Setenv("VAPI_API_KEY", "key-from-env")

	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error for empty path: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected Addr: got %q want %q", cfg.Addr, ":8080")
	}
	if cfg.JWTSecret != "supersecretkey" {
		t.Fatalf("unexpected JWTSecret: got %q", cfg.JWTSecret)
	}
	if cfg.DatabasePath != "interviewer.db" {
		t.Fatalf("unexpected DatabasePath: got %q", cfg.DatabasePath)
	}
	if cfg.Provider.APIKey != "key-from-env" {
		t.Fatalf("unexpected Provider.APIKey: got %q", cfg.Provider.APIKey)
	}
	if !cfg.Matching.AllowFallback {
		t.Fatalf("expected fallback matching enabled by default")
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	p := writeConfig(t, `addr: ":9090"
jwt_secret: "filekey"
database_path: "test.db"
token_duration: "2h"
provider:
  base_url: "http://localhost:9999"
  timeout: "5s"
reconcile:
  interval: "1s"
  max_attempts: 3
matching:
  allow_fallback: false
evaluation:
  names: ["Custom_Evaluation"]
`)

	cfg, err := config.LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig returned error for file: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Addr != ":9090" || cfg.JWTSecret != "filekey" || cfg.DatabasePath != "test.db" {
		t.Fatalf("unexpected top-level values: %+v", cfg)
	}
	if cfg.TokenDuration != 2*time.Hour {
		t.Fatalf("unexpected TokenDuration: %v", cfg.TokenDuration)
	}
	if cfg.Provider.BaseURL != "http://localhost:9999" || cfg.Provider.Timeout != 5*time.Second {
		t.Fatalf("unexpected provider config: %+v", cfg.Provider)
	}
	if cfg.Reconcile.Interval != time.Second || cfg.Reconcile.MaxAttempts != 3 {
		t.Fatalf("unexpected reconcile config: %+v", cfg.Reconcile)
	}
	if cfg.Matching.AllowFallback {
		t.Fatalf("expected fallback disabled from file")
	}
	if len(cfg.Evaluation.Names) != 1 || cfg.Evaluation.Names[0] != "Custom_Evaluation" {
		t.Fatalf("unexpected evaluation names: %v", cfg.Evaluation.Names)
	}
}

func TestLoadConfig_BadPath(t *testing.T) {
	if _, err := config.LoadConfig("/path/that/does/not/exist.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent path, got nil")
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	p := writeConfig(t, "addr: [unclosed\n")
	if _, err := config.LoadConfig(p); err == nil {
		t.Fatalf("expected YAML decode error, got nil")
	}
}

func TestApplyDefaults_IgnoresSecrets(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected Addr: %q", cfg.Addr)
	}
	if cfg.Reconcile.Concurrency != 4 {
		t.Fatalf("unexpected Reconcile.Concurrency: %d", cfg.Reconcile.Concurrency)
	}
	if cfg.JWTSecret != "" {
		t.Fatalf("ApplyDefaults must not set JWTSecret, got %q", cfg.JWTSecret)
	}
}
