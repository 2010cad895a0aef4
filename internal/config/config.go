package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const insecureJWTSecret = "supersecretkey"

// DefaultEvaluationNames are the structured output names accepted as the
// interview evaluation, in priority order.
var DefaultEvaluationNames = []string{"Interview_Evaluation", "Backend_Interview_Evaluation"}

type Config struct {
	Addr          string           `yaml:"addr"`
	JWTSecret     string           `yaml:"jwt_secret"`
	APITimeout    time.Duration    `yaml:"timeout"`
	DatabasePath  string           `yaml:"database_path"`
	TokenDuration time.Duration    `yaml:"token_duration"`
	LogLevel      string           `yaml:"log_level"`
	Provider      ProviderConfig   `yaml:"provider"`
	Reconcile     ReconcileConfig  `yaml:"reconcile"`
	Matching      MatchingConfig   `yaml:"matching"`
	Evaluation    EvaluationConfig `yaml:"evaluation"`
}

// ProviderConfig configures the voice provider API client and webhook endpoint.
type ProviderConfig struct {
	BaseURL                 string        `yaml:"base_url"`
	APIKey                  string        `yaml:"api_key"`
	Timeout                 time.Duration `yaml:"timeout"`
	WebhookSecret           string        `yaml:"webhook_secret"`
	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold"`
	CircuitReset            time.Duration `yaml:"circuit_reset"`
}

type ReconcileConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	// Concurrency bounds bulk manual fetches of unresolved reconciliations.
	Concurrency int `yaml:"concurrency"`
}

type MatchingConfig struct {
	// AllowFallback enables matching call-end events without a token to the
	// most recently active interview.
	AllowFallback bool `yaml:"allow_fallback"`
}

type EvaluationConfig struct {
	Names []string `yaml:"names"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:          getEnv("INTERVIEWER_ADDR", ":8080"),
		JWTSecret:     getEnv("INTERVIEWER_JWT_SECRET", insecureJWTSecret),
		APITimeout:    15 * time.Second,
		DatabasePath:  getEnv("INTERVIEWER_DATABASE_PATH", "interviewer.db"),
		TokenDuration: 1 * time.Hour,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Provider: ProviderConfig{
			APIKey:        os.Getenv("VAPI_API_KEY"),
			WebhookSecret: os.Getenv("VAPI_WEBHOOK_SECRET"),
		},
		Matching: MatchingConfig{AllowFallback: true},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Validate fills unset values with defaults and rejects unsafe settings.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt_secret must be set")
	}
	if c.JWTSecret == insecureJWTSecret && os.Getenv("INTERVIEWER_ENV") != "development" {
		return errors.New("jwt_secret uses the insecure default; set INTERVIEWER_JWT_SECRET or INTERVIEWER_ENV=development")
	}
	if c.DatabasePath == "" {
		return errors.New("database_path must be set")
	}
	c.ApplyDefaults()
	return nil
}

// ApplyDefaults fills unset values with defaults without validating secrets.
// Tools that never issue tokens use it instead of Validate.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = time.Hour
	}

	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.vapi.ai"
	}
	if c.Provider.Timeout <= 0 {
		c.Provider.Timeout = 30 * time.Second
	}
	if c.Provider.CircuitFailureThreshold <= 0 {
		c.Provider.CircuitFailureThreshold = 5
	}
	if c.Provider.CircuitReset <= 0 {
		c.Provider.CircuitReset = 30 * time.Second
	}

	if c.Reconcile.Interval <= 0 {
		c.Reconcile.Interval = 20 * time.Second
	}
	if c.Reconcile.MaxAttempts <= 0 {
		c.Reconcile.MaxAttempts = 6
	}
	if c.Reconcile.Concurrency <= 0 {
		c.Reconcile.Concurrency = 4
	}

	if len(c.Evaluation.Names) == 0 {
		c.Evaluation.Names = append([]string(nil), DefaultEvaluationNames...)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
