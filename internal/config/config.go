package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Workflow WorkflowConfig `yaml:"workflow"`
	RAG      RAGConfig      `yaml:"rag"`
	MCP      MCPConfig      `yaml:"mcp"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	APIPrefix   string   `yaml:"api_prefix"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database connection settings. An empty URL selects
// the in-memory repositories.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// AuthConfig holds token and secret-sealing settings.
type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
	EncryptionSecret string        `yaml:"encryption_secret"` // seals MCP auth config; empty stores it as plain JSON
}

// WorkflowConfig holds run execution settings.
type WorkflowConfig struct {
	MaxSteps      int                        `yaml:"max_steps"`
	FailurePolicy string                     `yaml:"failure_policy"` // "abort" or "continue"
	NodeTimeout   time.Duration              `yaml:"node_timeout"`
	Retry         creatory.RetryPolicy       `yaml:"retry"`
	Concurrency   creatory.ConcurrencyLimits `yaml:"concurrency"`
	PreferLocal   bool                       `yaml:"prefer_local"` // route agent nodes to local models first
}

// RAGConfig holds ingestion settings.
type RAGConfig struct {
	ChunkSize int `yaml:"chunk_size"` // runes per chunk when splitting ingested text
}

// MCPConfig holds tool-server client settings.
type MCPConfig struct {
	InvokeRate  float64       `yaml:"invoke_rate"` // calls per second per server
	InvokeBurst int           `yaml:"invoke_burst"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Heartbeat string `yaml:"heartbeat"` // cron spec
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// placeholderSecrets are rejected as JWT secrets in production.
var placeholderSecrets = map[string]bool{
	"change-me-in-production":               true,
	"replace-with-strong-secret":            true,
	"replace-with-a-32-char-minimum-secret": true,
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8000,
			APIPrefix: "/api/v1",
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
		},
		Auth: AuthConfig{
			JWTSecret: "change-me-in-production",
			TokenTTL:  24 * time.Hour,
		},
		Workflow: WorkflowConfig{
			MaxSteps:      15,
			FailurePolicy: "abort",
			Retry:         creatory.DefaultRetryPolicy(),
			Concurrency:   creatory.DefaultConcurrencyLimits(),
		},
		RAG: RAGConfig{
			ChunkSize: 1200,
		},
		MCP: MCPConfig{
			InvokeRate:  5,
			InvokeBurst: 10,
			CallTimeout: 30 * time.Second,
		},
		Worker: WorkerConfig{
			Heartbeat: "@every 15s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML configuration file at path and returns a Config.
// Environment overrides are applied on top of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads ".env" into the process environment when present, then
// tries "config.yaml" from the current directory. If the file does not exist
// it returns defaults with environment overrides applied.
func LoadDefault() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = defaults()
			if err := cfg.applyEnv(os.Getenv); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("APP_ENV"); v != "" {
		c.Env = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := getenv("JWT_SECRET_KEY"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := getenv("ENCRYPTION_SECRET"); v != "" {
		c.Auth.EncryptionSecret = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		origins, err := ParseOrigins(v)
		if err != nil {
			return err
		}
		c.Server.CORSOrigins = origins
	}
	if v := getenv("CIRCUIT_BREAKER_MAX_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CIRCUIT_BREAKER_MAX_STEPS: %w", err)
		}
		c.Workflow.MaxSteps = n
	}
	if v := getenv("APP_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("APP_PORT: %w", err)
		}
		c.Server.Port = n
	}
	return nil
}

// ParseOrigins accepts a comma separated list or a YAML/JSON flow sequence.
func ParseOrigins(v string) ([]string, error) {
	v = strings.TrimSpace(v)
	var raw []string
	if strings.HasPrefix(v, "[") {
		if err := yaml.Unmarshal([]byte(v), &raw); err != nil {
			return nil, fmt.Errorf("CORS_ORIGINS must be a list: %w", err)
		}
	} else {
		raw = strings.Split(v, ",")
	}
	out := make([]string, 0, len(raw))
	for _, o := range raw {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out, nil
}

// IsProduction reports whether Env names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks settings that must hold before serving.
func (c *Config) Validate() error {
	if c.Workflow.MaxSteps < 1 {
		return fmt.Errorf("workflow.max_steps must be positive, got %d", c.Workflow.MaxSteps)
	}
	switch c.Workflow.FailurePolicy {
	case "", "abort", "continue":
	default:
		return fmt.Errorf("workflow.failure_policy must be abort or continue, got %q", c.Workflow.FailurePolicy)
	}
	if !c.IsProduction() {
		return nil
	}
	if len(c.Auth.JWTSecret) < 32 || placeholderSecrets[c.Auth.JWTSecret] {
		return errors.New("JWT_SECRET_KEY must be at least 32 chars in production")
	}
	for _, o := range c.Server.CORSOrigins {
		if o == "*" {
			return errors.New("CORS_ORIGINS cannot contain '*' in production")
		}
	}
	return nil
}
