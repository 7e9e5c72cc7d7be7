package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/danupratama/lunasin/errors"
	"gopkg.in/yaml.v3"
)

// LLMConfig selects and tunes the completion provider. Credentials are never
// stored here; each provider reads its API key from the environment when
// first used.
type LLMConfig struct {
	// Client is one of "openai", "anthropic", "gemini", "bedrock" or "mock".
	Client         string `yaml:"client"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured completion timeout as a duration.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MCPConfig points at the remote tool-invocation endpoint. The bearer
// credential comes from the LUNASIN_MCP_API_KEY environment variable and is
// checked lazily by the protocol client, not here.
type MCPConfig struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c MCPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DatabaseConfig holds the relational store connection string. DATABASE_URL
// in the environment takes precedence over the file value.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	MCP      MCPConfig      `yaml:"mcp"`
	Database DatabaseConfig `yaml:"database"`
	LogMode  string         `yaml:"log_mode"`
}

// LoadConfig loads configuration from the user's home directory and the
// current working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LLM.TimeoutSeconds = 30
	cfg.MCP.TimeoutSeconds = 30

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".lunasin", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".lunasin", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, which gives a simple
	// merge where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}
