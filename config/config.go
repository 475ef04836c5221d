// Package config loads server configuration from an optional YAML file with
// environment overrides for secrets. A .env file is honored for local
// development; missing files are not an error.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the research server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Search   SearchConfig   `yaml:"search"`
	Research ResearchConfig `yaml:"research"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ChunkSize       int           `yaml:"chunk_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// ModelConfig selects the text generation provider. The API key always comes
// from the environment, never from the file.
type ModelConfig struct {
	Provider string `yaml:"provider"` // openai, anthropic or mock
	Name     string `yaml:"name"`     // provider-specific model name, empty for default
	APIKey   string `yaml:"-"`
}

// SearchConfig configures the web search backend. Without an API key the
// Tavily client runs in stub mode.
type SearchConfig struct {
	APIKey string `yaml:"-"`
	Depth  string `yaml:"depth"`
}

// ResearchConfig tunes the research fan-out.
type ResearchConfig struct {
	MaxConcurrency           int `yaml:"max_concurrency"`
	MaxQueriesPerSubQuestion int `yaml:"max_queries_per_sub_question"`
	MaxResultsPerQuery       int `yaml:"max_results_per_query"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ChunkSize:       500,
			ShutdownTimeout: 10 * time.Second,
		},
		Model: ModelConfig{
			Provider: "openai",
		},
		Search: SearchConfig{
			Depth: "advanced",
		},
		Research: ResearchConfig{
			MaxConcurrency:           4,
			MaxQueriesPerSubQuestion: 3,
			MaxResultsPerQuery:       3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file at path and
// environment variables (OPENAI_API_KEY, ANTHROPIC_API_KEY, TAVILY_API_KEY).
// An empty path skips the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	switch c.Model.Provider {
	case "anthropic":
		c.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	default:
		c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	c.Search.APIKey = os.Getenv("TAVILY_API_KEY")
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("unsupported model provider %q", c.Model.Provider)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Server.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Server.ChunkSize)
	}
	if c.Research.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got %d", c.Research.MaxConcurrency)
	}
	if c.Research.MaxQueriesPerSubQuestion <= 0 {
		return fmt.Errorf("max queries per sub-question must be positive, got %d", c.Research.MaxQueriesPerSubQuestion)
	}
	if c.Research.MaxResultsPerQuery <= 0 {
		return fmt.Errorf("max results per query must be positive, got %d", c.Research.MaxResultsPerQuery)
	}
	switch c.Search.Depth {
	case "basic", "advanced":
	default:
		return fmt.Errorf("search depth must be basic or advanced, got %q", c.Search.Depth)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}
