// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process-level configuration. Every field has a working
// default; API keys are only needed when the corresponding LLM provider is
// registered.
type Config struct {
	AnthropicAPIKey string `env:"AGENTICREALM_ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"AGENTICREALM_OPENAI_API_KEY"`

	TickInterval      time.Duration `env:"AGENTICREALM_TICK_INTERVAL" envDefault:"1s"`
	DispatchTimeout   time.Duration `env:"AGENTICREALM_DISPATCH_TIMEOUT" envDefault:"8s"`
	AutonomousCadence uint64        `env:"AGENTICREALM_AUTONOMOUS_CADENCE" envDefault:"30"`

	// DatabasePath is the SQLite file for instance persistence; empty keeps
	// everything in memory.
	DatabasePath string `env:"AGENTICREALM_DB_PATH"`

	// TemplateDir holds extra YAML templates loaded at startup, in addition
	// to the built-ins.
	TemplateDir string `env:"AGENTICREALM_TEMPLATE_DIR"`

	LogLevel  string `env:"AGENTICREALM_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"AGENTICREALM_LOG_FORMAT" envDefault:"text"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("config: tick interval must be positive")
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("config: dispatch timeout must be positive")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	return nil
}
