// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Agent      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Translator TranslatorConfig `mapstructure:"translator" yaml:"translator"`
	Capture    CaptureConfig    `mapstructure:"capture" yaml:"capture"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig holds the audit-store connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// EngineProvider identifies a reasoning-engine transport implementation.
type EngineProvider string

const (
	// ProviderMiniMax is the chatcompletion_v2-style HTTP endpoint.
	ProviderMiniMax EngineProvider = "minimax"
)

// EngineConfig configures the reasoning-engine transport.
type EngineConfig struct {
	Provider EngineProvider `mapstructure:"provider" yaml:"provider"`
	Model    string         `mapstructure:"model" yaml:"model"`
	APIKey   string         `mapstructure:"api_key" yaml:"-"`
	BaseURL  string         `mapstructure:"base_url" yaml:"base_url"`
	// UseStub forces the deterministic local decisions even when an API key
	// is configured. The stub is also used whenever the key is missing.
	UseStub       bool          `mapstructure:"use_stub" yaml:"use_stub"`
	DecideTimeout time.Duration `mapstructure:"decide_timeout" yaml:"decide_timeout"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
	MaxTokens     int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// Stubbed reports whether the local stub should replace the live engine.
func (e EngineConfig) Stubbed() bool {
	return e.UseStub || e.APIKey == ""
}

// AgentConfig groups the reasoning-engine settings.
type AgentConfig struct {
	Engine EngineConfig `mapstructure:"engine" yaml:"engine"`
}

// SessionConfig holds the per-session loop defaults.
type SessionConfig struct {
	// MaxSteps is the default step budget; the engine's first-step plan
	// length may revise it (floored at 2).
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
}

// TranslatorConfig locates the translation rule file.
type TranslatorConfig struct {
	RulesFile string `mapstructure:"rules_file" yaml:"rules_file"`
}

// CaptureConfig holds snapshot settings.
type CaptureConfig struct {
	ScreenshotsDir string `mapstructure:"screenshots_dir" yaml:"screenshots_dir"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "tasker-cli")
	v.SetDefault("logger.log_file", "tasker.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Database --
	v.SetDefault("database.url", "")

	// -- Agent / Engine --
	v.SetDefault("agent.engine.provider", "minimax")
	v.SetDefault("agent.engine.model", "MiniMax-M2.1")
	v.SetDefault("agent.engine.base_url", "https://api.minimax.io")
	v.SetDefault("agent.engine.use_stub", false)
	v.SetDefault("agent.engine.decide_timeout", "60s")
	v.SetDefault("agent.engine.verify_timeout", "30s")
	v.SetDefault("agent.engine.max_tokens", 1024)

	// -- Session --
	v.SetDefault("session.max_steps", 10)

	// -- Translator --
	v.SetDefault("translator.rules_file", "data/task_translator_rules.json")

	// -- Capture --
	v.SetDefault("capture.screenshots_dir", "data/screenshots")
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("agent.engine.api_key", "TASKER_ENGINE_API_KEY")
	v.BindEnv("database.url", "TASKER_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Session.MaxSteps <= 0 {
		return fmt.Errorf("session.max_steps must be a positive integer")
	}
	if c.Agent.Engine.DecideTimeout <= 0 || c.Agent.Engine.VerifyTimeout <= 0 {
		return fmt.Errorf("agent.engine timeouts must be positive durations")
	}
	if !c.Agent.Engine.Stubbed() && c.Agent.Engine.BaseURL == "" {
		return fmt.Errorf("agent.engine.base_url is required when the live engine is enabled")
	}
	return nil
}
