// Package config loads the guardrail CLI configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvModel     = "GUARDRAIL_MODEL"
	EnvLogDir    = "GUARDRAIL_LOG_DIR"
	EnvRedisAddr = "GUARDRAIL_REDIS_ADDR"
)

// Defaults applied to empty fields.
const (
	DefaultModel       = "claude-3-5-haiku-latest"
	DefaultMaxTokens   = 1024
	DefaultMaxRetries  = 2
	DefaultLogDir      = "results/logs"
	DefaultToolTimeout = 5 * time.Second
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

// Config is the top-level CLI configuration.
type Config struct {
	LLM   LLMConfig   `yaml:"llm"`
	Retry RetryConfig `yaml:"retry"`
	Tools ToolsConfig `yaml:"tools"`
	Audit AuditConfig `yaml:"audit"`
	Log   LogConfig   `yaml:"log"`
}

// LLMConfig selects the model used by the ask command.
type LLMConfig struct {
	Model       string   `yaml:"model"`
	MaxTokens   int64    `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
	System      string   `yaml:"system"`
	BaseURL     string   `yaml:"base_url"`
}

// RetryConfig bounds the repair loop. MaxRetries nil means the default.
type RetryConfig struct {
	MaxRetries     *int          `yaml:"max_retries"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// ToolsConfig configures the tool registry.
type ToolsConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// AuditConfig selects where audit records go. Records always go to LogDir;
// when RedisAddr is set they are also appended to RedisStream.
type AuditConfig struct {
	LogDir      string `yaml:"log_dir"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisStream string `yaml:"redis_stream"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path (if non-empty), applies environment overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvModel); ok && v != "" {
		c.LLM.Model = v
	}
	if v, ok := lookup(EnvLogDir); ok && v != "" {
		c.Audit.LogDir = v
	}
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		c.Audit.RedisAddr = v
	}
}

func (c *Config) applyDefaults() {
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModel
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = DefaultMaxTokens
	}
	if c.Retry.MaxRetries == nil {
		n := DefaultMaxRetries
		c.Retry.MaxRetries = &n
	}
	if c.Tools.Timeout == 0 {
		c.Tools.Timeout = DefaultToolTimeout
	}
	if c.Audit.LogDir == "" {
		c.Audit.LogDir = DefaultLogDir
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, errors.New("llm.max_tokens cannot be negative"))
	}
	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 1) {
		errs = append(errs, fmt.Errorf("llm.temperature %v out of range [0, 1]", *t))
	}
	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry.max_retries cannot be negative"))
	}
	if c.Retry.AttemptTimeout < 0 {
		errs = append(errs, errors.New("retry.attempt_timeout cannot be negative"))
	}
	if c.Tools.Timeout < 0 {
		errs = append(errs, errors.New("tools.timeout cannot be negative"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return lvl, nil
}

// NewLogger builds a text or JSON slog.Logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := ParseLevel(c.Log.Level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
