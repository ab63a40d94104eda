// ABOUTME: Configuration loading and parsing for chat-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when the config file leaves a field unset.
const (
	DefaultCookieName        = "auth_token"
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultGuestSessionTTL   = 12 * time.Hour
	DefaultTokenTTL          = 7 * 24 * time.Hour
	DefaultHistoryLimit      = 10
	DefaultRequestTimeout    = 60 * time.Second
	DefaultTestOTP           = "1234"
)

// Config represents the complete chat-gateway configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Auth         AuthConfig         `yaml:"auth"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Chat         ChatConfig         `yaml:"chat"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	CookieName string `yaml:"cookie_name"`

	// AllowTestOTP enables the fixed test OTP and the last-4-digits
	// shortcut during OTP verification. Never enable in production.
	AllowTestOTP bool   `yaml:"allow_test_otp"`
	TestOTP      string `yaml:"test_otp"`

	TokenTTL    time.Duration `yaml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl"`
}

// OrchestratorConfig holds orchestrator endpoint configuration.
// A non-empty GRPCAddr selects the gRPC streaming transport; otherwise
// the chunked-HTTP transport is used against BaseURL.
type OrchestratorConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	BaseURL  string `yaml:"base_url"`

	RequestTimeout    time.Duration `yaml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout"`
}

// ChatConfig holds streaming and session lifecycle configuration
type ChatConfig struct {
	HistoryLimit int `yaml:"history_limit"`

	// DebugErrors includes raw error text and trace ids in client-facing
	// error events instead of sanitized categories.
	DebugErrors bool `yaml:"debug_errors"`

	HeartbeatInterval    time.Duration `yaml:"-"`
	GuestSessionTTL      time.Duration `yaml:"-"`
	HeartbeatIntervalRaw string        `yaml:"heartbeat_interval"`
	GuestSessionTTLRaw   string        `yaml:"guest_session_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills in default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = DefaultCookieName
	}
	if c.Auth.TestOTP == "" {
		c.Auth.TestOTP = DefaultTestOTP
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Orchestrator.RequestTimeout == 0 {
		c.Orchestrator.RequestTimeout = DefaultRequestTimeout
	}
	if c.Chat.HeartbeatInterval == 0 {
		c.Chat.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Chat.GuestSessionTTL == 0 {
		c.Chat.GuestSessionTTL = DefaultGuestSessionTTL
	}
	if c.Chat.HistoryLimit == 0 {
		c.Chat.HistoryLimit = DefaultHistoryLimit
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Orchestrator.GRPCAddr == "" && c.Orchestrator.BaseURL == "" {
		return fmt.Errorf("orchestrator.grpc_addr or orchestrator.base_url is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func (c *Config) parseDurations() error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{c.Auth.TokenTTLRaw, &c.Auth.TokenTTL, "auth.token_ttl"},
		{c.Orchestrator.RequestTimeoutRaw, &c.Orchestrator.RequestTimeout, "orchestrator.request_timeout"},
		{c.Chat.HeartbeatIntervalRaw, &c.Chat.HeartbeatInterval, "chat.heartbeat_interval"},
		{c.Chat.GuestSessionTTLRaw, &c.Chat.GuestSessionTTL, "chat.guest_session_ttl"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
