// ABOUTME: Tests for configuration loading, defaults, and validation
// ABOUTME: Covers env var expansion and duration parsing

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/test.db"
auth:
  jwt_secret: "secret"
  token_ttl: "24h"
orchestrator:
  grpc_addr: "localhost:50051"
  request_timeout: "30s"
chat:
  heartbeat_interval: "5s"
  guest_session_ttl: "6h"
  history_limit: 20
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "localhost:50051", cfg.Orchestrator.GRPCAddr)
	assert.Equal(t, 30*time.Second, cfg.Orchestrator.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Chat.HeartbeatInterval)
	assert.Equal(t, 6*time.Hour, cfg.Chat.GuestSessionTTL)
	assert.Equal(t, 20, cfg.Chat.HistoryLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/test.db"
orchestrator:
  base_url: "http://localhost:3000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultCookieName, cfg.Auth.CookieName)
	assert.Equal(t, DefaultTokenTTL, cfg.Auth.TokenTTL)
	assert.Equal(t, DefaultTestOTP, cfg.Auth.TestOTP)
	assert.False(t, cfg.Auth.AllowTestOTP, "test OTP bypass must be off by default")
	assert.Equal(t, DefaultHeartbeatInterval, cfg.Chat.HeartbeatInterval)
	assert.Equal(t, DefaultGuestSessionTTL, cfg.Chat.GuestSessionTTL)
	assert.Equal(t, DefaultHistoryLimit, cfg.Chat.HistoryLimit)
	assert.Equal(t, DefaultRequestTimeout, cfg.Orchestrator.RequestTimeout)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "from-env")

	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/test.db"
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
orchestrator:
  base_url: "http://localhost:3000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/test.db"
orchestrator:
  base_url: "http://localhost:3000"
chat:
  heartbeat_interval: "not-a-duration"
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "heartbeat_interval")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing http addr",
			mutate:  func(c *Config) { c.Server.HTTPAddr = "" },
			wantErr: "http_addr",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name: "missing orchestrator endpoint",
			mutate: func(c *Config) {
				c.Orchestrator.GRPCAddr = ""
				c.Orchestrator.BaseURL = ""
			},
			wantErr: "orchestrator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server:       ServerConfig{HTTPAddr: "localhost:8080"},
				Database:     DatabaseConfig{Path: "/tmp/test.db"},
				Orchestrator: OrchestratorConfig{GRPCAddr: "localhost:50051"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
