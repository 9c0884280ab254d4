package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/soyeahso/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 18790, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Orchestrator.MaxTurns)
	assert.Equal(t, 30, cfg.Orchestrator.HistoryWindow)
	assert.Equal(t, 5, cfg.Orchestrator.SupervisorWindow)
	assert.Equal(t, 3, cfg.Orchestrator.EndSignalWindow)
	assert.Equal(t, time.Second, cfg.Orchestrator.StreamDelay)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 18790, cfg.Gateway.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-from-env")

	yaml := `
gateway:
  port: 9999
  bind: lan
  auth:
    token: secret123
models:
  providers:
    anthropic:
      apiKey: ${TEST_ANTHROPIC_KEY}
      defaultModel: claude-3-5-haiku-latest
agents:
  list:
    - id: historian
      name: Ada
      role: Historian
      expertise: history and archives
      style:
        friendliness: warm
        length: short
      model:
        provider: anthropic
        name: claude-3-5-sonnet-latest
    - id: skeptic
      name: Bo
      model:
        provider: ollama
        name: llama3
orchestrator:
  maxTurns: 6
  streamDelay: 250ms
  coordinator:
    provider: ollama
    name: llama3
store:
  driver: memory
credits:
  tokenBudget: 50000
logging:
  level: debug
  consoleStyle: json
relay:
  irc:
    server: irc.libera.chat
    port: 6697
    nick: huddlebot
    channel: "#huddle"
    useTLS: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "lan", cfg.Gateway.Bind)
	assert.Equal(t, "secret123", cfg.Gateway.Auth.Token)
	assert.Equal(t, "sk-from-env", cfg.Models.Providers["anthropic"].APIKey)

	require.Len(t, cfg.Agents.List, 2)
	assert.Equal(t, "historian", cfg.Agents.List[0].ID)
	assert.Equal(t, "history and archives", cfg.Agents.List[0].Expertise)
	assert.Equal(t, domain.FriendlinessWarm, cfg.Agents.List[0].Style.Friendliness)
	assert.Equal(t, "llama3", cfg.Agents.List[1].Model.Name)

	assert.Equal(t, 6, cfg.Orchestrator.MaxTurns)
	assert.Equal(t, 250*time.Millisecond, cfg.Orchestrator.StreamDelay)
	assert.Equal(t, 30, cfg.Orchestrator.HistoryWindow, "unset window falls back to default")
	assert.Equal(t, "ollama", cfg.Orchestrator.Coordinator.Provider)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, int64(50000), cfg.Credits.TokenBudget)
	assert.Equal(t, "debug", cfg.Logging.Level)

	require.NotNil(t, cfg.Relay.IRC)
	assert.Equal(t, "irc.libera.chat", cfg.Relay.IRC.Server)
	assert.Equal(t, "#huddle", cfg.Relay.IRC.Channel)
	assert.True(t, cfg.Relay.IRC.UseTLS)

	assert.Empty(t, Validate(&cfg))
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HUDDLE_GATEWAY_PORT", "12345")
	t.Setenv("HUDDLE_GATEWAY_TOKEN", "tok")
	t.Setenv("HUDDLE_STORE_PATH", "/tmp/h.db")
	t.Setenv("HUDDLE_LOG_LEVEL", "TRACE")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Gateway.Port)
	assert.Equal(t, "tok", cfg.Gateway.Auth.Token)
	assert.Equal(t, "/tmp/h.db", cfg.Store.Path)
	assert.Equal(t, "trace", cfg.Logging.Level)
}

func TestExpandEnvVarsLeavesUnsetVariables(t *testing.T) {
	t.Setenv("HUDDLE_TEST_SET", "value")
	assert.Equal(t, "value-${HUDDLE_TEST_UNSET}", expandEnvVars("${HUDDLE_TEST_SET}-${HUDDLE_TEST_UNSET}"))
}
