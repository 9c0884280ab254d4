package config

import (
	"testing"
	"time"

	"github.com/soyeahso/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Issues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"negative port", func(c *Config) { c.Gateway.Port = -1 }, "gateway.port"},
		{"port too high", func(c *Config) { c.Gateway.Port = 70000 }, "gateway.port"},
		{"bad bind", func(c *Config) { c.Gateway.Bind = "tailnet" }, "gateway.bind"},
		{"custom bind without host", func(c *Config) { c.Gateway.Bind = "custom" }, "gateway.customBindHost"},
		{"unknown provider", func(c *Config) {
			c.Models.Providers = map[string]ModelProviderEntry{"openai": {}}
		}, "models.providers.openai"},
		{"agent without id", func(c *Config) {
			c.Agents.List = []domain.AgentDescriptor{{Name: "nameless"}}
		}, "agents.list[0].id"},
		{"duplicate agent", func(c *Config) {
			c.Agents.List = []domain.AgentDescriptor{{ID: "a"}, {ID: "a"}}
		}, "agents.list[1].id"},
		{"agent provider", func(c *Config) {
			c.Agents.List = []domain.AgentDescriptor{{ID: "a", Model: domain.ModelConfig{Provider: "copilot"}}}
		}, "agents.list[0].model.provider"},
		{"negative max turns", func(c *Config) { c.Orchestrator.MaxTurns = -2 }, "orchestrator.maxTurns"},
		{"negative window", func(c *Config) { c.Orchestrator.HistoryWindow = -1 }, "orchestrator"},
		{"negative delay", func(c *Config) { c.Orchestrator.StreamDelay = -time.Second }, "orchestrator"},
		{"coordinator provider", func(c *Config) { c.Orchestrator.Coordinator.Provider = "x" }, "orchestrator.coordinator.provider"},
		{"store driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"negative budget", func(c *Config) { c.Credits.TokenBudget = -1 }, "credits.tokenBudget"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"console style", func(c *Config) { c.Logging.ConsoleStyle = "compact" }, "logging.consoleStyle"},
		{"irc without server", func(c *Config) {
			c.Relay.IRC = &IRCConfig{Nick: "bot", Channel: "#c"}
		}, "relay.irc.server"},
		{"irc without channel", func(c *Config) {
			c.Relay.IRC = &IRCConfig{Server: "irc", Nick: "bot"}
		}, "relay.irc.channel"},
		{"irc sasl without password", func(c *Config) {
			c.Relay.IRC = &IRCConfig{Server: "irc", Nick: "bot", Channel: "#c", SASL: true}
		}, "relay.irc.sasl"},
		{"hook without command", func(c *Config) {
			c.Hooks.ConversationEnd = []HookEntry{{Timeout: 10}}
		}, "hooks.conversationEnd[0].command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			issues := Validate(&cfg)
			if assert.Len(t, issues, 1) {
				assert.Equal(t, tt.path, issues[0].Path)
				assert.NotEmpty(t, issues[0].String())
			}
		})
	}
}

func TestValidate_ProviderAliasesAccepted(t *testing.T) {
	for _, p := range []string{"anthropic", "claude", "gemini", "google", "ollama"} {
		cfg := Defaults()
		cfg.Agents.List = []domain.AgentDescriptor{{ID: "a", Model: domain.ModelConfig{Provider: p}}}
		assert.Empty(t, Validate(&cfg), "provider %q should be valid", p)
	}
}
