package config

import (
	"time"

	"github.com/soyeahso/huddle/internal/domain"
)

// Config is the root configuration for huddle.
type Config struct {
	Gateway      GatewayConfig      `yaml:"gateway,omitempty"`
	Models       ModelsConfig       `yaml:"models,omitempty"`
	Agents       AgentsConfig       `yaml:"agents,omitempty"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator,omitempty"`
	Store        StoreConfig        `yaml:"store,omitempty"`
	Credits      CreditsConfig      `yaml:"credits,omitempty"`
	Relay        RelayConfig        `yaml:"relay,omitempty"`
	Logging      LoggingConfig      `yaml:"logging,omitempty"`
	Hooks        HooksConfig        `yaml:"hooks,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Token string `yaml:"token,omitempty"`
}

// ModelsConfig holds per-provider defaults used when an agent's model
// config leaves credentials or endpoints empty.
type ModelsConfig struct {
	Providers map[string]ModelProviderEntry `yaml:"providers,omitempty"`
}

// ModelProviderEntry defines a model provider.
type ModelProviderEntry struct {
	BaseURL      string `yaml:"baseUrl,omitempty"`
	APIKey       string `yaml:"apiKey,omitempty"`
	DefaultModel string `yaml:"defaultModel,omitempty"`
	MaxTokens    int    `yaml:"maxTokens,omitempty"`
}

// AgentsConfig lists inline agents and an optional shared catalog file.
type AgentsConfig struct {
	Catalog string                   `yaml:"catalog,omitempty"`
	Watch   bool                     `yaml:"watch,omitempty"` // hot reload the catalog file
	List    []domain.AgentDescriptor `yaml:"list,omitempty"`
}

// OrchestratorConfig tunes the turn loop.
type OrchestratorConfig struct {
	MaxTurns         int                `yaml:"maxTurns,omitempty"`
	HistoryWindow    int                `yaml:"historyWindow,omitempty"`
	SupervisorWindow int                `yaml:"supervisorWindow,omitempty"`
	EndSignalWindow  int                `yaml:"endSignalWindow,omitempty"`
	StreamDelay      time.Duration      `yaml:"streamDelay,omitempty"`
	CallTimeout      time.Duration      `yaml:"callTimeout,omitempty"`
	Coordinator      domain.ModelConfig `yaml:"coordinator,omitempty"`
}

// StoreConfig selects the transcript/agent/usage backend.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`
}

// CreditsConfig bounds model usage per user. Zero means unlimited.
type CreditsConfig struct {
	TokenBudget int64 `yaml:"tokenBudget,omitempty"`
}

// RelayConfig configures spectator relays.
type RelayConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines the IRC relay connection.
type IRCConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port,omitempty"`
	Nick     string `yaml:"nick"`
	Password string `yaml:"password,omitempty"`
	Channel  string `yaml:"channel"`
	UseTLS   bool   `yaml:"useTLS,omitempty"`
	SASL     bool   `yaml:"sasl,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// HooksConfig defines shell commands run on conversation lifecycle events.
type HooksConfig struct {
	ConversationStart []HookEntry `yaml:"conversationStart,omitempty"`
	TurnCommitted     []HookEntry `yaml:"turnCommitted,omitempty"`
	ConversationEnd   []HookEntry `yaml:"conversationEnd,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
