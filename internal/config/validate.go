package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// knownProviders are the provider names (and aliases) the model registry understands.
var knownProviders = []string{"anthropic", "claude", "gemini", "google", "ollama"}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "required when bind is custom",
		})
	}

	for name := range cfg.Models.Providers {
		if !slices.Contains(knownProviders, name) {
			issues = append(issues, ValidationIssue{
				Path:    "models.providers." + name,
				Message: fmt.Sprintf("unknown provider, must be one of %v", knownProviders),
			})
		}
	}

	seen := make(map[string]bool, len(cfg.Agents.List))
	for i, a := range cfg.Agents.List {
		path := fmt.Sprintf("agents.list[%d]", i)
		if a.ID == "" {
			issues = append(issues, ValidationIssue{Path: path + ".id", Message: "id is required"})
			continue
		}
		if seen[a.ID] {
			issues = append(issues, ValidationIssue{Path: path + ".id", Message: fmt.Sprintf("duplicate agent id %q", a.ID)})
		}
		seen[a.ID] = true
		if a.Model.Provider != "" && !slices.Contains(knownProviders, a.Model.Provider) {
			issues = append(issues, ValidationIssue{
				Path:    path + ".model.provider",
				Message: fmt.Sprintf("must be one of %v, got %q", knownProviders, a.Model.Provider),
			})
		}
	}

	o := cfg.Orchestrator
	if o.MaxTurns < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "orchestrator.maxTurns",
			Message: fmt.Sprintf("must not be negative, got %d", o.MaxTurns),
		})
	}
	if o.HistoryWindow < 0 || o.SupervisorWindow < 0 || o.EndSignalWindow < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "orchestrator",
			Message: "window sizes must not be negative",
		})
	}
	if o.StreamDelay < 0 || o.CallTimeout < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "orchestrator",
			Message: "durations must not be negative",
		})
	}
	if o.Coordinator.Provider != "" && !slices.Contains(knownProviders, o.Coordinator.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "orchestrator.coordinator.provider",
			Message: fmt.Sprintf("must be one of %v, got %q", knownProviders, o.Coordinator.Provider),
		})
	}

	validDrivers := []string{"sqlite", "memory"}
	if cfg.Store.Driver != "" && !slices.Contains(validDrivers, cfg.Store.Driver) {
		issues = append(issues, ValidationIssue{
			Path:    "store.driver",
			Message: fmt.Sprintf("must be one of %v, got %q", validDrivers, cfg.Store.Driver),
		})
	}

	if cfg.Credits.TokenBudget < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "credits.tokenBudget",
			Message: "must not be negative",
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}
	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	if cfg.Relay.IRC != nil {
		irc := cfg.Relay.IRC
		if irc.Server == "" {
			issues = append(issues, ValidationIssue{Path: "relay.irc.server", Message: "server is required"})
		}
		if irc.Nick == "" {
			issues = append(issues, ValidationIssue{Path: "relay.irc.nick", Message: "nick is required"})
		}
		if irc.Channel == "" {
			issues = append(issues, ValidationIssue{Path: "relay.irc.channel", Message: "channel is required"})
		}
		if irc.Port < 0 || irc.Port > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "relay.irc.port",
				Message: fmt.Sprintf("port must be 0-65535, got %d", irc.Port),
			})
		}
		if irc.SASL && irc.Password == "" {
			issues = append(issues, ValidationIssue{
				Path:    "relay.irc.sasl",
				Message: "SASL requires a password to be set",
			})
		}
	}

	for event, entries := range map[string][]HookEntry{
		"hooks.conversationStart": cfg.Hooks.ConversationStart,
		"hooks.turnCommitted":     cfg.Hooks.TurnCommitted,
		"hooks.conversationEnd":   cfg.Hooks.ConversationEnd,
	} {
		for i, h := range entries {
			if h.Command == "" {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("%s[%d].command", event, i),
					Message: "command is required",
				})
			}
		}
	}

	return issues
}
