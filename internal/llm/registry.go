package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/soyeahso/huddle/internal/config"
	"github.com/soyeahso/huddle/internal/domain"
	"github.com/soyeahso/huddle/internal/logging"
)

// Factory builds a client for a fully resolved model config.
type Factory func(mc domain.ModelConfig) (Client, error)

// Registry resolves agent model configs to provider clients. Providers are
// registered either as a fixed client or as a factory; factory-built
// clients are cached per provider, model, endpoint, and key.
type Registry struct {
	mu        sync.RWMutex
	clients   map[string]Client  // provider name → fixed client
	factories map[string]Factory // provider name → factory
	cache     map[string]Client
	aliases   map[string]string // provider or model alias → provider name
	defaults  map[string]config.ModelProviderEntry
	fallback  string
	log       *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients:   make(map[string]Client),
		factories: make(map[string]Factory),
		cache:     make(map[string]Client),
		aliases:   make(map[string]string),
		defaults:  make(map[string]config.ModelProviderEntry),
		log:       log.Sub("llm.registry"),
	}
}

// Register adds a fixed client under the given provider name. A fixed
// client serves every model routed to that provider.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered model provider")
}

// RegisterFactory adds a factory under the given provider name.
func (r *Registry) RegisterFactory(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	r.log.Debug().Str("provider", name).Msg("registered model provider factory")
}

// SetDefaults records the credentials and endpoint used when a model config
// for the provider leaves them empty.
func (r *Registry) SetDefaults(provider string, entry config.ModelProviderEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[provider] = entry
}

// Alias maps a provider or model alias to a provider.
// e.g., Alias("sonnet", "anthropic") means "sonnet" resolves to the anthropic provider.
func (r *Registry) Alias(alias, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = provider
}

// SetFallback sets the provider used when no provider or alias matches.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Client for the given model config.
// Resolution order: provider name → provider alias → model alias → fallback.
func (r *Registry) Resolve(mc domain.ModelConfig) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider := r.providerFor(mc)
	if provider == "" {
		return nil, fmt.Errorf("no model provider for %q/%q", mc.Provider, mc.Name)
	}

	if c, ok := r.clients[provider]; ok {
		return c, nil
	}

	f, ok := r.factories[provider]
	if !ok {
		return nil, fmt.Errorf("no model provider for %q/%q", mc.Provider, mc.Name)
	}

	resolved := mc
	resolved.Provider = provider
	if d, ok := r.defaults[provider]; ok {
		if resolved.APIKey == "" {
			resolved.APIKey = d.APIKey
		}
		if resolved.BaseURL == "" {
			resolved.BaseURL = d.BaseURL
		}
		if resolved.Name == "" {
			resolved.Name = d.DefaultModel
		}
	}

	key := strings.Join([]string{provider, resolved.Name, resolved.BaseURL, resolved.APIKey}, "\x00")
	if c, ok := r.cache[key]; ok {
		return c, nil
	}

	c, err := f(resolved)
	if err != nil {
		return nil, fmt.Errorf("building %s client: %w", provider, err)
	}
	r.cache[key] = c
	return c, nil
}

// MaxTokens returns the configured output cap for a provider, or 0.
func (r *Registry) MaxTokens(mc domain.ModelConfig) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults[r.providerFor(mc)].MaxTokens
}

// providerFor maps a model config to a registered provider name. Callers hold the lock.
func (r *Registry) providerFor(mc domain.ModelConfig) string {
	known := func(name string) bool {
		_, fixed := r.clients[name]
		_, built := r.factories[name]
		return fixed || built
	}

	p := strings.ToLower(strings.TrimSpace(mc.Provider))
	if p != "" {
		if known(p) {
			return p
		}
		if alias, ok := r.aliases[p]; ok && known(alias) {
			return alias
		}
	}
	if alias, ok := r.aliases[mc.Name]; ok && known(alias) {
		return alias
	}
	if r.fallback != "" && known(r.fallback) {
		return r.fallback
	}
	return ""
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(r.clients)+len(r.factories))
	for n := range r.clients {
		seen[n] = true
	}
	for n := range r.factories {
		seen[n] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig builds a Registry with the HTTP providers and the
// per-provider defaults from config. The fallback is the first configured
// provider in anthropic, gemini, ollama order.
func NewRegistryFromConfig(cfg config.ModelsConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	reg.RegisterFactory("anthropic", func(mc domain.ModelConfig) (Client, error) {
		if mc.APIKey == "" {
			return nil, fmt.Errorf("anthropic: api key is required")
		}
		return NewClaudeAPIClient(mc.APIKey, mc.Name, mc.BaseURL), nil
	})
	for _, alias := range []string{"claude", "sonnet", "opus", "haiku"} {
		reg.Alias(alias, "anthropic")
	}

	reg.RegisterFactory("gemini", func(mc domain.ModelConfig) (Client, error) {
		if mc.APIKey == "" {
			return nil, fmt.Errorf("gemini: api key is required")
		}
		return NewGeminiAPIClient(mc.APIKey, mc.Name, mc.BaseURL), nil
	})
	for _, alias := range []string{"google", "gemini-pro"} {
		reg.Alias(alias, "gemini")
	}

	reg.RegisterFactory("ollama", func(mc domain.ModelConfig) (Client, error) {
		return NewOllamaAPIClient(mc.BaseURL, mc.Name), nil
	})
	for _, alias := range []string{"llama", "llama3", "mistral"} {
		reg.Alias(alias, "ollama")
	}

	for name, entry := range cfg.Providers {
		canonical := strings.ToLower(name)
		if alias, ok := reg.aliases[canonical]; ok {
			canonical = alias
		}
		reg.SetDefaults(canonical, entry)
	}

	for _, p := range []string{"anthropic", "gemini", "ollama"} {
		if _, ok := reg.defaults[p]; ok {
			reg.SetFallback(p)
			break
		}
	}

	return reg
}
