// LLM Provider Factory - registry-based construction of providers.
//
// Quick Start:
//
//	settings, _ := config.New()
//	registry := llm.NewRegistry(settings)
//
//	// Flag wins, then LLM_PROVIDER, then openai
//	provider, err := registry.Resolve(flagValue)
//
//	// Static default model, no network
//	model, err := registry.DefaultModelName(llm.ProviderGroq)
//
//	// Tests swap in fakes
//	registry.Register(llm.ProviderOpenAI, func(llm.ProviderConfig) llm.Provider { return fake })

package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/richinex/llmbridge/config"
	"github.com/richinex/llmbridge/internal/slogx"
	"github.com/richinex/llmbridge/session"
)

// ProviderType identifies a supported LLM backend.
type ProviderType string

const (
	// ProviderOpenAI is the OpenAI provider (default).
	ProviderOpenAI ProviderType = "openai"
	// ProviderGroq is the Groq provider (OpenAI-compatible).
	ProviderGroq ProviderType = "groq"
	// ProviderDeepSeek is the DeepSeek provider (OpenAI-compatible).
	ProviderDeepSeek ProviderType = "deepseek"
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic ProviderType = "anthropic"
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini ProviderType = "gemini"
)

// DefaultProviderType is used when neither a flag nor LLM_PROVIDER names one.
const DefaultProviderType = ProviderOpenAI

// String returns the provider identifier.
func (p ProviderType) String() string {
	return string(p)
}

// Default model identifiers per provider.
const (
	ModelOpenAIO4Mini         = "o4-mini"
	ModelOpenAIO3             = "o3"
	ModelGroqLlama33Versatile = "llama-3.3-70b-versatile"
	ModelDeepSeekChat         = "deepseek-chat"
	ModelAnthropicSonnet4     = "claude-sonnet-4-20250514"
	ModelGeminiFlash25        = "gemini-2.5-flash"
)

// ErrUnknownProvider is matched by errors.Is for every UnknownProviderError.
var ErrUnknownProvider = errors.New("unknown provider")

// UnknownProviderError reports a provider identifier that is not registered.
type UnknownProviderError struct {
	Provider  string
	Available []string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider: %q (available: %s)", e.Provider, strings.Join(e.Available, ", "))
}

func (e *UnknownProviderError) Unwrap() error {
	return ErrUnknownProvider
}

// ProviderConfig is the per-instance configuration handed to a constructor.
type ProviderConfig struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens uint32
	Headers   map[string]string
}

// Constructor builds a provider from its configuration. Constructors must
// not perform network I/O.
type Constructor func(cfg ProviderConfig) Provider

func builtinConstructors() map[ProviderType]Constructor {
	return map[ProviderType]Constructor{
		ProviderOpenAI:    func(cfg ProviderConfig) Provider { return NewOpenAIProvider(cfg) },
		ProviderGroq:      func(cfg ProviderConfig) Provider { return NewGroqProvider(cfg) },
		ProviderDeepSeek:  func(cfg ProviderConfig) Provider { return NewDeepSeekProvider(cfg) },
		ProviderAnthropic: func(cfg ProviderConfig) Provider { return NewAnthropicProvider(cfg) },
		ProviderGemini:    func(cfg ProviderConfig) Provider { return NewGeminiProvider(cfg) },
	}
}

// ResolveProviderType picks the provider from a CLI flag and the
// LLM_PROVIDER value, against the built-in providers. The flag wins when
// non-empty; with neither set the default is openai.
func ResolveProviderType(flag, env string) (ProviderType, error) {
	builtin := builtinConstructors()
	return resolveType(flag, env, func(p ProviderType) bool {
		_, ok := builtin[p]
		return ok
	}, func() []string {
		return sortedNames(builtin)
	})
}

func resolveType(flag, env string, known func(ProviderType) bool, available func() []string) (ProviderType, error) {
	raw := strings.TrimSpace(flag)
	if raw == "" {
		raw = strings.TrimSpace(env)
	}
	if raw == "" {
		slog.Debug("no provider specified, using default", slogx.Provider(DefaultProviderType.String()))
		return DefaultProviderType, nil
	}

	id := ProviderType(config.NormalizeProvider(raw))
	if !known(id) {
		return "", &UnknownProviderError{Provider: raw, Available: available()}
	}
	return id, nil
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithGetenv replaces the environment lookup used for LLM_PROVIDER.
func WithGetenv(getenv func(string) string) RegistryOption {
	return func(r *Registry) {
		r.getenv = getenv
	}
}

// Registry maps provider identifiers to constructors and builds a fresh
// provider instance on every resolution. Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	constructors map[ProviderType]Constructor
	settings     config.Settings
	getenv       func(string) string
}

// NewRegistry creates a registry holding the built-in providers, configured
// from settings.
func NewRegistry(settings config.Settings, opts ...RegistryOption) *Registry {
	r := &Registry{
		constructors: builtinConstructors(),
		settings:     settings,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces the constructor for id.
func (r *Registry) Register(id ProviderType, constructor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[id] = constructor
}

// Providers returns the registered identifiers in sorted order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedNames(r.constructors)
}

// ResolveType resolves the provider identifier for a flag value, falling
// back to LLM_PROVIDER and then the default.
func (r *Registry) ResolveType(flag string) (ProviderType, error) {
	return resolveType(flag, r.envProvider(), func(p ProviderType) bool {
		r.mu.RLock()
		defer r.mu.RUnlock()
		_, ok := r.constructors[p]
		return ok
	}, r.Providers)
}

// Resolve returns a new provider instance for the flag value.
func (r *Registry) Resolve(flag string) (Provider, error) {
	id, err := r.ResolveType(flag)
	if err != nil {
		return nil, err
	}
	return r.New(id)
}

// New builds a provider instance for a resolved identifier.
func (r *Registry) New(id ProviderType) (Provider, error) {
	r.mu.RLock()
	constructor, ok := r.constructors[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownProviderError{Provider: id.String(), Available: r.Providers()}
	}
	return constructor(r.providerConfig(id)), nil
}

// DefaultModelName returns the static default model of a provider. It
// builds an instance but performs no network I/O.
func (r *Registry) DefaultModelName(id ProviderType) (string, error) {
	provider, err := r.New(id)
	if err != nil {
		return "", err
	}
	return provider.DefaultModel(), nil
}

// ConfiguredModel returns the model configured for id (the *_MODEL value),
// or "" when none is set.
func (r *Registry) ConfiguredModel(id ProviderType) string {
	return r.settings.ProviderSettings(id.String()).Model
}

func (r *Registry) envProvider() string {
	if r.getenv != nil {
		return r.getenv("LLM_PROVIDER")
	}
	if r.settings.Provider != "" {
		return r.settings.Provider
	}
	return os.Getenv("LLM_PROVIDER")
}

func (r *Registry) providerConfig(id ProviderType) ProviderConfig {
	ps := r.settings.ProviderSettings(id.String())
	return ProviderConfig{
		APIKey:    ps.APIKey,
		BaseURL:   ps.BaseURL,
		Timeout:   ps.Timeout,
		MaxTokens: r.settings.MaxTokens,
		Headers:   session.Headers(),
	}
}

func sortedNames(constructors map[ProviderType]Constructor) []string {
	names := make([]string, 0, len(constructors))
	for id := range constructors {
		names = append(names, id.String())
	}
	sort.Strings(names)
	return names
}
