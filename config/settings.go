// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup
//
// Load() applies an optional YAML file on top of the environment.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultProvider is used when neither a flag nor LLM_PROVIDER names one.
const DefaultProvider = "openai"

// Settings holds all application configuration.
type Settings struct {
	// Provider is the raw LLM_PROVIDER value (or the file's provider key).
	// Empty means "use the default"; resolution happens in the llm registry.
	Provider  string
	MaxTokens uint32
	SessionID string
	DBPath    string
	LogLevel  string
	Providers map[string]ProviderSettings
}

// ProviderSettings holds connection settings for one backend.
type ProviderSettings struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Model   string
}

// providerInfo holds the environment layout for a specific LLM provider.
type providerInfo struct {
	prefix         string
	defaultBaseURL string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI", "https://api.openai.com/v1"},
	"groq":      {"GROQ", "https://api.groq.com/openai/v1"},
	"deepseek":  {"DEEPSEEK", "https://api.deepseek.com/v1"},
	"anthropic": {"ANTHROPIC", "https://api.anthropic.com"},
	"gemini":    {"GEMINI", ""},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

const defaultTimeout = 60 * time.Second

// New creates settings from environment variables.
// Returns an error if an environment variable contains an invalid value.
func New() (Settings, error) {
	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}

	dbPath := os.Getenv("LLMBRIDGE_DB")
	if dbPath == "" {
		dbPath = filepath.Join(".llmbridge", "transcripts.db")
	}

	settings := Settings{
		Provider:  strings.TrimSpace(os.Getenv("LLM_PROVIDER")),
		MaxTokens: maxTokens,
		SessionID: os.Getenv("LLMBRIDGE_SESSION_ID"),
		DBPath:    dbPath,
		LogLevel:  os.Getenv("LLMBRIDGE_LOG_LEVEL"),
		Providers: make(map[string]ProviderSettings, len(providers)),
	}

	for name, info := range providers {
		timeout, err := getEnvDurationMS(info.prefix+"_TIMEOUT_MS", defaultTimeout)
		if err != nil {
			return Settings{}, err
		}
		baseURL := os.Getenv(info.prefix + "_BASE_URL")
		if baseURL == "" {
			baseURL = info.defaultBaseURL
		}
		settings.Providers[name] = ProviderSettings{
			APIKey:  os.Getenv(info.prefix + "_API_KEY"),
			BaseURL: baseURL,
			Timeout: timeout,
			Model:   os.Getenv(info.prefix + "_MODEL"),
		}
	}

	return settings, nil
}

// fileConfig mirrors the optional YAML configuration file.
type fileConfig struct {
	Provider  string                        `yaml:"provider"`
	MaxTokens uint32                        `yaml:"max_tokens"`
	Providers map[string]fileProviderConfig `yaml:"providers"`
}

type fileProviderConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
	Model     string `yaml:"model"`
}

// Load reads settings from the environment, then applies the YAML file at
// path on top. An empty path is equivalent to New().
func Load(path string) (Settings, error) {
	settings, err := New()
	if err != nil {
		return Settings{}, err
	}
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config file %q: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Settings{}, fmt.Errorf("parse config file %q: %w", path, err)
	}

	if file.Provider != "" {
		settings.Provider = file.Provider
	}
	if file.MaxTokens > 0 {
		settings.MaxTokens = file.MaxTokens
	}

	for rawName, override := range file.Providers {
		name := NormalizeProvider(rawName)
		current, ok := settings.Providers[name]
		if !ok {
			return Settings{}, fmt.Errorf("config file %q: unknown provider: %q", path, rawName)
		}
		if override.TimeoutMS < 0 {
			return Settings{}, fmt.Errorf("config file %q: providers.%s.timeout_ms must not be negative", path, rawName)
		}
		if override.APIKey != "" {
			current.APIKey = override.APIKey
		}
		if override.BaseURL != "" {
			current.BaseURL = override.BaseURL
		}
		if override.TimeoutMS > 0 {
			current.Timeout = time.Duration(override.TimeoutMS) * time.Millisecond
		}
		if override.Model != "" {
			current.Model = override.Model
		}
		settings.Providers[name] = current
	}

	return settings, nil
}

// ProviderSettings returns the settings for a provider (aliases allowed).
// Unknown providers yield zero settings with the default timeout.
func (s Settings) ProviderSettings(provider string) ProviderSettings {
	if ps, ok := s.Providers[NormalizeProvider(provider)]; ok {
		return ps
	}
	return ProviderSettings{Timeout: defaultTimeout}
}

// NormalizeProvider converts provider aliases to canonical names.
func NormalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// SupportedProviders returns the sorted list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Environment variable helpers with proper error handling

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvDurationMS(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	ms, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("invalid value for %s: %q: must be positive", key, val)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
