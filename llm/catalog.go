// Model availability cache.
//
// Information Hiding:
// - Process-lifetime storage of per-provider model lists
// - Collapsing of concurrent fetches for the same provider
// - Normalization of backend-native model-list shapes
// - Fail-open timeout policy for support checks

package llm

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/alphadose/haxmap"
	json "github.com/goccy/go-json"
	"github.com/richinex/llmbridge/internal/slogx"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

// ModelListTimeout bounds how long IsModelSupported waits for a model list.
const ModelListTimeout = 2000 * time.Millisecond

// RecommendedModels are always considered supported, without a fetch.
var RecommendedModels = []string{ModelOpenAIO4Mini, ModelOpenAIO3}

// ModelCache lazily fetches and caches the model list of each provider for
// the lifetime of the process. Entries are never invalidated, and a failed
// fetch caches an empty list. Safe for concurrent use.
type ModelCache struct {
	registry *Registry
	entries  *haxmap.Map[string, []string]
	fetches  singleflight.Group
	timeout  time.Duration
}

// ModelCacheOption configures a ModelCache.
type ModelCacheOption func(*ModelCache)

// WithModelListTimeout overrides ModelListTimeout.
func WithModelListTimeout(timeout time.Duration) ModelCacheOption {
	return func(c *ModelCache) {
		c.timeout = timeout
	}
}

// NewModelCache creates an empty cache that resolves providers through
// registry.
func NewModelCache(registry *Registry, opts ...ModelCacheOption) *ModelCache {
	c := &ModelCache{
		registry: registry,
		entries:  haxmap.New[string, []string](),
		timeout:  ModelListTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListModels returns the model names of the provider selected by
// providerFlag, fetching them on first use. Errors yield an empty list.
func (c *ModelCache) ListModels(ctx context.Context, providerFlag string) []string {
	id, err := c.registry.ResolveType(providerFlag)
	if err != nil {
		slog.Warn("failed to resolve provider for model list", slogx.Error(err))
		return []string{}
	}
	return c.fetch(ctx, id)
}

// IsModelSupported reports whether model is offered by the provider
// selected by providerFlag. Blank names and recommended models are always
// supported. When the list cannot be obtained within the timeout, is empty
// or fails, the answer is true; a fetch that outlives the timeout keeps
// running and still fills the cache.
func (c *ModelCache) IsModelSupported(ctx context.Context, model, providerFlag string) bool {
	model = strings.TrimSpace(model)
	if model == "" || slices.Contains(RecommendedModels, model) {
		return true
	}

	id, err := c.registry.ResolveType(providerFlag)
	if err != nil {
		slog.Warn("failed to resolve provider for model check", slogx.Error(err))
		return true
	}

	result := make(chan []string, 1)
	go func() {
		result <- c.fetch(context.WithoutCancel(ctx), id)
	}()

	select {
	case models := <-result:
		if len(models) == 0 {
			return true
		}
		return slices.Contains(models, model)
	case <-time.After(c.timeout):
		slog.Debug("model list timed out, assuming supported",
			slogx.Provider(id.String()),
			slog.String("model", model))
		return true
	case <-ctx.Done():
		return true
	}
}

// Preload warms the cache for the provider selected by providerFlag on a
// background goroutine. It never blocks and never reports failure.
func (c *ModelCache) Preload(providerFlag string) {
	go func() {
		_ = c.ListModels(context.Background(), providerFlag)
	}()
}

func (c *ModelCache) fetch(ctx context.Context, id ProviderType) []string {
	key := id.String()
	if models, ok := c.entries.Get(key); ok {
		return models
	}

	value, _, _ := c.fetches.Do(key, func() (any, error) {
		if models, ok := c.entries.Get(key); ok {
			return models, nil
		}
		models := c.load(ctx, id)
		c.entries.Set(key, models)
		return models, nil
	})
	return value.([]string)
}

func (c *ModelCache) load(ctx context.Context, id ProviderType) []string {
	provider, err := c.registry.New(id)
	if err != nil {
		slog.Warn("failed to create provider for model list", slogx.Provider(id.String()), slogx.Error(err))
		return []string{}
	}

	response, err := provider.ListModels(ctx)
	if err != nil {
		slog.Warn("failed to list models", slogx.Provider(id.String()), slogx.Error(err))
		return []string{}
	}

	return normalizeModelList(id.String(), response)
}

// normalizeModelList extracts model names from a backend-native response:
// a bare array of strings, or an object whose data[] entries carry an id or
// name (or are strings themselves). Other shapes yield an empty list.
func normalizeModelList(provider string, response any) []string {
	raw, err := json.Marshal(response)
	if err != nil {
		slog.Warn("failed to encode model list", slogx.Provider(provider), slogx.Error(err))
		return []string{}
	}

	doc := gjson.ParseBytes(raw)
	var entries []gjson.Result
	switch {
	case doc.IsArray():
		entries = doc.Array()
	case doc.IsObject() && doc.Get("data").IsArray():
		entries = doc.Get("data").Array()
	default:
		slog.Warn("unexpected model list shape", slogx.Provider(provider), slog.String("type", doc.Type.String()))
		return []string{}
	}

	models := make([]string, 0, len(entries))
	for _, entry := range entries {
		switch {
		case entry.Type == gjson.String:
			models = append(models, entry.String())
		case entry.Get("id").Type == gjson.String:
			models = append(models, entry.Get("id").String())
		case entry.Get("name").Type == gjson.String:
			models = append(models, entry.Get("name").String())
		default:
			models = append(models, entry.Raw)
		}
	}
	return models
}
