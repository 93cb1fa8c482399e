// Package provider routes task prompts to hosted model services.
package provider

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ignatij/blogflow/pkg/models"
	"github.com/pkg/errors"
)

var ErrUnknownProvider = errors.New("unknown model provider")

// Request is a single model invocation.
type Request struct {
	SystemPrompt string
	Prompt       string
	Settings     models.ModelSettings
}

// Model generates a completion for a request.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, req Request) (string, error)

func (f ModelFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Factory builds a model client for a model id.
type Factory func(ctx context.Context, modelID string) (Model, error)

// Registry maps provider names to factories and caches the clients they build.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	models    map[string]Model
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		models:    make(map[string]Model),
	}
}

// Register adds or replaces the factory for a provider name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	for k := range r.models {
		if p, _, _ := strings.Cut(k, "\x00"); p == name {
			delete(r.models, k)
		}
	}
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the model client for a provider and model id.
func (r *Registry) Resolve(ctx context.Context, providerName, modelID string) (Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := providerName + "\x00" + modelID
	if m, ok := r.models[key]; ok {
		return m, nil
	}
	f, ok := r.factories[providerName]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProvider, "'%s'", providerName)
	}
	m, err := f(ctx, modelID)
	if err != nil {
		return nil, errors.Wrapf(err, "init %s model '%s'", providerName, modelID)
	}
	r.models[key] = m
	return m, nil
}
