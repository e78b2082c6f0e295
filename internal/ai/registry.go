package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
)

// ModelFactory builds a chat model for a provider-specific model name.
type ModelFactory func(ctx context.Context, modelName string) (model.BaseChatModel, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ModelFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ModelFactory)}
}

func (r *Registry) Register(name string, f ModelFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, modelName string) (model.BaseChatModel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider %q (registered: %s)", name, strings.Join(r.Names(), ", "))
	}
	return f(ctx, modelName)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
