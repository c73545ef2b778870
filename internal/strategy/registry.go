package strategy

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory builds a fresh strategy instance. The logger is the instance's only
// log channel; it carries the strategy attribute already.
type Factory func(logger *slog.Logger) Strategy

// Registry maps strategy kinds to their factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Builtin returns a registry holding the strategies shipped with this repo.
func Builtin() *Registry {
	r := NewRegistry()
	_ = r.Register(MarketMakerKind, func(logger *slog.Logger) Strategy {
		return NewMarketMaker(logger)
	})
	_ = r.Register(MispricingKind, func(logger *slog.Logger) Strategy {
		return NewMispricing(logger)
	})
	return r
}

// Register adds a factory. Registering the same kind twice is an error.
func (r *Registry) Register(kind string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("strategy already registered for kind: %s", kind)
	}
	r.factories[kind] = f
	return nil
}

// New builds a new instance of the given kind.
func (r *Registry) New(kind string, logger *slog.Logger) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy kind: %s", kind)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return f(logger), nil
}

// Kinds lists the registered kinds in ascending order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
