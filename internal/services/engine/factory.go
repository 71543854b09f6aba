package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"FinSim/internal/domain/models"
	"FinSim/internal/domain/service"
)

// Constructor builds a fresh engine instance.
type Constructor func() service.StrategyEngine

// Factory maps strategy names to constructors.
type Factory struct {
	mu       sync.RWMutex
	registry map[string]Constructor
}

// NewFactory returns a factory with the built-in strategies registered.
func NewFactory() *Factory {
	f := &Factory{registry: make(map[string]Constructor)}
	f.Register(ORBFVGName, func() service.StrategyEngine { return NewORBFVGEngine() })
	return f
}

// Register adds or replaces a strategy constructor.
func (f *Factory) Register(name string, c Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registry[name] = c
}

// Create instantiates the named strategy. Unknown names wrap models.ErrUnknownStrategy.
func (f *Factory) Create(name string) (service.StrategyEngine, error) {
	f.mu.RLock()
	c, ok := f.registry[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: strategy '%s' is not registered, available: %s",
			models.ErrUnknownStrategy, name, strings.Join(f.Available(), ", "))
	}
	return c(), nil
}

// Available lists registered strategy names in sorted order.
func (f *Factory) Available() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.registry))
	for name := range f.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
