package backend

import (
	"fmt"
	"sync"
)

// Constructor builds a backend from its configuration.
// Implementations register themselves with Register() in init().
type Constructor func(cfg Config) (Backend, error)

var (
	registry      = make(map[Type]Constructor)
	registryMutex sync.RWMutex
)

// Register registers a backend constructor for a variant type.
// Called from init() in the implementation files.
func Register(t Type, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("backend: Register constructor is nil for type %s", t))
	}
	if _, exists := registry[t]; exists {
		panic(fmt.Sprintf("backend: Register called twice for type %s", t))
	}
	registry[t] = constructor
}

// New constructs the backend selected by cfg.Type.
// Variant selection happens here, at configuration time; callers never
// branch on the concrete backend type.
func New(cfg Config) (Backend, error) {
	registryMutex.RLock()
	constructor := registry[cfg.Type]
	registryMutex.RUnlock()

	if constructor == nil {
		return nil, fmt.Errorf("unknown backend type %q (available: %v)", cfg.Type, RegisteredTypes())
	}
	b, err := constructor(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Type, err)
	}
	return b, nil
}

// IsRegistered returns true if a constructor exists for the given type.
func IsRegistered(t Type) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, exists := registry[t]
	return exists
}

// RegisteredTypes returns all registered variant types.
func RegisteredTypes() []Type {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	types := make([]Type, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	return types
}
