package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/zhfix/pkg/provider/mlm"
)

// ErrProviderNotRegistered is returned by [Registry.CreateOracle] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// OracleFactory builds an oracle backend from its config section.
type OracleFactory func(OracleConfig) (mlm.Provider, error)

// Registry maps oracle provider names to their constructor functions. It is
// safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	oracle map[OracleProvider]OracleFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{oracle: make(map[OracleProvider]OracleFactory)}
}

// RegisterOracle registers an oracle factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterOracle(name OracleProvider, factory OracleFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oracle[name] = factory
}

// Oracles returns the registered provider names in sorted order.
func (r *Registry) Oracles() []OracleProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]OracleProvider, 0, len(r.oracle))
	for name := range r.oracle {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CreateOracle instantiates the oracle named by cfg.Provider. For
// [OracleNone] it returns a nil provider and no error.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateOracle(cfg OracleConfig) (mlm.Provider, error) {
	if cfg.Provider == OracleNone || cfg.Provider == "" {
		return nil, nil
	}
	r.mu.RLock()
	factory, ok := r.oracle[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: oracle/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	p, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: create oracle %q: %w", cfg.Provider, err)
	}
	return p, nil
}
