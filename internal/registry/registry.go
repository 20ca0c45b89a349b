// Package registry provides the name → factory lookup that plugs metrics
// sources, models, storage backends, and transform functions into the engine
// without central switch statements. Registries are populated once at process
// start by explicit registration functions and are read-only afterwards.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrUnknownKey is returned by Get when no factory is registered under a key.
var ErrUnknownKey = eris.New("registry: unknown key")

// ErrContractViolation is returned by Register when a factory's product does
// not satisfy the registry's capability interface.
var ErrContractViolation = eris.New("registry: contract violation")

// Registry maps string keys to factories producing T. Registration is
// idempotent per key (last wins).
type Registry[T any] struct {
	name      string
	mu        sync.RWMutex
	factories map[string]func() any
}

// New creates an empty registry. The name appears in error messages
// ("model", "metrics source", ...).
func New[T any](name string) *Registry[T] {
	return &Registry[T]{name: name, factories: make(map[string]func() any)}
}

// Register binds key to factory. The factory is invoked once immediately and
// its product checked against T; a mismatch fails with ErrContractViolation.
// Re-registering a key replaces the previous factory.
func (r *Registry[T]) Register(key string, factory func() any) error {
	if key == "" {
		return eris.Errorf("registry: empty %s key", r.name)
	}
	if factory == nil {
		return eris.Errorf("registry: nil factory for %s %q", r.name, key)
	}
	if _, ok := factory().(T); !ok {
		return eris.Wrapf(ErrContractViolation, "%s %q does not satisfy the %s contract", r.name, key, r.name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = factory
	return nil
}

// MustRegister is Register that panics on failure. Built-in registration
// runs through this; a violation there is a programming error.
func (r *Registry[T]) MustRegister(key string, factory func() any) {
	if err := r.Register(key, factory); err != nil {
		panic(err)
	}
}

// Get returns a fresh instance for key. Unknown keys fail with ErrUnknownKey;
// the message lists every registered key so typos are self-diagnosing.
func (r *Registry[T]) Get(key string) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[key]
	r.mu.RUnlock()

	var zero T
	if !ok {
		return zero, eris.Wrapf(ErrUnknownKey, "%s %q not registered (known: %s)", r.name, key, strings.Join(r.Keys(), ", "))
	}
	product, ok := factory().(T)
	if !ok {
		return zero, eris.Wrapf(ErrContractViolation, "%s %q factory product no longer satisfies its contract", r.name, key)
	}
	return product, nil
}

// Has reports whether key is registered.
func (r *Registry[T]) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[key]
	return ok
}

// Keys returns all registered keys, sorted.
func (r *Registry[T]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Funcs maps string keys to function values (transforms, response
// functions). Conformance is compile-time here, so only unknown-key
// errors apply.
type Funcs[F any] struct {
	name string
	mu   sync.RWMutex
	fns  map[string]F
}

// NewFuncs creates an empty function registry.
func NewFuncs[F any](name string) *Funcs[F] {
	return &Funcs[F]{name: name, fns: make(map[string]F)}
}

// Register binds key to fn, replacing any previous binding.
func (r *Funcs[F]) Register(key string, fn F) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[key] = fn
}

// Get returns the function registered under key or ErrUnknownKey listing
// the known keys.
func (r *Funcs[F]) Get(key string) (F, error) {
	r.mu.RLock()
	fn, ok := r.fns[key]
	r.mu.RUnlock()

	if !ok {
		var zero F
		return zero, eris.Wrapf(ErrUnknownKey, "%s %q not registered (known: %s)", r.name, key, strings.Join(r.Keys(), ", "))
	}
	return fn, nil
}

// Keys returns all registered keys, sorted.
func (r *Funcs[F]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.fns))
	for k := range r.fns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
