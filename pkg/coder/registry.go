package coder

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNilFactory is returned when registering a nil factory
	ErrNilFactory = errors.New("factory cannot be nil")
	// ErrEmptyName is returned when registering under an empty topic or type
	ErrEmptyName = errors.New("binding name cannot be empty")
)

// Binding describes one registered coder, for introspection
type Binding struct {
	Kind string // "topic" or "type"
	Name string
}

// Registry selects a coder factory for a route by topic, then by type, then
// falls back to Identity. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]Factory
	types  map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[string]Factory),
		types:  make(map[string]Factory),
	}
}

// RegisterType binds f to an exact type name, replacing any earlier binding
func (r *Registry) RegisterType(typeName string, f Factory) error {
	return r.register(r.types, typeName, f)
}

// RegisterTopic binds f to an exact topic name, replacing any earlier binding
func (r *Registry) RegisterTopic(topicName string, f Factory) error {
	return r.register(r.topics, topicName, f)
}

func (r *Registry) register(m map[string]Factory, name string, f Factory) error {
	if name == "" {
		return ErrEmptyName
	}
	if f == nil {
		return ErrNilFactory
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m[name] = f
	return nil
}

// Lookup returns the factory for a route and whether it came from a binding
func (r *Registry) Lookup(topic, typeName string) (Factory, bool) {
	if r == nil {
		return IdentityFactory, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.topics[topic]; ok {
		return f, true
	}
	if f, ok := r.types[typeName]; ok {
		return f, true
	}
	return IdentityFactory, false
}

// NewEncoder builds the bus→overlay coder for a route
func (r *Registry) NewEncoder(topic, typeName string, w Writer) (Coder, error) {
	return r.build(topic, typeName, w, Encoding)
}

// NewDecoder builds the overlay→bus coder for a route
func (r *Registry) NewDecoder(topic, typeName string, w Writer) (Coder, error) {
	return r.build(topic, typeName, w, Decoding)
}

func (r *Registry) build(topic, typeName string, w Writer, dir Direction) (Coder, error) {
	f, _ := r.Lookup(topic, typeName)
	c, err := f(topic, typeName, w, dir)
	if err != nil {
		return nil, fmt.Errorf("create %s coder for %s (%s): %w", dir, topic, typeName, err)
	}
	return c, nil
}

// Bindings lists the registered bindings, topics first, each sorted by name
func (r *Registry) Bindings() []Binding {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Binding, 0, len(r.topics)+len(r.types))
	for _, names := range []struct {
		kind string
		m    map[string]Factory
	}{{"topic", r.topics}, {"type", r.types}} {
		keys := make([]string, 0, len(names.m))
		for k := range names.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, Binding{Kind: names.kind, Name: k})
		}
	}
	return out
}
