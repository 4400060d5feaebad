package store

import (
	"fmt"
	"sort"
	"sync"
)

// Backend is a build-time plugin that can open a KV implementation.
//
// Backends register themselves in init():
//
//	store.MustRegister(store.Backend{ ... })
//
// The binary must import the backend package for registration to occur.
type Backend struct {
	Name        string
	Description string
	// Durable backends survive a process restart.
	Durable bool
	// Options documents the keys Open understands.
	Options map[string]string

	Open func(options map[string]string) (KV, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("store: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("store: backend %q missing Open", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("store: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns all registered backends sorted by name.
func List() []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns registered backend names, sorted.
func Names() []string {
	bs := List()
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// Open opens the named backend with options.
func Open(name string, options map[string]string) (KV, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown store backend %q (have %v)", name, Names())
	}
	if options == nil {
		options = map[string]string{}
	}
	return b.Open(options)
}
