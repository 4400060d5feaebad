// Package memory is an in-process KV backend for tests and ephemeral nodes.
package memory

import (
	"bytes"
	"sort"
	"sync"

	"promphub.io/market/store"
)

func init() {
	store.MustRegister(store.Backend{
		Name:        "memory",
		Description: "In-process ordered map; state is lost on exit",
		Open: func(map[string]string) (store.KV, error) {
			return New(), nil
		},
	})
}

// KV keeps keys in a sorted slice beside a map of values.
type KV struct {
	mu     sync.RWMutex
	keys   []string
	values map[string][]byte
	closed bool
}

func New() *KV {
	return &KV{values: map[string][]byte{}}
}

func (m *KV) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, store.ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, store.ErrClosed
	}
	v, ok := m.values[string(key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *KV) Apply(ops []store.Op) error {
	for _, op := range ops {
		if len(op.Key) == 0 {
			return store.ErrEmptyKey
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}
	for _, op := range ops {
		k := string(op.Key)
		i := sort.SearchStrings(m.keys, k)
		present := i < len(m.keys) && m.keys[i] == k
		if op.Delete {
			if present {
				m.keys = append(m.keys[:i], m.keys[i+1:]...)
				delete(m.values, k)
			}
			continue
		}
		if !present {
			m.keys = append(m.keys, "")
			copy(m.keys[i+1:], m.keys[i:])
			m.keys[i] = k
		}
		m.values[k] = bytes.Clone(op.Value)
	}
	return nil
}

func (m *KV) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	type pair struct{ k, v []byte }
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return store.ErrClosed
	}
	var pairs []pair
	for i := sort.SearchStrings(m.keys, string(prefix)); i < len(m.keys); i++ {
		k := m.keys[i]
		if !bytes.HasPrefix([]byte(k), prefix) {
			break
		}
		pairs = append(pairs, pair{[]byte(k), bytes.Clone(m.values[k])})
	}
	m.mu.RUnlock()

	for _, p := range pairs {
		if err := fn(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of stored keys.
func (m *KV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

func (m *KV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
