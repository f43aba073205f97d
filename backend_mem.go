package hstore

import (
	"slices"
	"sort"
	"sync"
)

// memBackend is a transient in-memory backend intended for tests. It mirrors
// the Bolt backend's semantics (sorted enumeration, separate node/group
// namespaces) without touching the filesystem.
type memBackend struct {
	mu     sync.Mutex
	root   *memGroup
	closed bool
}

func newMemBackend() backend {
	return &memBackend{root: newMemGroup()}
}

func (b *memBackend) Root() backendGroup {
	return &memGroupHandle{backend: b, g: b.root}
}

func (b *memBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.root = nil
	return nil
}

type memGroup struct {
	nodes    map[string][]byte
	children map[string]*memGroup
}

func newMemGroup() *memGroup {
	return &memGroup{
		nodes:    make(map[string][]byte),
		children: make(map[string]*memGroup),
	}
}

type memGroupHandle struct {
	backend *memBackend
	g       *memGroup
}

func (h *memGroupHandle) Child(name string) backendGroup {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	child := h.g.children[name]
	if child == nil {
		return nil
	}
	return &memGroupHandle{backend: h.backend, g: child}
}

func (h *memGroupHandle) CreateChild(name string) (backendGroup, error) {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	child := h.g.children[name]
	if child == nil {
		child = newMemGroup()
		h.g.children[name] = child
	}
	return &memGroupHandle{backend: h.backend, g: child}, nil
}

func (h *memGroupHandle) RemoveChild(name string) error {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	if h.g.children[name] == nil {
		return ErrGroupNotFound
	}
	delete(h.g.children, name)
	return nil
}

func (h *memGroupHandle) Get(key string) []byte {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	v := h.g.nodes[key]
	if v == nil {
		return nil
	}
	return slices.Clone(v)
}

func (h *memGroupHandle) Put(key string, value []byte) error {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	h.g.nodes[key] = slices.Clone(value)
	return nil
}

func (h *memGroupHandle) Delete(key string) error {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	delete(h.g.nodes, key)
	return nil
}

func (h *memGroupHandle) Nodes() []string {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	names := make([]string, 0, len(h.g.nodes))
	for k := range h.g.nodes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (h *memGroupHandle) Children() []string {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	names := make([]string, 0, len(h.g.children))
	for k := range h.g.children {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
