package hstore

import (
	"os"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// identityKey holds the UUID a store file receives on creation, so that a
// copied or renamed file can still be told apart from a freshly created one.
const identityKey = "_identity"

// Store is a handle on an open hierarchical store. Single-writer discipline:
// any given group must not be written from two stores concurrently; the lock
// guard below protects against accidental same-process mutation only.
type Store struct {
	backend  backend
	opts     *Options
	identity uuid.UUID
}

// Open opens (creating if necessary) a file-backed store.
func Open(path string, opts *Options) (*Store, error) {
	bdb, err := bbolt.Open(path, 0o666, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, err
	}
	b, err := newBoltBackend(bdb)
	if err != nil {
		bdb.Close()
		return nil, err
	}
	return newStore(b, opts)
}

// OpenMemory returns a transient in-memory store intended for tests.
func OpenMemory(opts *Options) *Store {
	return must(newStore(newMemBackend(), opts))
}

func newStore(b backend, opts *Options) (*Store, error) {
	s := &Store{backend: b, opts: opts.orDefault()}
	root := s.Root()
	raw, err := root.Get(identityKey)
	if err == nil {
		id, perr := uuid.Parse(raw.(string))
		if perr != nil {
			b.Close()
			return nil, Corruptf("/", perr, "invalid store identity")
		}
		s.identity = id
	} else {
		s.identity = uuid.New()
		if err := root.Put(identityKey, s.identity.String()); err != nil {
			b.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// Identity returns the UUID assigned to the store file on creation.
func (s *Store) Identity() uuid.UUID {
	return s.identity
}

func (s *Store) Options() *Options {
	return s.opts
}

func (s *Store) Root() *Group {
	return &Group{store: s, b: s.backend.Root(), path: "/"}
}

// Group is a handle on one group within a store.
type Group struct {
	store *Store
	b     backendGroup
	path  string
	name  string
}

func (g *Group) Store() *Store   { return g.store }
func (g *Group) Path() string    { return g.path }
func (g *Group) Name() string    { return g.name }
func (g *Group) Options() *Options { return g.store.opts }

func (g *Group) childPath(name string) string {
	if g.path == "/" {
		return "/" + name
	}
	return g.path + "/" + name
}

// Group returns the named sub-group, or nil if it doesn't exist. A name
// containing slashes navigates level by level.
func (g *Group) Group(name string) *Group {
	cur := g
	for {
		head, rest, more := splitByte(name, '/')
		b := cur.b.Child(head)
		if b == nil {
			return nil
		}
		cur = &Group{store: g.store, b: b, path: cur.childPath(head), name: head}
		if !more {
			return cur
		}
		name = rest
	}
}

// CreateGroup returns the named sub-group, creating missing levels.
func (g *Group) CreateGroup(name string) (*Group, error) {
	cur := g
	for {
		head, rest, more := splitByte(name, '/')
		b, err := cur.b.CreateChild(head)
		if err != nil {
			return nil, Errf(cur.path, head, err, "create group")
		}
		cur = &Group{store: g.store, b: b, path: cur.childPath(head), name: head}
		if !more {
			return cur, nil
		}
		name = rest
	}
}

// RemoveGroup deletes a sub-group and all of its contents.
func (g *Group) RemoveGroup(name string) error {
	err := g.b.RemoveChild(name)
	if err == ErrGroupNotFound {
		return Errf(g.path, name, ErrGroupNotFound, "")
	}
	return err
}

// With opens (creating if necessary) a sub-group for the duration of fn.
func (g *Group) With(name string, fn func(*Group) error) error {
	sub, err := g.CreateGroup(name)
	if err != nil {
		return err
	}
	return fn(sub)
}

// Put stores a typed terminal value under key.
func (g *Group) Put(key string, v any) error {
	data, err := encodeValue(v, g.store.opts)
	if err != nil {
		return Errf(g.path, key, err, "")
	}
	return g.b.Put(key, data)
}

// Get reads a terminal value. A missing key wraps ErrNotFound.
func (g *Group) Get(key string) (any, error) {
	data := g.b.Get(key)
	if data == nil {
		return nil, Errf(g.path, key, ErrNotFound, "")
	}
	return decodeValue(g.path, key, data)
}

// GetDefault reads a terminal value, returning def when the key is missing.
// Decode failures still propagate.
func (g *Group) GetDefault(key string, def any) (any, error) {
	data := g.b.Get(key)
	if data == nil {
		return def, nil
	}
	return decodeValue(g.path, key, data)
}

// Delete removes a terminal key. Removing a missing key is not an error.
func (g *Group) Delete(key string) error {
	return g.b.Delete(key)
}

func (g *Group) Has(key string) bool {
	return g.b.Get(key) != nil
}

// ListNodes enumerates terminal keys in sorted order. The store identity key
// is hidden from enumeration at the root.
func (g *Group) ListNodes() []string {
	nodes := g.b.Nodes()
	if g.path == "/" {
		filtered := nodes[:0]
		for _, n := range nodes {
			if n != identityKey {
				filtered = append(filtered, n)
			}
		}
		nodes = filtered
	}
	return nodes
}

// ListGroups enumerates sub-group names in sorted order.
func (g *Group) ListGroups() []string {
	return g.b.Children()
}

// ListAll enumerates nodes followed by groups.
func (g *Group) ListAll() []string {
	return append(g.ListNodes(), g.ListGroups()...)
}

// IsEmpty reports whether the group holds no nodes and no sub-groups.
func (g *Group) IsEmpty() bool {
	return len(g.ListNodes()) == 0 && len(g.ListGroups()) == 0
}

// Clear removes every node and sub-group.
func (g *Group) Clear() error {
	for _, name := range g.ListGroups() {
		if err := g.RemoveGroup(name); err != nil {
			return err
		}
	}
	for _, key := range g.ListNodes() {
		if err := g.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// RemoveFile deletes an on-disk store file. The store must be closed.
func RemoveFile(path string) error {
	return os.Remove(path)
}
