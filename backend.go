package hstore

// backend represents a hierarchical key-value storage backend (Bolt,
// in-memory, etc.). Groups form a tree; each group holds terminal values
// under string keys plus named sub-groups. Terminal keys and sub-group names
// live in separate namespaces as far as enumeration is concerned, but putting
// a value under the name of an existing sub-group (or vice versa) is a caller
// error the backend may reject.
type backend interface {
	// Root returns the root group. It always exists.
	Root() backendGroup

	// Close closes the backend.
	Close() error
}

type backendGroup interface {
	// Child returns the named sub-group, or nil if it doesn't exist.
	Child(name string) backendGroup

	// CreateChild returns the named sub-group, creating it if necessary.
	CreateChild(name string) (backendGroup, error)

	// RemoveChild deletes a sub-group and all of its contents.
	// Returns ErrGroupNotFound if there is no such group.
	RemoveChild(name string) error

	// Get retrieves a value by key. Returns nil if not found.
	Get(key string) []byte

	// Put stores a key-value pair.
	Put(key string, value []byte) error

	// Delete removes a key. Removing a missing key is not an error.
	Delete(key string) error

	// Nodes enumerates terminal keys in sorted order.
	Nodes() []string

	// Children enumerates sub-group names in sorted order.
	Children() []string
}
