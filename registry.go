package hstore

import (
	"fmt"
	"sync"
)

// LoaderFunc reconstructs an object from the group it was serialized into.
// The function decides how much of the sub-tree to materialize eagerly;
// loaders for container types are expected to be lazy themselves.
type LoaderFunc func(g *Group) (any, error)

var (
	loadersMu sync.Mutex
	loaders   = make(map[string]LoaderFunc)
)

// RegisterLoader binds a type tag to a reconstruction function. Serializable
// types register themselves at start-up; the table is closed after that.
// Duplicate registration is a programmer error and panics.
func RegisterLoader(tag string, fn LoaderFunc) {
	if tag == "" {
		panic("empty loader tag")
	}
	if fn == nil {
		panic(fmt.Sprintf("nil loader for tag %s", tag))
	}
	loadersMu.Lock()
	defer loadersMu.Unlock()
	if loaders[tag] != nil {
		panic(fmt.Sprintf("loader for tag %s already registered", tag))
	}
	loaders[tag] = fn
}

func loaderFor(tag string) LoaderFunc {
	loadersMu.Lock()
	defer loadersMu.Unlock()
	return loaders[tag]
}
