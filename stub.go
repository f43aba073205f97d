package hstore

import "fmt"

// Stub stands in for a stored value that has not been materialized yet. It
// references a location in the store (a group, or a terminal key within one)
// and loads it on demand. A stub caches nothing: the owner of the slot the
// stub sits in is responsible for replacing it with the loaded value so that
// repeated access doesn't hit the store again.
type Stub struct {
	g   *Group
	key string
}

// NewStub returns a stub for a terminal key (key != "") or for a whole
// sub-group (key == "").
func NewStub(g *Group, key string) *Stub {
	if g == nil {
		panic("nil group in stub")
	}
	return &Stub{g: g, key: key}
}

func (s *Stub) Group() *Group { return s.g }
func (s *Stub) Key() string   { return s.key }

// Load materializes the referenced value. Terminal values are returned
// verbatim; groups dispatch on their type header through the loader registry
// and fall back to generic reconstruction.
func (s *Stub) Load() (any, error) {
	if s.key != "" {
		return s.g.Get(s.key)
	}
	return LoadAny(s.g)
}

// String identifies the location without forcing a load; lazily loaded
// containers rely on this to keep their debug output cheap.
func (s *Stub) String() string {
	if s.key != "" {
		return fmt.Sprintf("<stub %s/%s>", s.g.path, s.key)
	}
	return fmt.Sprintf("<stub %s>", s.g.path)
}
