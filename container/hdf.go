package container

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/andreyvit/hstore"
)

// On-disk schema versions. Reads accept both; writes produce the latest.
const (
	// StoreVersion1 had no KEY_ORDER entry; slot order is reconstructed
	// from the index-key numbering and sorted key names.
	StoreVersion1 = "0.1.0"
	// StoreVersion2 is the current layout: explicit KEY_ORDER plus the
	// persisted read-only flag.
	StoreVersion2 = "0.2.0"
)

const (
	typeTag        = "container.Container"
	keyOrderKey    = "KEY_ORDER"
	readOnlyKey    = "READ_ONLY"
	indexKeyPrefix = "__index_"
)

func init() {
	hstore.RegisterLoader(typeTag, func(g *hstore.Group) (any, error) {
		c := New()
		c.lazy = true
		if err := hstore.LoadInto(c, g); err != nil {
			return nil, err
		}
		return c, nil
	})
}

func (c *Container) StoreName() string {
	if c.name != "" {
		return c.name
	}
	return "data_container"
}

func (c *Container) TypeTag() string      { return typeTag }
func (c *Container) StoreVersion() string { return StoreVersion2 }

// SetLazy controls whether subsequent reads materialize subgroups eagerly
// or install stubs loaded on first access.
func (c *Container) SetLazy(lazy bool) {
	c.lazy = lazy
}

func (c *Container) Lazy() bool {
	return c.lazy
}

// storageKey returns the on-disk key for slot i: the bound key, or a
// synthetic positional key for unkeyed slots.
func (c *Container) storageKey(i int) string {
	if key := c.slots[i].key; key != "" {
		return key
	}
	return indexKeyPrefix + strconv.Itoa(i)
}

func parseIndexKey(key string) (int, bool) {
	num, ok := strings.CutPrefix(key, indexKeyPrefix)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(num)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func (c *Container) WriteStore(g *hstore.Group) error {
	// Stubs must be materialized before anything is overwritten, since they
	// may point into this very group.
	if err := c.ForceLoad(); err != nil {
		return err
	}

	order := make([]string, len(c.slots))
	keep := map[string]bool{keyOrderKey: true, readOnlyKey: true}
	for i := range c.slots {
		key := c.storageKey(i)
		if isReservedKey(key) {
			return fmt.Errorf("key %q collides with a reserved serialization key", key)
		}
		order[i] = key
		keep[key] = true
	}
	if err := hstore.PruneStale(g, keep); err != nil {
		return err
	}

	if err := g.Put(keyOrderKey, order); err != nil {
		return err
	}
	if err := g.Put(readOnlyKey, c.ReadOnly()); err != nil {
		return err
	}
	for i := range c.slots {
		key := order[i]
		// A slot can change kind between saves. ReadStore prefers the group
		// form of a key, so the stale entity of the other kind must go first.
		switch v := c.slots[i].value.(type) {
		case hstore.Storable:
			if g.Has(key) {
				if err := g.Delete(key); err != nil {
					return err
				}
			}
			if err := hstore.SaveObject(v, g, key); err != nil {
				return err
			}
		default:
			if g.Group(key) != nil {
				if err := g.RemoveGroup(key); err != nil {
					return err
				}
			}
			if err := g.Put(key, v); err != nil {
				return fmt.Errorf("slot %q: %w", key, err)
			}
		}
	}
	return nil
}

func (c *Container) ReadStore(g *hstore.Group, version string) error {
	var order []string
	switch version {
	case StoreVersion2:
		raw, err := g.Get(keyOrderKey)
		if err != nil {
			return hstore.Corruptf(g.Path(), err, "missing %s", keyOrderKey)
		}
		var ok bool
		if order, ok = raw.([]string); !ok {
			return hstore.Corruptf(g.Path(), nil, "%s is %T, not a string list", keyOrderKey, raw)
		}
	case StoreVersion1:
		order = legacyOrder(g)
	default:
		return hstore.NewVersionError(g.Path(), version, StoreVersion1, StoreVersion2)
	}

	rawRO, err := g.GetDefault(readOnlyKey, false)
	if err != nil {
		return err
	}
	ro, _ := rawRO.(bool)

	groups := make(map[string]bool)
	for _, name := range g.ListGroups() {
		groups[name] = true
	}

	c.slots = nil
	c.keyIdx = make(map[string]int)
	for _, key := range order {
		var value any
		if groups[key] {
			child := g.Group(key)
			if c.lazy {
				value = hstore.NewStub(child, "")
			} else {
				value, err = loadChild(child, c.lazy)
				if err != nil {
					return err
				}
			}
		} else {
			value, err = g.Get(key)
			if err != nil {
				return err
			}
		}
		if _, ok := parseIndexKey(key); ok {
			c.slots = append(c.slots, slot{value: value})
		} else {
			c.keyIdx[key] = len(c.slots)
			c.slots = append(c.slots, slot{key: key, value: value})
		}
	}
	c.SetReadOnlyFlag(ro)
	return nil
}

// loadChild reconstructs a subgroup. Nested containers bypass the registry
// so the parent's laziness carries down; other registered types decide for
// themselves through LoadAny.
func loadChild(g *hstore.Group, lazy bool) (any, error) {
	hdr, ok, err := hstore.ReadHeader(g)
	if err != nil {
		return nil, err
	}
	if ok && hdr.Type == typeTag {
		child := New()
		child.lazy = lazy
		if err := hstore.LoadInto(child, g); err != nil {
			return nil, err
		}
		return child, nil
	}
	return hstore.LoadAny(g)
}

// legacyOrder reconstructs slot order for pre-KEY_ORDER data: positional
// keys by index, then keyed entries sorted by name.
func legacyOrder(g *hstore.Group) []string {
	var indexed, keyed []string
	for _, key := range append(g.ListNodes(), g.ListGroups()...) {
		if isReservedKey(key) {
			continue
		}
		if _, ok := parseIndexKey(key); ok {
			indexed = append(indexed, key)
		} else {
			keyed = append(keyed, key)
		}
	}
	sort.Slice(indexed, func(i, j int) bool {
		a, _ := parseIndexKey(indexed[i])
		b, _ := parseIndexKey(indexed[j])
		return a < b
	})
	sort.Strings(keyed)
	return append(indexed, keyed...)
}

func isReservedKey(key string) bool {
	return key == keyOrderKey || key == readOnlyKey || hstore.IsHeaderKey(key)
}

// ToDict mirrors the container into a plain nested map, materializing stubs
// first. Insertion order travels in an explicit KEY_ORDER list and the
// read-only flag in READ_ONLY, so the round trip does not depend on map
// ordering.
func (c *Container) ToDict() (map[string]any, error) {
	if err := c.ForceLoad(); err != nil {
		return nil, err
	}
	d := make(map[string]any, len(c.slots)+2)
	order := make([]string, len(c.slots))
	for i := range c.slots {
		key := c.storageKey(i)
		if isReservedKey(key) {
			return nil, fmt.Errorf("key %q collides with a reserved serialization key", key)
		}
		order[i] = key
		if child, ok := c.slots[i].value.(*Container); ok {
			cd, err := child.ToDict()
			if err != nil {
				return nil, err
			}
			d[key] = cd
		} else {
			d[key] = c.slots[i].value
		}
	}
	d[keyOrderKey] = order
	d[readOnlyKey] = c.ReadOnly()
	return d, nil
}

// FromDict rebuilds the container from a ToDict mirror. Values arriving
// from a CBOR decode are normalized first (untyped maps to string-keyed
// maps, unsigned integers to int64). A nested map carrying its own
// KEY_ORDER becomes a nested container.
func (c *Container) FromDict(d map[string]any) error {
	order, err := dictOrder(d)
	if err != nil {
		return err
	}
	ro, _ := normalizeDictValue(d[readOnlyKey]).(bool)

	c.slots = nil
	c.keyIdx = make(map[string]int)
	for _, key := range order {
		raw, ok := d[key]
		if !ok {
			return fmt.Errorf("%s names %q but the dict has no such entry", keyOrderKey, key)
		}
		value := normalizeDictValue(raw)
		if m, ok := value.(map[string]any); ok {
			if _, nested := m[keyOrderKey]; nested {
				child := New()
				if err := child.FromDict(m); err != nil {
					return err
				}
				value = child
			}
		}
		if _, ok := parseIndexKey(key); ok {
			c.slots = append(c.slots, slot{value: value})
		} else {
			c.keyIdx[key] = len(c.slots)
			c.slots = append(c.slots, slot{key: key, value: value})
		}
	}
	c.SetReadOnlyFlag(ro)
	return nil
}

func dictOrder(d map[string]any) ([]string, error) {
	raw, ok := d[keyOrderKey]
	if !ok {
		return nil, fmt.Errorf("dict has no %s entry", keyOrderKey)
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		order := make([]string, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%s entry %d is %T, not a string", keyOrderKey, i, e)
			}
			order[i] = s
		}
		return order, nil
	default:
		return nil, fmt.Errorf("%s is %T, not a string list", keyOrderKey, raw)
	}
}

// normalizeDictValue maps CBOR decoding artifacts back onto the canonical
// in-memory shapes: untyped map keys become strings, positive integers
// become int64.
func normalizeDictValue(v any) any {
	switch v := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			ks, ok := k.(string)
			if !ok {
				ks = fmt.Sprint(k)
			}
			out[ks] = normalizeDictValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = normalizeDictValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalizeDictValue(e)
		}
		return out
	case uint64:
		return int64(v)
	case int:
		return int64(v)
	default:
		return v
	}
}
