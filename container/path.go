package container

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/andreyvit/hstore"
)

// ellipsisSegment inside a slash path triggers a recursive key search from
// the current level: ".../energy" resolves to the unique nested slot keyed
// "energy" regardless of depth.
const ellipsisSegment = "..."

// Get resolves key to a value. An int is positional; a string resolves as:
// a decimal is coerced to a position, a slash path descends level by level
// (each intermediate value must itself be a container), anything else is a
// keyed lookup. Positional misses wrap ErrOutOfRange, key misses wrap
// ErrNotFound.
func (c *Container) Get(key any) (any, error) {
	switch k := key.(type) {
	case int:
		return c.positional(k)
	case string:
		return c.getPath(k)
	default:
		return nil, fmt.Errorf("invalid key %v (%T)", key, key)
	}
}

// GetDefault is Get returning def instead of a lookup error. Errors other
// than missing keys and out-of-range positions still propagate.
func (c *Container) GetDefault(key any, def any) (any, error) {
	v, err := c.Get(key)
	if err != nil {
		if errors.Is(err, hstore.ErrNotFound) || errors.Is(err, hstore.ErrOutOfRange) {
			return def, nil
		}
		return nil, err
	}
	return v, nil
}

func (c *Container) getPath(path string) (any, error) {
	head, rest, more := splitSegment(path)
	if head == ellipsisSegment {
		if !more {
			return nil, errors.New("search path needs a key after the ellipsis")
		}
		searchKey, rest2, more2 := splitSegment(rest)
		v, err := c.Search(searchKey, true)
		if err != nil || !more2 {
			return v, err
		}
		child, ok := v.(*Container)
		if !ok {
			return nil, fmt.Errorf("%q resolves to a %T, not a group", searchKey, v)
		}
		return child.getPath(rest2)
	}
	if !more {
		return c.getSegment(head)
	}
	v, err := c.getSegment(head)
	if err != nil {
		return nil, err
	}
	child, ok := v.(*Container)
	if !ok {
		return nil, fmt.Errorf("%q holds a %T, not a group", head, v)
	}
	return child.getPath(rest)
}

func (c *Container) getSegment(seg string) (any, error) {
	if i, err := strconv.Atoi(seg); err == nil {
		return c.positional(i)
	}
	i, ok := c.keyIdx[seg]
	if !ok {
		return nil, fmt.Errorf("no key %q: %w", seg, hstore.ErrNotFound)
	}
	return c.valueAt(i)
}

// Set stores value under key, using the same resolution as Get. Setting a
// position equal to the length appends; setting an unbound string key
// appends a keyed slot; setting along a slash path auto-creates missing
// intermediate containers.
func (c *Container) Set(key any, value any) error {
	if ok, err := c.Guard("set"); !ok {
		return err
	}
	switch k := key.(type) {
	case int:
		return c.setPositional(k, value)
	case string:
		return c.set(k, value)
	default:
		return fmt.Errorf("invalid key %v (%T)", key, key)
	}
}

func (c *Container) setPositional(i int, value any) error {
	switch {
	case i >= 0 && i < len(c.slots):
		c.slots[i].value = value
		return nil
	case i == len(c.slots):
		c.slots = append(c.slots, slot{value: value})
		return nil
	default:
		return fmt.Errorf("index %d with length %d: %w", i, len(c.slots), hstore.ErrOutOfRange)
	}
}

// set is the path-aware assignment shared by Set and Update. The receiver is
// already guarded by the caller; every child descended into must permit the
// mutation itself, same as Delete.
func (c *Container) set(path string, value any) error {
	head, rest, more := splitSegment(path)
	if head == ellipsisSegment {
		return errors.New("search paths cannot be assigned to")
	}
	if !more {
		if i, err := strconv.Atoi(head); err == nil {
			return c.setPositional(i, value)
		}
		if err := validateKey(head); err != nil {
			return err
		}
		if i, ok := c.keyIdx[head]; ok {
			c.slots[i].value = value
			return nil
		}
		c.keyIdx[head] = len(c.slots)
		c.slots = append(c.slots, slot{key: head, value: value})
		return nil
	}

	var child *Container
	v, err := c.getSegment(head)
	switch {
	case err == nil:
		var ok bool
		if child, ok = v.(*Container); !ok {
			return fmt.Errorf("%q holds a %T, not a group", head, v)
		}
	case errors.Is(err, hstore.ErrNotFound), errors.Is(err, hstore.ErrOutOfRange):
		child = New()
		if serr := c.set(head, child); serr != nil {
			return serr
		}
	default:
		return err
	}
	if ok, err := child.Guard("set"); !ok {
		return err
	}
	return child.set(rest, value)
}

// Delete removes the slot key resolves to. Later slots shift down by one
// and their key bindings follow. A slash path deletes within the addressed
// subgroup, which must itself permit the mutation.
func (c *Container) Delete(key any) error {
	if ok, err := c.Guard("delete"); !ok {
		return err
	}
	switch k := key.(type) {
	case int:
		return c.deleteAt(k)
	case string:
		head, rest, more := splitSegment(k)
		if !more {
			return c.deleteSegment(head)
		}
		v, err := c.getSegment(head)
		if err != nil {
			return err
		}
		child, ok := v.(*Container)
		if !ok {
			return fmt.Errorf("%q holds a %T, not a group", head, v)
		}
		return child.Delete(rest)
	default:
		return fmt.Errorf("invalid key %v (%T)", key, key)
	}
}

func (c *Container) deleteSegment(seg string) error {
	if i, err := strconv.Atoi(seg); err == nil {
		return c.deleteAt(i)
	}
	i, ok := c.keyIdx[seg]
	if !ok {
		return fmt.Errorf("no key %q: %w", seg, hstore.ErrNotFound)
	}
	return c.deleteAt(i)
}

func (c *Container) deleteAt(i int) error {
	if i < 0 || i >= len(c.slots) {
		return fmt.Errorf("index %d with length %d: %w", i, len(c.slots), hstore.ErrOutOfRange)
	}
	if key := c.slots[i].key; key != "" {
		delete(c.keyIdx, key)
	}
	c.slots = append(c.slots[:i], c.slots[i+1:]...)
	for k, j := range c.keyIdx {
		if j > i {
			c.keyIdx[k] = j - 1
		}
	}
	return nil
}

// Search finds a terminal key anywhere in the nested hierarchy, depth-first
// with the current level checked before descending. With stopOnFirstHit the
// first match wins; without it every branch is searched and a second match
// wraps ErrAmbiguous. A key missing everywhere wraps ErrNotFound. Stubs are
// not materialized by the search.
func (c *Container) Search(key string, stopOnFirstHit bool) (any, error) {
	if key == "" || strings.ContainsRune(key, '/') {
		return nil, fmt.Errorf("invalid search key %q", key)
	}
	var owners []*Container
	c.searchOwners(key, stopOnFirstHit, &owners)
	switch len(owners) {
	case 0:
		return nil, fmt.Errorf("key %q not found at any depth: %w", key, hstore.ErrNotFound)
	case 1:
		return owners[0].valueAt(owners[0].keyIdx[key])
	default:
		return nil, fmt.Errorf("key %q found at %d locations: %w", key, len(owners), ErrAmbiguous)
	}
}

func (c *Container) searchOwners(key string, stop bool, out *[]*Container) {
	if _, ok := c.keyIdx[key]; ok {
		*out = append(*out, c)
		if stop {
			return
		}
	}
	for i := range c.slots {
		if stop && len(*out) > 0 {
			return
		}
		if child, ok := c.slots[i].value.(*Container); ok {
			child.searchOwners(key, stop, out)
		}
	}
}

// splitSegment splits off the first slash-separated segment.
func splitSegment(path string) (head, rest string, more bool) {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i], path[i+1:], true
	}
	return path, "", false
}
