// Package container implements an ordered hierarchical collection usable
// interchangeably as a list (iterate positions) or an ordered map (iterate
// keys). Slots hold arbitrary values; a slot whose value is itself a
// Container forms a nested group, giving the whole structure a tree shape
// addressable by slash-separated paths.
//
// Containers serialize through the hstore protocol (see hdf.go) and
// participate in recursive read-only locking through the embedded
// hstore.Lock.
package container

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/andreyvit/hstore"
)

// ErrAmbiguous is wrapped by Search when a key exists at more than one
// nested location and stop-on-first-hit is off.
var ErrAmbiguous = errors.New("ambiguous key")

type slot struct {
	key   string // "" for an unkeyed (purely positional) slot
	value any
}

// Container is an ordered sequence of slots, each optionally tagged with a
// unique string key. Integer access is positional; string access resolves
// keys, decimal positions and slash paths (see Get).
type Container struct {
	hstore.Lock
	slots  []slot
	keyIdx map[string]int
	name   string // overrides the default serialization group name
	lazy   bool   // subgroups load as stubs instead of eagerly
}

// New returns an empty container.
func New() *Container {
	return &Container{keyIdx: make(map[string]int)}
}

// FromSlice returns a container holding the given values as unkeyed slots.
func FromSlice(values ...any) *Container {
	c := New()
	for _, v := range values {
		c.slots = append(c.slots, slot{value: v})
	}
	return c
}

// Wrap builds a container from a nested structure of slices and maps,
// recursively converting every nested sequence or mapping into a container
// of its own. Strings and byte slices stay terminal.
func Wrap(source any) (*Container, error) {
	c := New()
	if err := c.Update(source, true); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) Len() int {
	return len(c.slots)
}

// HasKeys reports whether any slot carries a string key, distinguishing
// map-like containers from plain lists for display and serialization.
func (c *Container) HasKeys() bool {
	return len(c.keyIdx) > 0
}

// Keys returns, for every position in order, the bound string key if one
// exists and the position itself otherwise. For [1, 2] with "end" appended
// keyed, this yields [0, 1, "end"].
func (c *Container) Keys() []any {
	keys := make([]any, len(c.slots))
	for i, s := range c.slots {
		if s.key != "" {
			keys[i] = s.key
		} else {
			keys[i] = i
		}
	}
	return keys
}

// TableName returns the explicit serialization group name, if set.
func (c *Container) TableName() string {
	return c.name
}

func (c *Container) SetTableName(name string) {
	c.name = name
}

// valueAt returns the value at position i, materializing a stub in place so
// repeated access doesn't hit the store again.
func (c *Container) valueAt(i int) (any, error) {
	if st, ok := c.slots[i].value.(*hstore.Stub); ok {
		v, err := st.Load()
		if err != nil {
			return nil, err
		}
		c.slots[i].value = v
		return v, nil
	}
	return c.slots[i].value, nil
}

func (c *Container) positional(i int) (any, error) {
	if i < 0 || i >= len(c.slots) {
		return nil, fmt.Errorf("index %d with length %d: %w", i, len(c.slots), hstore.ErrOutOfRange)
	}
	return c.valueAt(i)
}

// validateKey rejects strings that cannot serve as slot keys because they
// would alias positional or path syntax.
func validateKey(key string) error {
	if key == "" {
		return errors.New("empty key")
	}
	if key == ellipsisSegment {
		return fmt.Errorf("key %q is reserved for search paths", key)
	}
	if strings.ContainsRune(key, '/') {
		return fmt.Errorf("key %q must not contain a slash", key)
	}
	if _, err := strconv.Atoi(key); err == nil {
		return fmt.Errorf("key %q would shadow a position", key)
	}
	return nil
}

// Append adds an unkeyed slot at the end.
func (c *Container) Append(value any) error {
	if ok, err := c.Guard("append"); !ok {
		return err
	}
	c.slots = append(c.slots, slot{value: value})
	return nil
}

// Extend appends every value as an unkeyed slot.
func (c *Container) Extend(values []any) error {
	if ok, err := c.Guard("extend"); !ok {
		return err
	}
	for _, v := range values {
		c.slots = append(c.slots, slot{value: v})
	}
	return nil
}

// Insert places value at index, shifting existing key bindings at or after
// index up by one. A non-empty key tags the new slot.
func (c *Container) Insert(index int, value any, key string) error {
	if ok, err := c.Guard("insert"); !ok {
		return err
	}
	if index < 0 || index > len(c.slots) {
		return fmt.Errorf("insert at %d with length %d: %w", index, len(c.slots), hstore.ErrOutOfRange)
	}
	if key != "" {
		if err := validateKey(key); err != nil {
			return err
		}
		if _, exists := c.keyIdx[key]; exists {
			return fmt.Errorf("key %q is already bound", key)
		}
	}
	for k, i := range c.keyIdx {
		if i >= index {
			c.keyIdx[k] = i + 1
		}
	}
	c.slots = append(c.slots, slot{})
	copy(c.slots[index+1:], c.slots[index:])
	c.slots[index] = slot{key: key, value: value}
	if key != "" {
		c.keyIdx[key] = index
	}
	return nil
}

// Mark tags an existing position with a key without moving data, replacing
// any key previously bound to that position.
func (c *Container) Mark(index int, key string) error {
	if ok, err := c.Guard("mark"); !ok {
		return err
	}
	if index < 0 || index >= len(c.slots) {
		return fmt.Errorf("mark at %d with length %d: %w", index, len(c.slots), hstore.ErrOutOfRange)
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if i, exists := c.keyIdx[key]; exists && i != index {
		return fmt.Errorf("key %q is already bound to position %d", key, i)
	}
	if old := c.slots[index].key; old != "" {
		delete(c.keyIdx, old)
	}
	c.slots[index].key = key
	c.keyIdx[key] = index
	return nil
}

// Clear removes all slots.
func (c *Container) Clear() error {
	if ok, err := c.Guard("clear"); !ok {
		return err
	}
	c.slots = nil
	c.keyIdx = make(map[string]int)
	return nil
}

// CreateGroup idempotently returns the nested container bound to name,
// creating an empty one if the key is unbound. An existing value of any
// other type is an error. When the container is read-only and the group
// does not exist yet, creation is refused; under the warn policy the
// returned container is nil.
func (c *Container) CreateGroup(name string) (*Container, error) {
	if err := validateKey(name); err != nil {
		return nil, err
	}
	if i, exists := c.keyIdx[name]; exists {
		v, err := c.valueAt(i)
		if err != nil {
			return nil, err
		}
		child, ok := v.(*Container)
		if !ok {
			return nil, fmt.Errorf("%q holds a %T, not a group", name, v)
		}
		return child, nil
	}
	if ok, err := c.Guard("create_group"); !ok {
		return nil, err
	}
	child := New()
	c.keyIdx[name] = len(c.slots)
	c.slots = append(c.slots, slot{key: name, value: child})
	return child, nil
}

// Update merges from a slice, map or another container. With wrap, nested
// sequences and mappings (strings and byte slices excluded) are recursively
// converted to containers of their own.
//
// A map with untyped keys may mix integer and string keys; the integer keys
// must form the contiguous positions 0..k-1, since anything else makes the
// intended ordering ambiguous. String keys follow in sorted order.
func (c *Container) Update(source any, wrap bool) error {
	if ok, err := c.Guard("update"); !ok {
		return err
	}
	switch src := source.(type) {
	case *Container:
		for i, s := range src.slots {
			v, err := src.valueAt(i)
			if err != nil {
				return err
			}
			v, err = c.maybeWrap(v, wrap)
			if err != nil {
				return err
			}
			if s.key != "" {
				if err := c.set(s.key, v); err != nil {
					return err
				}
			} else {
				c.slots = append(c.slots, slot{value: v})
			}
		}
		return nil
	case map[string]any:
		for _, k := range sortedKeys(src) {
			v, err := c.maybeWrap(src[k], wrap)
			if err != nil {
				return err
			}
			if err := c.set(k, v); err != nil {
				return err
			}
		}
		return nil
	case map[any]any:
		return c.updateMixedMap(src, wrap)
	}

	rv := reflect.ValueOf(source)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			v, err := c.maybeWrap(rv.Index(i).Interface(), wrap)
			if err != nil {
				return err
			}
			c.slots = append(c.slots, slot{value: v})
		}
		return nil
	}
	return fmt.Errorf("cannot update a container from %T", source)
}

func (c *Container) updateMixedMap(src map[any]any, wrap bool) error {
	var ints []int
	var strs []string
	for k := range src {
		switch k := k.(type) {
		case int:
			ints = append(ints, k)
		case int64:
			ints = append(ints, int(k))
		case string:
			strs = append(strs, k)
		default:
			return fmt.Errorf("invalid map key %v (%T)", k, k)
		}
	}
	sort.Ints(ints)
	for pos, k := range ints {
		if k != len(c.slots)+pos {
			return fmt.Errorf("integer key %d does not match its position %d, ordering is ambiguous", k, len(c.slots)+pos)
		}
	}
	sort.Strings(strs)
	get := func(k any) any {
		if v, ok := src[k]; ok {
			return v
		}
		return src[int64(k.(int))]
	}
	for _, k := range ints {
		v, err := c.maybeWrap(get(k), wrap)
		if err != nil {
			return err
		}
		c.slots = append(c.slots, slot{value: v})
	}
	for _, k := range strs {
		v, err := c.maybeWrap(src[k], wrap)
		if err != nil {
			return err
		}
		if err := c.set(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) maybeWrap(v any, wrap bool) (any, error) {
	if !wrap {
		return v, nil
	}
	switch v.(type) {
	case *Container, string, []byte, nil:
		return v, nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return Wrap(v)
	}
	return v, nil
}

// ForceLoad materializes every stub in the subtree, recursing into nested
// containers. Required before a deep copy, since copying a stub by reference
// would alias the store instead of snapshotting data.
func (c *Container) ForceLoad() error {
	for i := range c.slots {
		v, err := c.valueAt(i)
		if err != nil {
			return err
		}
		if child, ok := v.(*Container); ok {
			if err := child.ForceLoad(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Copy returns a shallow copy: slots and key bindings are duplicated, values
// (including nested containers) are shared.
func (c *Container) Copy() *Container {
	out := &Container{Lock: c.Lock, name: c.name, lazy: c.lazy}
	out.slots = append([]slot(nil), c.slots...)
	out.keyIdx = make(map[string]int, len(c.keyIdx))
	for k, i := range c.keyIdx {
		out.keyIdx[k] = i
	}
	return out
}

// DeepCopy returns an independent copy, materializing stubs first and
// recursively copying nested containers. Terminal values are shared.
func (c *Container) DeepCopy() (*Container, error) {
	if err := c.ForceLoad(); err != nil {
		return nil, err
	}
	out := c.Copy()
	for i := range out.slots {
		if child, ok := out.slots[i].value.(*Container); ok {
			cc, err := child.DeepCopy()
			if err != nil {
				return nil, err
			}
			out.slots[i].value = cc
		}
	}
	return out, nil
}

// ToBuiltin recursively flattens the container to plain maps and slices:
// a map keyed by bound keys and positions when any slot is keyed, a slice
// otherwise. With stringify, terminal leaves convert to display strings.
func (c *Container) ToBuiltin(stringify bool) (any, error) {
	flatten := func(i int) (any, error) {
		v, err := c.valueAt(i)
		if err != nil {
			return nil, err
		}
		if child, ok := v.(*Container); ok {
			return child.ToBuiltin(stringify)
		}
		if stringify {
			return fmt.Sprint(v), nil
		}
		return v, nil
	}
	if c.HasKeys() {
		out := make(map[string]any, len(c.slots))
		for i, s := range c.slots {
			v, err := flatten(i)
			if err != nil {
				return nil, err
			}
			key := s.key
			if key == "" {
				key = strconv.Itoa(i)
			}
			out[key] = v
		}
		return out, nil
	}
	out := make([]any, len(c.slots))
	for i := range c.slots {
		v, err := flatten(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ListGroups returns the names of slots holding nested containers, in slot
// order. Unkeyed slots are named by position. Stubs are not materialized and
// therefore count as nodes until first access.
func (c *Container) ListGroups() []string {
	var names []string
	for i, s := range c.slots {
		if _, ok := s.value.(*Container); ok {
			names = append(names, slotName(i, s))
		}
	}
	return names
}

// ListNodes returns the names of terminal slots, in slot order.
func (c *Container) ListNodes() []string {
	var names []string
	for i, s := range c.slots {
		if _, ok := s.value.(*Container); !ok {
			names = append(names, slotName(i, s))
		}
	}
	return names
}

// GroupChild returns the nested container named name, or nil. Stubs are not
// forced.
func (c *Container) GroupChild(name string) any {
	i := -1
	if n, err := strconv.Atoi(name); err == nil {
		i = n
	} else if n, ok := c.keyIdx[name]; ok {
		i = n
	}
	if i < 0 || i >= len(c.slots) {
		return nil
	}
	if child, ok := c.slots[i].value.(*Container); ok {
		return child
	}
	return nil
}

// SetReadOnly flips the read-only flag here and on every nested container.
func (c *Container) SetReadOnly(ro bool) {
	c.SetReadOnlyFlag(ro)
	hstore.SetReadOnlyChildren(c, ro)
}

// String renders the container without forcing stubs; lazily loaded
// subtrees print as stub references.
func (c *Container) String() string {
	var sb strings.Builder
	sb.WriteString("Container{")
	for i, s := range c.slots {
		if i > 0 {
			sb.WriteString(", ")
		}
		if s.key != "" {
			sb.WriteString(s.key)
			sb.WriteString(": ")
		}
		fmt.Fprintf(&sb, "%v", s.value)
	}
	sb.WriteByte('}')
	return sb.String()
}

func slotName(i int, s slot) string {
	if s.key != "" {
		return s.key
	}
	return strconv.Itoa(i)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
