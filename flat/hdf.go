package flat

import (
	"fmt"
	"slices"
	"strings"

	"github.com/andreyvit/hstore"
)

// On-disk schema versions. Reads accept all three; writes always produce the
// latest. These are literal tags — changing them breaks compatibility.
const (
	// StoreVersion1 kept every array in a single "arrays" group; per-element
	// vs per-chunk is recovered from leading dimensions.
	StoreVersion1 = "0.1.0"
	// StoreVersion2 split arrays into element/chunk groups but did not
	// persist fill values.
	StoreVersion2 = "0.2.0"
	// StoreVersion3 is the current layout: split groups plus _fill_values.
	StoreVersion3 = "0.3.0"
)

const (
	elementGroup   = "element_arrays"
	chunkGroup     = "chunk_arrays"
	legacyGroup    = "arrays"
	fillValuesKey  = "_fill_values"
	numElementsKey = "num_elements"
	numChunksKey   = "num_chunks"
)

func init() {
	hstore.RegisterLoader("flat.Storage", func(g *hstore.Group) (any, error) {
		s := New(g.Options())
		if err := hstore.LoadInto(s, g); err != nil {
			return nil, err
		}
		return s, nil
	})
}

func (s *Storage) StoreName() string    { return "flat_storage" }
func (s *Storage) TypeTag() string      { return "flat.Storage" }
func (s *Storage) StoreVersion() string { return StoreVersion3 }

func (s *Storage) WriteStore(g *hstore.Group) error {
	for _, name := range s.order {
		if s.arrays[name].dt == Object {
			return fmt.Errorf("array %q: object arrays cannot be serialized", name)
		}
	}
	s.truncate()

	if err := g.Put(numElementsKey, int64(s.numElements)); err != nil {
		return err
	}
	if err := g.Put(numChunksKey, int64(s.numChunks)); err != nil {
		return err
	}
	fills := make(map[string]any)
	for _, name := range s.order {
		if a := s.arrays[name]; a.hasFill {
			fills[name] = a.fill
		}
	}
	if err := g.Put(fillValuesKey, fills); err != nil {
		return err
	}

	// A rewrite over a pre-split layout must not leave the old group behind.
	if g.Group(legacyGroup) != nil {
		if err := g.RemoveGroup(legacyGroup); err != nil {
			return err
		}
	}

	if err := s.writeArrayGroup(g, elementGroup, PerElement, s.numElements); err != nil {
		return err
	}
	return s.writeArrayGroup(g, chunkGroup, PerChunk, s.numChunks)
}

func (s *Storage) writeArrayGroup(g *hstore.Group, groupName string, per Per, rows int) error {
	gg, err := g.CreateGroup(groupName)
	if err != nil {
		return err
	}
	keep := make(map[string]bool)
	for _, name := range s.order {
		if s.arrays[name].per == per {
			keep[name] = true
		}
	}
	if err := hstore.PruneStale(gg, keep); err != nil {
		return err
	}
	for _, name := range s.order {
		a := s.arrays[name]
		if a.per != per {
			continue
		}
		nd, err := encodeArray(a, rows)
		if err != nil {
			return err
		}
		if err := gg.Put(name, nd); err != nil {
			return err
		}
	}
	return nil
}

// encodeArray converts a backing buffer to a store leaf. Strings are
// transcoded to a fixed-width byte matrix because the store's native string
// representation is narrower than the in-memory one; the width becomes the
// trailing shape dimension, the configured starting width grown to the
// longest live value.
func encodeArray(a *array, rows int) (*hstore.NDArray, error) {
	shape := append([]int{rows}, a.shape...)
	switch a.dt {
	case Int64:
		return &hstore.NDArray{Elem: hstore.KindInt64, Shape: shape, Data: a.buf.getFlat(0, rows)}, nil
	case Uint64:
		return &hstore.NDArray{Elem: hstore.KindUint64, Shape: shape, Data: a.buf.getFlat(0, rows)}, nil
	case Float64:
		return &hstore.NDArray{Elem: hstore.KindFloat64, Shape: shape, Data: a.buf.getFlat(0, rows)}, nil
	case Bool:
		return &hstore.NDArray{Elem: hstore.KindBool, Shape: shape, Data: a.buf.getFlat(0, rows)}, nil
	case String:
		ss := a.buf.getFlat(0, rows).([]string)
		width := max(1, a.width)
		for _, v := range ss {
			width = max(width, len(v))
		}
		data := make([]byte, len(ss)*width)
		for i, v := range ss {
			copy(data[i*width:(i+1)*width], v)
		}
		return &hstore.NDArray{Elem: hstore.KindUint8, Shape: append(shape, width), Data: data}, nil
	default:
		return nil, fmt.Errorf("array %q: cannot encode dtype %v", a.name, a.dt)
	}
}

func (s *Storage) ReadStore(g *hstore.Group, version string) error {
	ne, err := readCount(g, numElementsKey)
	if err != nil {
		return err
	}
	nc, err := readCount(g, numChunksKey)
	if err != nil {
		return err
	}

	arrays := make(map[string]*array)
	switch version {
	case StoreVersion3, StoreVersion2:
		if err := readArrayGroup(g, elementGroup, PerElement, ne, arrays); err != nil {
			return err
		}
		if err := readArrayGroup(g, chunkGroup, PerChunk, nc, arrays); err != nil {
			return err
		}
	case StoreVersion1:
		if err := readLegacyGroup(g, ne, nc, arrays); err != nil {
			return err
		}
	default:
		return hstore.NewVersionError(g.Path(), version, StoreVersion1, StoreVersion2, StoreVersion3)
	}

	for _, name := range []string{idArray, startArray, lengthArray} {
		if arrays[name] == nil {
			return hstore.Corruptf(g.Path(), nil, "structural array %q missing", name)
		}
	}

	if version == StoreVersion3 {
		raw, err := g.GetDefault(fillValuesKey, map[string]any{})
		if err != nil {
			return err
		}
		fills, ok := raw.(map[string]any)
		if !ok {
			return hstore.Corruptf(g.Path(), nil, "%s is %T, not a map", fillValuesKey, raw)
		}
		for name, fv := range fills {
			a := arrays[name]
			if a == nil {
				continue
			}
			cv, ok := a.dt.coerceScalar(fv)
			if !ok {
				return hstore.Corruptf(g.Path(), nil, "fill value %v (%T) for %q does not match dtype %v", fv, fv, name, a.dt)
			}
			a.fill = cv
			a.hasFill = true
		}
	}

	// Declaration order is not persisted: structural arrays first, then the
	// rest sorted by name.
	order := []string{idArray, startArray, lengthArray}
	var rest []string
	for name := range arrays {
		if !isStructural(name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	order = append(order, rest...)

	for _, a := range arrays {
		if a.dt == String {
			a.width = max(a.width, s.opts.StringWidth)
		}
	}

	s.arrays = arrays
	s.order = order
	s.numElements, s.capElements = ne, ne
	s.numChunks, s.capChunks = nc, nc
	return nil
}

func readCount(g *hstore.Group, key string) (int, error) {
	v, err := g.Get(key)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok || n < 0 {
		return 0, hstore.Corruptf(g.Path(), nil, "%s is %v (%T), not a count", key, v, v)
	}
	return int(n), nil
}

func readArrayGroup(g *hstore.Group, groupName string, per Per, rows int, arrays map[string]*array) error {
	gg := g.Group(groupName)
	if gg == nil {
		return hstore.Corruptf(g.Path(), nil, "group %q missing", groupName)
	}
	for _, name := range gg.ListNodes() {
		v, err := gg.Get(name)
		if err != nil {
			return err
		}
		a, err := decodeArray(gg, name, v, per, rows)
		if err != nil {
			return err
		}
		arrays[name] = a
	}
	return nil
}

// readLegacyGroup handles the pre-split layout: everything in one group,
// with per-element vs per-chunk recovered from leading dimensions. The
// structural arrays are always per-chunk; anything else whose leading
// dimension matches the element count is per-element (the element reading
// wins when the two counts coincide).
func readLegacyGroup(g *hstore.Group, ne, nc int, arrays map[string]*array) error {
	gg := g.Group(legacyGroup)
	if gg == nil {
		return hstore.Corruptf(g.Path(), nil, "group %q missing", legacyGroup)
	}
	for _, name := range gg.ListNodes() {
		v, err := gg.Get(name)
		if err != nil {
			return err
		}
		nd, ok := v.(*hstore.NDArray)
		if !ok || len(nd.Shape) == 0 {
			return hstore.Corruptf(gg.Path(), nil, "node %q is not an array", name)
		}
		per, rows := PerChunk, nc
		if !isStructural(name) && nd.Shape[0] == ne {
			per, rows = PerElement, ne
		}
		a, err := decodeArray(gg, name, v, per, rows)
		if err != nil {
			return err
		}
		arrays[name] = a
	}
	return nil
}

func decodeArray(gg *hstore.Group, name string, v any, per Per, rows int) (*array, error) {
	nd, ok := v.(*hstore.NDArray)
	if !ok {
		return nil, hstore.Corruptf(gg.Path(), nil, "node %q is %T, not an array", name, v)
	}
	if len(nd.Shape) == 0 || nd.Shape[0] != rows {
		return nil, hstore.Corruptf(gg.Path(), nil, "array %q has leading dimension %v, allocation count is %d", name, nd.Shape, rows)
	}

	var dt DType
	var shape []int
	var flat any
	switch nd.Elem {
	case hstore.KindInt64:
		dt, shape, flat = Int64, nd.Shape[1:], nd.Data
	case hstore.KindInt32:
		dt, shape = Int64, nd.Shape[1:]
		flat = convSlice(nd.Data.([]int32), func(x int32) int64 { return int64(x) })
	case hstore.KindUint64:
		dt, shape, flat = Uint64, nd.Shape[1:], nd.Data
	case hstore.KindFloat64:
		dt, shape, flat = Float64, nd.Shape[1:], nd.Data
	case hstore.KindFloat32:
		dt, shape = Float64, nd.Shape[1:]
		flat = convSlice(nd.Data.([]float32), func(x float32) float64 { return float64(x) })
	case hstore.KindBool:
		dt, shape, flat = Bool, nd.Shape[1:], nd.Data
	case hstore.KindString:
		dt, shape, flat = String, nd.Shape[1:], nd.Data
	case hstore.KindUint8:
		// Fixed-width string matrix; the trailing dimension is the width.
		if len(nd.Shape) < 2 {
			return nil, hstore.Corruptf(gg.Path(), nil, "array %q: byte array without width dimension", name)
		}
		width := nd.Shape[len(nd.Shape)-1]
		dt = String
		shape = nd.Shape[1 : len(nd.Shape)-1]
		raw := nd.Data.([]byte)
		if width <= 0 || len(raw)%width != 0 {
			return nil, hstore.Corruptf(gg.Path(), nil, "array %q: byte length %d does not divide into width %d", name, len(raw), width)
		}
		ss := make([]string, len(raw)/width)
		for i := range ss {
			ss[i] = strings.TrimRight(string(raw[i*width:(i+1)*width]), "\x00")
		}
		flat = ss
	default:
		return nil, hstore.Corruptf(gg.Path(), nil, "array %q has unsupported element kind %v", name, nd.Elem)
	}

	strd := 1
	for _, d := range shape {
		strd *= d
	}
	if n := flatLen(flat); n != rows*strd {
		return nil, hstore.Corruptf(gg.Path(), nil, "array %q has %d entries, shape %v requires %d", name, n, nd.Shape, rows*strd)
	}

	a := &array{name: name, per: per, dt: dt, shape: slices.Clone(shape), strd: strd}
	a.buf = newBuffer(dt, strd, rows, dt.defaultFill(hstore.DefaultOptions()))
	ensure(a.buf.setFlat(0, flat))
	if dt == String {
		for _, v := range flat.([]string) {
			a.width = max(a.width, len(v))
		}
	}
	return a, nil
}
