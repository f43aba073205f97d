package flat

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/andreyvit/hstore"
)

// FromRagged builds a storage from equal-length ragged initializers: each
// entry maps an array name to a slice with one row per chunk, rows being
// per-element slices (of possibly differing lengths) or per-chunk scalars.
// Per-element row lengths must agree across names for every record.
func FromRagged(opts *hstore.Options, values map[string]any) (*Storage, error) {
	s := New(opts)
	if len(values) == 0 {
		return s, nil
	}

	names := sortedNames(values)
	rowsByName := make(map[string][]any, len(values))
	numRecords := -1
	for _, name := range names {
		rows, err := toRows(values[name])
		if err != nil {
			return nil, fmt.Errorf("initializer %q: %w", name, err)
		}
		if numRecords == -1 {
			numRecords = len(rows)
		} else if len(rows) != numRecords {
			return nil, fmt.Errorf("initializer %q has %d records, expected %d", name, len(rows), numRecords)
		}
		rowsByName[name] = rows
	}

	for i := 0; i < numRecords; i++ {
		length := -1
		chunkValues := make(map[string]any, len(names))
		for _, name := range names {
			row := rowsByName[name][i]
			nv, err := normalize(row)
			if err != nil {
				return nil, fmt.Errorf("initializer %q, record %d: %w", name, i, err)
			}
			if !nv.scalar {
				if length == -1 {
					length = nv.lead
				} else if nv.lead != length {
					return nil, fmt.Errorf("record %d: initializer %q has %d entries, other fields have %d", i, name, nv.lead, length)
				}
			}
			chunkValues[name] = row
		}
		if length == -1 {
			length = 1
		}
		if err := s.AddChunk(length, "", chunkValues); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func toRows(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("expected a slice of records, got %T", v)
	}
	rows := make([]any, rv.Len())
	for i := range rows {
		rows[i] = rv.Index(i).Interface()
	}
	return rows, nil
}

func sortedNames(values map[string]any) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Sample builds a new storage holding only the chunks the predicate accepts.
// Array declarations (dtype, shape, per, fill) and identifiers carry over;
// start indexes are regenerated by the append path.
func (s *Storage) Sample(pred func(s *Storage, chunk int) bool) (*Storage, error) {
	out := New(s.opts)
	for _, name := range s.order {
		if isStructural(name) {
			continue
		}
		a := s.arrays[name]
		if err := out.AddArray(name, a.dt, a.shape, fillArg(a), a.per); err != nil {
			return nil, err
		}
	}
	for i := 0; i < s.numChunks; i++ {
		if !pred(s, i) {
			continue
		}
		_, length := s.chunkBounds(i)
		id := s.arrays[idArray].buf.getItem(i, true).(string)
		values := make(map[string]any)
		for _, name := range s.order {
			if isStructural(name) {
				continue
			}
			v, err := s.GetArrayAt(name, i)
			if err != nil {
				return nil, err
			}
			values[name] = v
		}
		if err := out.AddChunk(length, id, values); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Split returns a deep copy retaining only the listed arrays plus the three
// structural ones.
func (s *Storage) Split(names []string) (*Storage, error) {
	for _, name := range names {
		if s.arrays[name] == nil {
			return nil, fmt.Errorf("array %q: %w", name, hstore.ErrNotFound)
		}
	}
	out := s.Copy()
	for _, name := range slices.Clone(out.order) {
		if isStructural(name) || slices.Contains(names, name) {
			continue
		}
		if err := out.DelArray(name, false); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Join merges another storage with identical chunk structure into this one.
// Colliding array names require disambiguating suffixes: the existing array
// is renamed with lsuffix, the incoming one gets rsuffix.
func (s *Storage) Join(other *Storage, lsuffix, rsuffix string) error {
	if other.numChunks != s.numChunks {
		return fmt.Errorf("cannot join storages with %d and %d chunks", s.numChunks, other.numChunks)
	}
	for i := 0; i < s.numChunks; i++ {
		_, ln := s.chunkBounds(i)
		_, rn := other.chunkBounds(i)
		if ln != rn {
			return fmt.Errorf("cannot join: chunk %d has length %d here, %d in other", i, ln, rn)
		}
	}

	var colliding []string
	for _, name := range other.order {
		if isStructural(name) {
			continue
		}
		if s.arrays[name] != nil {
			colliding = append(colliding, name)
		}
	}
	if len(colliding) > 0 {
		if lsuffix == "" && rsuffix == "" {
			return fmt.Errorf("array names collide without suffixes: %v", colliding)
		}
		if lsuffix == rsuffix {
			return fmt.Errorf("suffixes collide: %q", lsuffix)
		}
		for _, name := range colliding {
			if s.arrays[name+lsuffix] != nil && name+lsuffix != name {
				return fmt.Errorf("renaming %q to %q collides with an existing array", name, name+lsuffix)
			}
		}
	}

	for _, name := range colliding {
		if lsuffix == "" {
			continue
		}
		a := s.arrays[name]
		delete(s.arrays, name)
		a.name = name + lsuffix
		s.arrays[a.name] = a
		for i, n := range s.order {
			if n == name {
				s.order[i] = a.name
			}
		}
	}
	for _, name := range other.order {
		if isStructural(name) {
			continue
		}
		target := name
		if slices.Contains(colliding, name) {
			target = name + rsuffix
		}
		src := other.arrays[name]
		ca := *src
		ca.name = target
		ca.shape = slices.Clone(src.shape)
		ca.buf = src.buf.clone()
		if ca.per == PerChunk {
			ca.buf.resize(s.capChunks, ca.effectiveFill(s.opts))
		} else {
			ca.buf.resize(s.capElements, ca.effectiveFill(s.opts))
		}
		s.arrays[target] = &ca
		s.order = append(s.order, target)
	}
	return nil
}

// Extend appends every chunk of other onto s, remapping start indexes by the
// running element offset. Arrays present on only one side are backfilled
// with their fill value over the other side's range. Shared arrays must
// agree on dtype, shape, per and any explicitly declared fill values.
func (s *Storage) Extend(other *Storage) error {
	for _, name := range other.order {
		if isStructural(name) {
			continue
		}
		a, b := s.arrays[name], other.arrays[name]
		if a == nil {
			continue
		}
		if a.dt != b.dt || !slices.Equal(a.shape, b.shape) || a.per != b.per {
			return fmt.Errorf("array %q: declared as dtype=%v shape=%v per=%v here, dtype=%v shape=%v per=%v in other",
				name, a.dt, a.shape, a.per, b.dt, b.shape, b.per)
		}
		if a.hasFill && b.hasFill && !fillEqual(a.dt, a.fill, b.fill) {
			return fmt.Errorf("array %q: incompatible fill values %v and %v", name, a.fill, b.fill)
		}
	}

	for _, name := range other.order {
		if isStructural(name) || s.arrays[name] != nil {
			continue
		}
		b := other.arrays[name]
		if err := s.AddArray(name, b.dt, b.shape, fillArg(b), b.per); err != nil {
			return err
		}
	}

	oc, oe := other.numChunks, other.numElements
	if s.numChunks+oc > s.capChunks {
		s.resizeChunks(max(s.capChunks*2, s.numChunks+oc))
	}
	if s.numElements+oe > s.capElements {
		s.resizeElements(max(s.capElements*2, s.numElements+oe))
	}

	for _, name := range s.order {
		a := s.arrays[name]
		b := other.arrays[name]
		if b == nil {
			continue // backfilled by the resize above
		}
		if name == startArray {
			starts := b.buf.getFlat(0, oc).([]int64)
			for i := range starts {
				starts[i] += int64(s.numElements)
			}
			ensure(a.buf.setFlat(s.numChunks, starts))
			continue
		}
		if a.per == PerChunk {
			ensure(a.buf.setFlat(s.numChunks, b.buf.getFlat(0, oc)))
		} else {
			ensure(a.buf.setFlat(s.numElements, b.buf.getFlat(0, oe)))
		}
		if a.dt == String {
			a.width = max(a.width, b.width)
		}
	}

	s.numChunks += oc
	s.numElements += oe
	return nil
}
