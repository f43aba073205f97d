// Package flat implements compact storage of ragged per-record data: many
// named arrays share two contiguous backing regions, one with a slot per
// record (“chunk”) and one with a slot per item inside the variable-length
// records (“element”). An index of start offsets and lengths maps chunks onto
// the shared element region, giving O(1) amortized append and O(1) random
// access to any chunk's slice.
package flat

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"

	"github.com/andreyvit/hstore"
)

// Per selects whether an array stores one value per chunk or one value per
// element.
type Per int

const (
	PerElement Per = 1
	PerChunk   Per = 2
)

func (p Per) String() string {
	switch p {
	case PerElement:
		return "element"
	case PerChunk:
		return "chunk"
	default:
		return fmt.Sprintf("per(%d)", int(p))
	}
}

// ParsePer accepts "element" and "chunk", plus the legacy aliases "atom" and
// "structure" with a deprecation warning.
func ParsePer(s string) (Per, error) {
	switch s {
	case "element":
		return PerElement, nil
	case "chunk":
		return PerChunk, nil
	case "atom":
		slog.Warn("per=atom is deprecated, use per=element")
		return PerElement, nil
	case "structure":
		slog.Warn("per=structure is deprecated, use per=chunk")
		return PerChunk, nil
	default:
		return 0, fmt.Errorf("per must be \"element\" or \"chunk\", got %q", s)
	}
}

// The three structural arrays every storage carries. They are regular
// per-chunk arrays as far as reads are concerned, but cannot be deleted and
// are maintained by AddChunk rather than the caller.
const (
	idArray     = "identifier"
	startArray  = "start_index"
	lengthArray = "length"
)

func isStructural(name string) bool {
	return name == idArray || name == startArray || name == lengthArray
}

type array struct {
	name    string
	per     Per
	dt      DType
	shape   []int // item shape, excluding the leading dimension
	strd    int
	fill    any // canonical scalar; only meaningful when hasFill
	hasFill bool
	width   int // stored byte width, string arrays only; seeded from Options.StringWidth and grown to the longest value seen
	buf     buffer
}

func (a *array) effectiveFill(opts *hstore.Options) any {
	if a.hasFill {
		return a.fill
	}
	return a.dt.defaultFill(opts)
}

// ArrayInfo is the metadata HasArray reports.
type ArrayInfo struct {
	Name  string
	DType DType
	Shape []int
	Per   Per
	Fill  any
}

// Storage is the flattened ragged-array store. It is a plain in-memory data
// structure: callers serialize access at a coarser grain, and the only guard
// is against accidental mutation (see the container types built on top).
type Storage struct {
	opts        *hstore.Options
	numChunks   int
	numElements int
	capChunks   int
	capElements int
	arrays      map[string]*array
	order       []string
}

// New returns an empty storage with capacity for one chunk and one element;
// capacity doubles on overflow.
func New(opts *hstore.Options) *Storage {
	if opts == nil {
		opts = hstore.DefaultOptions()
	}
	s := &Storage{
		opts:        opts,
		capChunks:   1,
		capElements: 1,
		arrays:      make(map[string]*array),
	}
	ensure(s.AddArray(idArray, String, nil, nil, PerChunk))
	ensure(s.AddArray(startArray, Int64, nil, nil, PerChunk))
	ensure(s.AddArray(lengthArray, Int64, nil, nil, PerChunk))
	return s
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

// Len returns the number of chunks.
func (s *Storage) Len() int { return s.numChunks }

// NumElements returns the total element count across all chunks.
func (s *Storage) NumElements() int { return s.numElements }

func (s *Storage) Options() *hstore.Options { return s.opts }

// ArrayNames returns the declared array names in declaration order,
// structural arrays first.
func (s *Storage) ArrayNames() []string {
	return slices.Clone(s.order)
}

// AddArray declares a named array. Redeclaring with identical dtype, shape
// and per is a no-op; any disagreement is a schema conflict error. fill may
// be nil to use the dtype's documented default.
func (s *Storage) AddArray(name string, dt DType, shape []int, fill any, per Per) error {
	if per != PerElement && per != PerChunk {
		return fmt.Errorf("array %q: invalid per %v", name, per)
	}
	if dt == Invalid || dtypeNames[dt] == "" {
		return fmt.Errorf("array %q: invalid dtype %v", name, dt)
	}
	var cfill any
	hasFill := fill != nil
	if hasFill {
		var ok bool
		cfill, ok = dt.coerceScalar(fill)
		if !ok {
			return fmt.Errorf("array %q: fill value %v (%T) does not match dtype %v", name, fill, fill, dt)
		}
	}
	if a := s.arrays[name]; a != nil {
		if a.dt != dt || !slices.Equal(a.shape, shape) || a.per != per {
			return fmt.Errorf("array %q already declared with dtype=%v shape=%v per=%v, redeclared with dtype=%v shape=%v per=%v",
				name, a.dt, a.shape, a.per, dt, shape, per)
		}
		return nil
	}

	strd := 1
	for _, d := range shape {
		if d <= 0 {
			return fmt.Errorf("array %q: invalid shape %v", name, shape)
		}
		strd *= d
	}
	a := &array{
		name:    name,
		per:     per,
		dt:      dt,
		shape:   slices.Clone(shape),
		strd:    strd,
		fill:    cfill,
		hasFill: hasFill,
	}
	if dt == String {
		a.width = s.opts.StringWidth
	}
	rows := s.capChunks
	if per == PerElement {
		rows = s.capElements
	}
	a.buf = newBuffer(dt, strd, rows, a.effectiveFill(s.opts))
	s.arrays[name] = a
	s.order = append(s.order, name)
	return nil
}

// HasArray returns the array's metadata, or nil if it isn't declared.
func (s *Storage) HasArray(name string) *ArrayInfo {
	a := s.arrays[name]
	if a == nil {
		return nil
	}
	info := &ArrayInfo{Name: a.name, DType: a.dt, Shape: slices.Clone(a.shape), Per: a.per}
	if a.hasFill {
		info.Fill = a.fill
	}
	return info
}

// DelArray removes a whole named array. Structural arrays cannot be removed.
func (s *Storage) DelArray(name string, ignoreMissing bool) error {
	if isStructural(name) {
		return fmt.Errorf("cannot delete structural array %q", name)
	}
	if s.arrays[name] == nil {
		if ignoreMissing {
			return nil
		}
		return fmt.Errorf("array %q: %w", name, hstore.ErrNotFound)
	}
	delete(s.arrays, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	return nil
}

func (s *Storage) resizeChunks(n int) {
	for _, name := range s.order {
		a := s.arrays[name]
		if a.per == PerChunk {
			a.buf.resize(n, a.effectiveFill(s.opts))
		}
	}
	s.capChunks = n
}

func (s *Storage) resizeElements(n int) {
	for _, name := range s.order {
		a := s.arrays[name]
		if a.per == PerElement {
			a.buf.resize(n, a.effectiveFill(s.opts))
		}
	}
	s.capElements = n
}

// truncate shrinks allocation to the exact logical size; called before
// serialization so no unused capacity hits the store.
func (s *Storage) truncate() {
	s.resizeChunks(s.numChunks)
	s.resizeElements(s.numElements)
}

// plannedWrite is one validated value destined for an array slot, computed
// before any buffer is touched so that errors leave the storage unchanged.
type plannedWrite struct {
	name    string
	decl    *array // non-nil when the array must be declared first
	item    any    // per-chunk item
	flat    any    // per-element flat data
	perElem bool
}

// AddChunk appends a chunk of the given length. An empty identifier
// auto-generates the decimal chunk index; identifiers are not checked for
// uniqueness (a duplicate makes later chunks unreachable by FindChunk, only
// by index).
//
// Arrays referenced in values that don't exist yet are declared by
// inference: a value whose leading dimension equals length becomes
// per-element; a multi-dimensional value with leading dimension 1 on a
// length-1 chunk is forced per-chunk with that axis stripped (the rank trick
// for per-chunk tensors); anything else becomes per-chunk. A scalar
// per-chunk array on a length-1 first chunk cannot be inferred from a 1-d
// value — declare it with AddArray first.
func (s *Storage) AddChunk(length int, identifier string, values map[string]any) error {
	if length <= 0 {
		return fmt.Errorf("chunk length must be positive, got %d", length)
	}
	for name := range values {
		if isStructural(name) {
			return fmt.Errorf("cannot assign structural array %q in AddChunk", name)
		}
	}

	// Validate everything before touching buffers.
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	plans := make([]plannedWrite, 0, len(names))
	for _, name := range names {
		nv, err := normalize(values[name])
		if err != nil {
			return fmt.Errorf("array %q: %w", name, err)
		}
		a := s.arrays[name]
		if a == nil {
			plan, err := inferArray(name, length, nv)
			if err != nil {
				return err
			}
			plans = append(plans, plan)
			continue
		}
		plan, err := planExisting(a, length, nv)
		if err != nil {
			return err
		}
		plans = append(plans, plan)
	}

	if s.numChunks+1 > s.capChunks {
		s.resizeChunks(max(s.capChunks*2, s.numChunks+1))
	}
	if s.numElements+length > s.capElements {
		s.resizeElements(max(s.capElements*2, s.numElements+length))
	}

	idx := s.numChunks
	if identifier == "" {
		identifier = strconv.Itoa(idx)
	}
	ensure(s.arrays[idArray].buf.setItem(idx, identifier))
	ensure(s.arrays[startArray].buf.setItem(idx, int64(s.numElements)))
	ensure(s.arrays[lengthArray].buf.setItem(idx, int64(length)))
	s.arrays[idArray].width = max(s.arrays[idArray].width, len(identifier))

	for _, plan := range plans {
		a := s.arrays[plan.name]
		if plan.decl != nil {
			d := plan.decl
			ensure(s.AddArray(d.name, d.dt, d.shape, fillArg(d), d.per))
			a = s.arrays[plan.name]
		}
		if plan.perElem {
			ensure(a.buf.setFlat(s.numElements, plan.flat))
			updateWidthFlat(a, plan.flat)
		} else {
			ensure(a.buf.setItem(idx, plan.item))
			updateWidthItem(a, plan.item)
		}
	}

	s.numChunks++
	s.numElements += length
	return nil
}

func fillArg(d *array) any {
	if d.hasFill {
		return d.fill
	}
	return nil
}

func inferArray(name string, length int, nv normValue) (plannedWrite, error) {
	if nv.scalar {
		return plannedWrite{
			name: name,
			decl: &array{name: name, dt: nv.dt, per: PerChunk},
			item: nv.value,
		}, nil
	}
	if nv.lead == length && !(length == 1 && nv.ndim() > 1) {
		return plannedWrite{
			name:    name,
			decl:    &array{name: name, dt: nv.dt, shape: nv.inner, per: PerElement},
			flat:    nv.flat,
			perElem: true,
		}, nil
	}
	shape := nv.inner
	if nv.lead != 1 {
		shape = append([]int{nv.lead}, nv.inner...)
	}
	return plannedWrite{
		name: name,
		decl: &array{name: name, dt: nv.dt, shape: shape, per: PerChunk},
		item: nv.flat,
	}, nil
}

func planExisting(a *array, length int, nv normValue) (plannedWrite, error) {
	if a.per == PerElement {
		if nv.scalar {
			if length == 1 && a.strd == 1 {
				item, ok := a.dt.coerceScalar(nv.value)
				if !ok {
					return plannedWrite{}, schemaMismatch(a, nv)
				}
				return plannedWrite{name: a.name, flat: singleton(a.dt, item), perElem: true}, nil
			}
			return plannedWrite{}, fmt.Errorf("array %q: scalar value for per-element array of chunk length %d", a.name, length)
		}
		flat, ok := coerceFlat(a.dt, nv)
		if !ok {
			return plannedWrite{}, schemaMismatch(a, nv)
		}
		if n := flatLen(flat); n != length*a.strd {
			return plannedWrite{}, fmt.Errorf("array %q: value has %d entries, chunk of length %d requires %d", a.name, n, length, length*a.strd)
		}
		return plannedWrite{name: a.name, flat: flat, perElem: true}, nil
	}

	if nv.scalar {
		if a.strd != 1 {
			return plannedWrite{}, fmt.Errorf("array %q: scalar value for array of item shape %v", a.name, a.shape)
		}
		item, ok := a.dt.coerceScalar(nv.value)
		if !ok {
			return plannedWrite{}, schemaMismatch(a, nv)
		}
		return plannedWrite{name: a.name, item: item}, nil
	}
	flat, ok := coerceFlat(a.dt, nv)
	if !ok {
		return plannedWrite{}, schemaMismatch(a, nv)
	}
	if n := flatLen(flat); n != a.strd {
		return plannedWrite{}, fmt.Errorf("array %q: value has %d entries, item shape %v requires %d", a.name, n, a.shape, a.strd)
	}
	return plannedWrite{name: a.name, item: flat}, nil
}

func schemaMismatch(a *array, nv normValue) error {
	return fmt.Errorf("array %q: value dtype %v does not match declared dtype %v", a.name, nv.dt, a.dt)
}

func singleton(dt DType, item any) any {
	switch dt {
	case Int64:
		return []int64{item.(int64)}
	case Uint64:
		return []uint64{item.(uint64)}
	case Float64:
		return []float64{item.(float64)}
	case Bool:
		return []bool{item.(bool)}
	case String:
		return []string{item.(string)}
	default:
		return []any{item}
	}
}

func flatLen(flat any) int {
	switch v := flat.(type) {
	case []int64:
		return len(v)
	case []uint64:
		return len(v)
	case []float64:
		return len(v)
	case []bool:
		return len(v)
	case []string:
		return len(v)
	case []any:
		return len(v)
	default:
		panic(fmt.Sprintf("not a canonical flat slice: %T", flat))
	}
}

func updateWidthItem(a *array, item any) {
	if a.dt != String {
		return
	}
	switch v := item.(type) {
	case string:
		a.width = max(a.width, len(v))
	case []string:
		for _, s := range v {
			a.width = max(a.width, len(s))
		}
	}
}

func updateWidthFlat(a *array, flat any) {
	if a.dt != String {
		return
	}
	if v, ok := flat.([]string); ok {
		for _, s := range v {
			a.width = max(a.width, len(s))
		}
	}
}

func (s *Storage) chunkBounds(i int) (start, length int) {
	start = int(s.arrays[startArray].buf.getItem(i, true).(int64))
	length = int(s.arrays[lengthArray].buf.getItem(i, true).(int64))
	return start, length
}

// Identifier returns the identifier of chunk i.
func (s *Storage) Identifier(i int) (string, error) {
	if i < 0 || i >= s.numChunks {
		return "", fmt.Errorf("chunk %d: %w", i, hstore.ErrOutOfRange)
	}
	return s.arrays[idArray].buf.getItem(i, true).(string), nil
}

// FindChunk resolves a chunk identifier to its index by linear scan,
// returning the first match.
func (s *Storage) FindChunk(identifier string) (int, error) {
	a := s.arrays[idArray]
	for i := 0; i < s.numChunks; i++ {
		if a.buf.getItem(i, true).(string) == identifier {
			return i, nil
		}
	}
	return 0, fmt.Errorf("chunk %q: %w", identifier, hstore.ErrNotFound)
}

// GetArray returns the full valid region of the named array as a flat
// canonical slice (multi-dimensional items are flattened row-major; see
// HasArray for the item shape).
func (s *Storage) GetArray(name string) (any, error) {
	a := s.arrays[name]
	if a == nil {
		return nil, fmt.Errorf("array %q: %w", name, hstore.ErrNotFound)
	}
	if a.per == PerElement {
		return a.buf.getFlat(0, s.numElements), nil
	}
	return a.buf.getFlat(0, s.numChunks), nil
}

// GetArrayAt returns the value of the named array for one chunk: the stored
// item for per-chunk arrays, the chunk's element slice for per-element ones.
func (s *Storage) GetArrayAt(name string, frame int) (any, error) {
	a := s.arrays[name]
	if a == nil {
		return nil, fmt.Errorf("array %q: %w", name, hstore.ErrNotFound)
	}
	if frame < 0 || frame >= s.numChunks {
		return nil, fmt.Errorf("chunk %d: %w", frame, hstore.ErrOutOfRange)
	}
	if a.per == PerChunk {
		return a.buf.getItem(frame, len(a.shape) == 0), nil
	}
	start, length := s.chunkBounds(frame)
	return a.buf.getFlat(start, start+length), nil
}

// GetArrayNamed is GetArrayAt with the chunk resolved via FindChunk.
func (s *Storage) GetArrayNamed(name, identifier string) (any, error) {
	i, err := s.FindChunk(identifier)
	if err != nil {
		return nil, err
	}
	return s.GetArrayAt(name, i)
}

// GetArrayRagged returns one entry per chunk: element slices of varying
// lengths for per-element arrays, a plain passthrough of per-chunk values
// otherwise.
func (s *Storage) GetArrayRagged(name string) ([]any, error) {
	if s.arrays[name] == nil {
		return nil, fmt.Errorf("array %q: %w", name, hstore.ErrNotFound)
	}
	out := make([]any, s.numChunks)
	for i := range out {
		v, err := s.GetArrayAt(name, i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// GetArrayFilled returns a rectangular view: for per-element arrays, a flat
// slice of numChunks rows of rowLen items each, short chunks padded with the
// array's fill value; per-chunk arrays pass through with rowLen 1.
func (s *Storage) GetArrayFilled(name string) (value any, rowLen int, err error) {
	a := s.arrays[name]
	if a == nil {
		return nil, 0, fmt.Errorf("array %q: %w", name, hstore.ErrNotFound)
	}
	if a.per == PerChunk {
		v, err := s.GetArray(name)
		return v, 1, err
	}
	maxLen := 0
	for i := 0; i < s.numChunks; i++ {
		_, length := s.chunkBounds(i)
		maxLen = max(maxLen, length)
	}
	tmp := newBuffer(a.dt, a.strd, s.numChunks*maxLen, a.effectiveFill(s.opts))
	for i := 0; i < s.numChunks; i++ {
		start, length := s.chunkBounds(i)
		ensure(tmp.setFlat(i*maxLen, a.buf.getFlat(start, start+length)))
	}
	return tmp.getFlat(0, s.numChunks*maxLen), maxLen, nil
}

// SetArrayAt updates the named array in place for one chunk. String arrays
// grow their recorded character width if the new value doesn't fit; values
// are never truncated.
func (s *Storage) SetArrayAt(name string, frame int, value any) error {
	a := s.arrays[name]
	if a == nil {
		return fmt.Errorf("array %q: %w", name, hstore.ErrNotFound)
	}
	if frame < 0 || frame >= s.numChunks {
		return fmt.Errorf("chunk %d: %w", frame, hstore.ErrOutOfRange)
	}
	nv, err := normalize(value)
	if err != nil {
		return fmt.Errorf("array %q: %w", name, err)
	}
	_, length := s.chunkBounds(frame)
	plan, err := planExisting(a, length, nv)
	if err != nil {
		return err
	}
	if plan.perElem {
		start, _ := s.chunkBounds(frame)
		ensure(a.buf.setFlat(start, plan.flat))
		updateWidthFlat(a, plan.flat)
	} else {
		ensure(a.buf.setItem(frame, plan.item))
		updateWidthItem(a, plan.item)
	}
	return nil
}

// SetArrayNamed is SetArrayAt with the chunk resolved via FindChunk.
func (s *Storage) SetArrayNamed(name, identifier string, value any) error {
	i, err := s.FindChunk(identifier)
	if err != nil {
		return err
	}
	return s.SetArrayAt(name, i, value)
}

// Copy returns a deep copy.
func (s *Storage) Copy() *Storage {
	out := &Storage{
		opts:        s.opts,
		numChunks:   s.numChunks,
		numElements: s.numElements,
		capChunks:   s.capChunks,
		capElements: s.capElements,
		arrays:      make(map[string]*array, len(s.arrays)),
		order:       slices.Clone(s.order),
	}
	for name, a := range s.arrays {
		ca := *a
		ca.shape = slices.Clone(a.shape)
		ca.buf = a.buf.clone()
		out.arrays[name] = &ca
	}
	return out
}
