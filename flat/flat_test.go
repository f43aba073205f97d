package flat

import (
	"errors"
	"reflect"
	"testing"

	"github.com/andreyvit/hstore"
)

func TestAddChunkPerElement(t *testing.T) {
	s := New(nil)
	for _, chunk := range [][]int64{{2}, {4, 6}, {8, 10, 12}} {
		if err := s.AddChunk(len(chunk), "", map[string]any{"even": chunk}); err != nil {
			t.Fatalf("AddChunk(%v) failed: %v", chunk, err)
		}
	}

	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	if s.NumElements() != 6 {
		t.Fatalf("NumElements = %d, want 6", s.NumElements())
	}
	v, err := s.GetArrayAt("even", 1)
	if err != nil {
		t.Fatalf("GetArrayAt failed: %v", err)
	}
	if !reflect.DeepEqual(v, []int64{4, 6}) {
		t.Fatalf("GetArrayAt(even, 1) = %v", v)
	}
	v, err = s.GetArray("even")
	if err != nil {
		t.Fatalf("GetArray failed: %v", err)
	}
	if !reflect.DeepEqual(v, []int64{2, 4, 6, 8, 10, 12}) {
		t.Fatalf("GetArray(even) = %v", v)
	}
}

func TestDeclaredFill(t *testing.T) {
	s := New(nil)
	if err := s.AddArray("energy", Int64, nil, 42, PerChunk); err != nil {
		t.Fatalf("AddArray failed: %v", err)
	}
	if err := s.AddChunk(1, "foo", nil); err != nil {
		t.Fatalf("AddChunk failed: %v", err)
	}

	v, err := s.GetArrayAt("energy", 0)
	if err != nil {
		t.Fatalf("GetArrayAt failed: %v", err)
	}
	if v != int64(42) {
		t.Fatalf("energy = %v, want 42", v)
	}
	id, err := s.Identifier(0)
	if err != nil || id != "foo" {
		t.Fatalf("Identifier(0) = %q, %v", id, err)
	}
}

func TestGrowth(t *testing.T) {
	// Appending one chunk at a time must end up identical to the same chunks
	// added after the capacity is already large enough.
	build := func() *Storage {
		s := New(nil)
		for i := 0; i < 20; i++ {
			chunk := make([]float64, i%3+1)
			for j := range chunk {
				chunk[j] = float64(i*10 + j)
			}
			if err := s.AddChunk(len(chunk), "", map[string]any{"vals": chunk}); err != nil {
				t.Fatalf("AddChunk failed: %v", err)
			}
		}
		return s
	}
	a, b := build(), build()
	b.truncate()

	for _, name := range a.ArrayNames() {
		av, err := a.GetArray(name)
		if err != nil {
			t.Fatalf("GetArray(%s) failed: %v", name, err)
		}
		bv, err := b.GetArray(name)
		if err != nil {
			t.Fatalf("GetArray(%s) failed: %v", name, err)
		}
		if !reflect.DeepEqual(av, bv) {
			t.Fatalf("array %q diverged: %v vs %v", name, av, bv)
		}
	}
}

func TestIdempotentRedeclare(t *testing.T) {
	s := New(nil)
	if err := s.AddArray("forces", Float64, []int{3}, nil, PerElement); err != nil {
		t.Fatalf("AddArray failed: %v", err)
	}
	if err := s.AddArray("forces", Float64, []int{3}, nil, PerElement); err != nil {
		t.Fatalf("identical redeclare failed: %v", err)
	}
	if err := s.AddArray("forces", Float64, []int{2}, nil, PerElement); err == nil {
		t.Fatalf("incompatible redeclare succeeded")
	}
	if err := s.AddArray("forces", Int64, []int{3}, nil, PerElement); err == nil {
		t.Fatalf("incompatible dtype redeclare succeeded")
	}
	if err := s.AddArray("forces", Float64, []int{3}, nil, PerChunk); err == nil {
		t.Fatalf("incompatible per redeclare succeeded")
	}
}

func TestChunkAddressingAgreement(t *testing.T) {
	s := New(nil)
	ensure(s.AddChunk(2, "first", map[string]any{"v": []int64{1, 2}, "tag": "a"}))
	ensure(s.AddChunk(3, "second", map[string]any{"v": []int64{3, 4, 5}, "tag": "b"}))

	for i := 0; i < s.Len(); i++ {
		id, err := s.Identifier(i)
		if err != nil {
			t.Fatalf("Identifier(%d) failed: %v", i, err)
		}
		for _, name := range s.ArrayNames() {
			byIndex, err := s.GetArrayAt(name, i)
			if err != nil {
				t.Fatalf("GetArrayAt(%s, %d) failed: %v", name, i, err)
			}
			byName, err := s.GetArrayNamed(name, id)
			if err != nil {
				t.Fatalf("GetArrayNamed(%s, %s) failed: %v", name, id, err)
			}
			if !reflect.DeepEqual(byIndex, byName) {
				t.Fatalf("array %q chunk %d: by index %v, by identifier %v", name, i, byIndex, byName)
			}
		}
	}

	if _, err := s.FindChunk("third"); !errors.Is(err, hstore.ErrNotFound) {
		t.Fatalf("FindChunk(missing) err = %v", err)
	}
	if _, err := s.Identifier(5); !errors.Is(err, hstore.ErrOutOfRange) {
		t.Fatalf("Identifier(5) err = %v", err)
	}
}

func TestInference(t *testing.T) {
	s := New(nil)
	// 2-d value with leading dim equal to the chunk length: per-element with
	// item shape [3].
	ensure(s.AddChunk(2, "", map[string]any{"pos": [][]float64{{1, 2, 3}, {4, 5, 6}}}))
	info := s.HasArray("pos")
	if info == nil || info.Per != PerElement || !reflect.DeepEqual(info.Shape, []int{3}) {
		t.Fatalf("pos info = %+v", info)
	}

	// Scalar: per-chunk.
	ensure(s.AddChunk(1, "", map[string]any{"temp": 300.0}))
	info = s.HasArray("temp")
	if info == nil || info.Per != PerChunk || len(info.Shape) != 0 {
		t.Fatalf("temp info = %+v", info)
	}

	// Mismatched leading dimension: per-chunk with the full shape.
	s2 := New(nil)
	ensure(s2.AddChunk(3, "", map[string]any{"cell": [][]float64{{1, 0}, {0, 1}}}))
	info = s2.HasArray("cell")
	if info == nil || info.Per != PerChunk || !reflect.DeepEqual(info.Shape, []int{2, 2}) {
		t.Fatalf("cell info = %+v", info)
	}

	// Length-1 chunk with a leading dimension of 1 on a 2-d value: the axis
	// is stripped and the array is per-chunk.
	s3 := New(nil)
	ensure(s3.AddChunk(1, "", map[string]any{"vec": [][]float64{{7, 8, 9}}}))
	info = s3.HasArray("vec")
	if info == nil || info.Per != PerChunk || !reflect.DeepEqual(info.Shape, []int{3}) {
		t.Fatalf("vec info = %+v", info)
	}

	// Length-1 chunk with a 1-d value of one entry: per-element.
	s4 := New(nil)
	ensure(s4.AddChunk(1, "", map[string]any{"even": []int64{2}}))
	info = s4.HasArray("even")
	if info == nil || info.Per != PerElement {
		t.Fatalf("even info = %+v", info)
	}
}

func TestAddChunkValidation(t *testing.T) {
	s := New(nil)
	ensure(s.AddChunk(2, "", map[string]any{"v": []int64{1, 2}}))

	if err := s.AddChunk(0, "", nil); err == nil {
		t.Fatalf("AddChunk(0) succeeded")
	}
	if err := s.AddChunk(1, "", map[string]any{"identifier": "nope"}); err == nil {
		t.Fatalf("assigning a structural array succeeded")
	}

	// A bad value must not mutate anything, even alongside good values.
	err := s.AddChunk(2, "", map[string]any{
		"v":   []int64{1, 2, 3}, // wrong length
		"new": []int64{5, 6},
	})
	if err == nil {
		t.Fatalf("AddChunk with mismatched value succeeded")
	}
	if s.Len() != 1 || s.NumElements() != 2 {
		t.Fatalf("failed AddChunk mutated storage: len=%d elements=%d", s.Len(), s.NumElements())
	}
	if s.HasArray("new") != nil {
		t.Fatalf("failed AddChunk declared an array")
	}
}

func TestFillValueCoercion(t *testing.T) {
	s := New(nil)
	if err := s.AddArray("n", Int64, nil, "nope", PerChunk); err == nil {
		t.Fatalf("AddArray with mismatched fill succeeded")
	}
	if err := s.AddArray("u", Uint64, nil, -1, PerChunk); err == nil {
		t.Fatalf("negative fill for uint succeeded")
	}
	if err := s.AddArray("f", Float64, nil, 1, PerChunk); err != nil {
		t.Fatalf("int fill for float rejected: %v", err)
	}
}

func TestDelArray(t *testing.T) {
	s := New(nil)
	ensure(s.AddChunk(1, "", map[string]any{"v": []int64{1}}))

	if err := s.DelArray("identifier", false); err == nil {
		t.Fatalf("deleting a structural array succeeded")
	}
	if err := s.DelArray("missing", false); !errors.Is(err, hstore.ErrNotFound) {
		t.Fatalf("DelArray(missing) err = %v", err)
	}
	if err := s.DelArray("missing", true); err != nil {
		t.Fatalf("DelArray(missing, ignore) failed: %v", err)
	}
	if err := s.DelArray("v", false); err != nil {
		t.Fatalf("DelArray failed: %v", err)
	}
	if s.HasArray("v") != nil {
		t.Fatalf("v still declared")
	}
}

func TestGetArrayRagged(t *testing.T) {
	s := New(nil)
	ensure(s.AddChunk(1, "", map[string]any{"even": []int64{2}}))
	ensure(s.AddChunk(2, "", map[string]any{"even": []int64{4, 6}}))

	rows, err := s.GetArrayRagged("even")
	if err != nil {
		t.Fatalf("GetArrayRagged failed: %v", err)
	}
	want := []any{[]int64{2}, []int64{4, 6}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("ragged = %v, want %v", rows, want)
	}
}

func TestGetArrayFilled(t *testing.T) {
	s := New(nil)
	ensure(s.AddChunk(1, "", map[string]any{"even": []int64{2}}))
	ensure(s.AddChunk(3, "", map[string]any{"even": []int64{8, 10, 12}}))

	v, rowLen, err := s.GetArrayFilled("even")
	if err != nil {
		t.Fatalf("GetArrayFilled failed: %v", err)
	}
	if rowLen != 3 {
		t.Fatalf("rowLen = %d, want 3", rowLen)
	}
	want := []int64{2, -1, -1, 8, 10, 12}
	if !reflect.DeepEqual(v, want) {
		t.Fatalf("filled = %v, want %v", v, want)
	}
}

func TestSetArray(t *testing.T) {
	s := New(nil)
	ensure(s.AddChunk(2, "run0", map[string]any{"v": []int64{1, 2}, "e": 5.0}))

	if err := s.SetArrayAt("v", 0, []int64{7, 8}); err != nil {
		t.Fatalf("SetArrayAt failed: %v", err)
	}
	if v, _ := s.GetArrayAt("v", 0); !reflect.DeepEqual(v, []int64{7, 8}) {
		t.Fatalf("v after set = %v", v)
	}
	if err := s.SetArrayNamed("e", "run0", 6.5); err != nil {
		t.Fatalf("SetArrayNamed failed: %v", err)
	}
	if v, _ := s.GetArrayAt("e", 0); v != 6.5 {
		t.Fatalf("e after set = %v", v)
	}
	if err := s.SetArrayAt("v", 0, []int64{1}); err == nil {
		t.Fatalf("SetArrayAt with wrong length succeeded")
	}
}

func TestCopyIsDeep(t *testing.T) {
	s := New(nil)
	ensure(s.AddChunk(1, "", map[string]any{"v": []int64{1}}))

	c := s.Copy()
	ensure(c.AddChunk(1, "", map[string]any{"v": []int64{9}}))
	if err := c.SetArrayAt("v", 0, []int64{5}); err != nil {
		t.Fatalf("SetArrayAt failed: %v", err)
	}

	if s.Len() != 1 {
		t.Fatalf("copy mutation leaked into original: len=%d", s.Len())
	}
	if v, _ := s.GetArrayAt("v", 0); !reflect.DeepEqual(v, []int64{1}) {
		t.Fatalf("original mutated: %v", v)
	}
}

func TestParsePer(t *testing.T) {
	for in, want := range map[string]Per{"element": PerElement, "chunk": PerChunk, "atom": PerElement, "structure": PerChunk} {
		got, err := ParsePer(in)
		if err != nil || got != want {
			t.Fatalf("ParsePer(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePer("frame"); err == nil {
		t.Fatalf("ParsePer(frame) succeeded")
	}
}
