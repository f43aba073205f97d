package flat

import "fmt"

// normValue is the canonical form of a value passed into AddChunk or a
// ragged initializer: either a scalar, or a flat canonical slice with an
// explicit leading dimension and item shape.
type normValue struct {
	dt     DType
	scalar bool
	lead   int   // leading dimension; 0 for scalars
	inner  []int // shape beyond the leading dimension
	flat   any   // canonical flat slice; nil for scalars
	value  any   // canonical scalar; nil otherwise
}

func (nv normValue) ndim() int {
	if nv.scalar {
		return 0
	}
	return 1 + len(nv.inner)
}

func normalize(v any) (normValue, error) {
	switch v := v.(type) {
	case []int64:
		return normValue{dt: Int64, lead: len(v), flat: v}, nil
	case []int:
		return normValue{dt: Int64, lead: len(v), flat: convSlice(v, func(x int) int64 { return int64(x) })}, nil
	case []int32:
		return normValue{dt: Int64, lead: len(v), flat: convSlice(v, func(x int32) int64 { return int64(x) })}, nil
	case []uint64:
		return normValue{dt: Uint64, lead: len(v), flat: v}, nil
	case []uint:
		return normValue{dt: Uint64, lead: len(v), flat: convSlice(v, func(x uint) uint64 { return uint64(x) })}, nil
	case []float64:
		return normValue{dt: Float64, lead: len(v), flat: v}, nil
	case []float32:
		return normValue{dt: Float64, lead: len(v), flat: convSlice(v, func(x float32) float64 { return float64(x) })}, nil
	case []bool:
		return normValue{dt: Bool, lead: len(v), flat: v}, nil
	case []string:
		return normValue{dt: String, lead: len(v), flat: v}, nil
	case []any:
		return normValue{dt: Object, lead: len(v), flat: v}, nil
	case [][]int64:
		return norm2D(Int64, v, func(x int64) int64 { return x })
	case [][]int:
		return norm2D(Int64, v, func(x int) int64 { return int64(x) })
	case [][]uint64:
		return norm2D(Uint64, v, func(x uint64) uint64 { return x })
	case [][]float64:
		return norm2D(Float64, v, func(x float64) float64 { return x })
	case [][]bool:
		return norm2D(Bool, v, func(x bool) bool { return x })
	case [][]string:
		return norm2D(String, v, func(x string) string { return x })
	}

	dt := dtypeOf(v)
	cv, ok := dt.coerceScalar(v)
	if !ok {
		return normValue{}, fmt.Errorf("cannot normalize value of type %T", v)
	}
	return normValue{dt: dt, scalar: true, value: cv}, nil
}

func convSlice[S, T any](vs []S, conv func(S) T) []T {
	out := make([]T, len(vs))
	for i, v := range vs {
		out[i] = conv(v)
	}
	return out
}

func norm2D[S, T any](dt DType, rows [][]S, conv func(S) T) (normValue, error) {
	if len(rows) == 0 {
		return normValue{dt: dt, lead: 0, inner: []int{0}, flat: []T{}}, nil
	}
	cols := len(rows[0])
	flat := make([]T, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return normValue{}, fmt.Errorf("ragged row %d: %d entries, expected %d", i, len(row), cols)
		}
		for _, v := range row {
			flat = append(flat, conv(v))
		}
	}
	return normValue{dt: dt, lead: len(rows), inner: []int{cols}, flat: flat}, nil
}

// coerceFlat converts a canonical flat slice of one dtype into another
// compatible dtype's canonical slice (used when an array was declared with a
// wider type than the value supplied, e.g. float column fed ints).
func coerceFlat(dt DType, nv normValue) (any, bool) {
	if nv.dt == dt {
		return nv.flat, true
	}
	switch dt {
	case Float64:
		if src, ok := nv.flat.([]int64); ok {
			return convSlice(src, func(x int64) float64 { return float64(x) }), true
		}
	case Uint64:
		if src, ok := nv.flat.([]int64); ok {
			out := make([]uint64, len(src))
			for i, x := range src {
				if x < 0 {
					return nil, false
				}
				out[i] = uint64(x)
			}
			return out, true
		}
	case Object:
		return toObjectSlice(nv.flat), true
	}
	return nil, false
}

func toObjectSlice(flat any) []any {
	switch src := flat.(type) {
	case []any:
		return src
	case []int64:
		return convSlice(src, func(x int64) any { return x })
	case []uint64:
		return convSlice(src, func(x uint64) any { return x })
	case []float64:
		return convSlice(src, func(x float64) any { return x })
	case []bool:
		return convSlice(src, func(x bool) any { return x })
	case []string:
		return convSlice(src, func(x string) any { return x })
	default:
		panic(fmt.Sprintf("not a canonical flat slice: %T", flat))
	}
}
