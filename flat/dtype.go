package flat

import (
	"fmt"
	"math"

	"github.com/andreyvit/hstore"
)

// DType identifies the element type of a named array.
type DType int

const (
	Invalid DType = iota
	Int64
	Uint64
	Float64
	Bool
	String
	// Object holds arbitrary Go values. Object arrays live in memory only
	// and cannot be serialized.
	Object
)

var dtypeNames = map[DType]string{
	Int64:   "int64",
	Uint64:  "uint64",
	Float64: "float64",
	Bool:    "bool",
	String:  "string",
	Object:  "object",
}

func (d DType) String() string {
	if s := dtypeNames[d]; s != "" {
		return s
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

func ParseDType(s string) (DType, error) {
	for d, name := range dtypeNames {
		if name == s {
			return d, nil
		}
	}
	return Invalid, fmt.Errorf("unknown dtype %q", s)
}

// defaultFill returns the documented per-type fill value used when the array
// declares none: -1 for signed integers, 0 for unsigned, NaN for floats, the
// sentinel string for strings, nil for objects.
func (d DType) defaultFill(opts *hstore.Options) any {
	switch d {
	case Int64:
		return opts.FillInt
	case Uint64:
		return opts.FillUint
	case Float64:
		return opts.FillFloat
	case Bool:
		return false
	case String:
		return opts.FillString
	default:
		return nil
	}
}

// coerceScalar converts a Go value to the dtype's canonical scalar
// representation.
func (d DType) coerceScalar(v any) (any, bool) {
	switch d {
	case Int64:
		switch v := v.(type) {
		case int64:
			return v, true
		case int:
			return int64(v), true
		case int32:
			return int64(v), true
		case int16:
			return int64(v), true
		case int8:
			return int64(v), true
		}
	case Uint64:
		switch v := v.(type) {
		case uint64:
			return v, true
		case uint:
			return uint64(v), true
		case uint32:
			return uint64(v), true
		case uint16:
			return uint64(v), true
		case uint8:
			return uint64(v), true
		case int64:
			if v >= 0 {
				return uint64(v), true
			}
		case int:
			if v >= 0 {
				return uint64(v), true
			}
		case int32:
			if v >= 0 {
				return uint64(v), true
			}
		case int16:
			if v >= 0 {
				return uint64(v), true
			}
		case int8:
			if v >= 0 {
				return uint64(v), true
			}
		}
	case Float64:
		switch v := v.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int8:
			return float64(v), true
		case int16:
			return float64(v), true
		case int32:
			return float64(v), true
		case int64:
			return float64(v), true
		case uint8:
			return float64(v), true
		case uint16:
			return float64(v), true
		case uint32:
			return float64(v), true
		case uint64:
			return float64(v), true
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return b, true
		}
	case String:
		if s, ok := v.(string); ok {
			return s, true
		}
	case Object:
		return v, true
	}
	return nil, false
}

// dtypeOf infers a dtype from a Go scalar value.
func dtypeOf(v any) DType {
	switch v.(type) {
	case int, int8, int16, int32, int64:
		return Int64
	case uint, uint8, uint16, uint32, uint64:
		return Uint64
	case float32, float64:
		return Float64
	case bool:
		return Bool
	case string:
		return String
	default:
		return Object
	}
}

// fillEqual compares two fill values of the same dtype, treating NaN as equal
// to itself so that merging two storages with default float fills works.
func fillEqual(d DType, a, b any) bool {
	if d == Float64 {
		af, aok := a.(float64)
		bf, bok := b.(float64)
		if aok && bok && math.IsNaN(af) && math.IsNaN(bf) {
			return true
		}
	}
	if d == Object {
		return a == nil && b == nil
	}
	return a == b
}
